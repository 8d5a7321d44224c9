// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package protect encrypts serialized token caches at rest. A Crypter is constructed
// explicitly from key material the host owns and handed to the persistence that needs it;
// nothing is discovered at run time.
package protect

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a key accepted by New.
const KeySize = chacha20poly1305.KeySize

// version prefixes every sealed blob so the format can change without guessing.
const version byte = 1

// ErrDecrypt is returned when data cannot be authenticated with the key, usually because it
// was written with another key or has been tampered with.
var ErrDecrypt = errors.New("protect: data cannot be decrypted with this key")

// Crypter seals and opens cache data.
type Crypter interface {
	// Encrypt seals plaintext. associated is authenticated but not encrypted; the same value
	// must be passed to Decrypt.
	Encrypt(plaintext, associated []byte) ([]byte, error)
	Decrypt(ciphertext, associated []byte) ([]byte, error)
}

// AEAD is a Crypter using XChaCha20-Poly1305 with a random nonce per message. The output is
// [version][24-byte nonce][ciphertext and tag].
type AEAD struct {
	key []byte
}

var _ Crypter = AEAD{}

// New creates an AEAD from a KeySize byte key.
func New(key []byte) (AEAD, error) {
	if len(key) != KeySize {
		return AEAD{}, fmt.Errorf("protect: key must be %d bytes, got %d", KeySize, len(key))
	}
	return AEAD{key: bytes.Clone(key)}, nil
}

// DeriveKey stretches secret into a KeySize byte key with HKDF-SHA256. info separates keys
// derived from the same secret for different purposes.
func DeriveKey(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("protect: secret is empty")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("protect: deriving key: %w", err)
	}
	return key, nil
}

// ParseHexKey decodes a hex encoded key, as found in configuration.
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("protect: key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("protect: key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt implements Crypter.
func (a AEAD) Encrypt(plaintext, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = version
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("protect: generating nonce: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, associated), nil
}

// Decrypt implements Crypter.
func (a AEAD) Decrypt(ciphertext, associated []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	if ciphertext[0] != version {
		return nil, fmt.Errorf("%w: unknown version %d", ErrDecrypt, ciphertext[0])
	}
	nonce, sealed := ciphertext[1:1+aead.NonceSize()], ciphertext[1+aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, associated)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Validate runs an encrypt and decrypt cycle, so that misconfiguration fails at startup
// rather than on first use.
func Validate(c Crypter) error {
	plaintext := []byte("msal token cache")
	associated := []byte("validation")

	ciphertext, err := c.Encrypt(plaintext, associated)
	if err != nil {
		return fmt.Errorf("protect: validation encrypt failed: %w", err)
	}
	decrypted, err := c.Decrypt(ciphertext, associated)
	if err != nil {
		return fmt.Errorf("protect: validation decrypt failed: %w", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		return errors.New("protect: validation round trip failed")
	}
	return nil
}
