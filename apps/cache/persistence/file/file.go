// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package file persists a serialized token cache in a single file, optionally encrypted.

Writes go to a temporary file in the same directory that is then renamed over the target,
so readers never see a partial document. Another process sharing the file is picked up on
the next cache operation; hosts that want to react sooner can Watch the file.

Usage:

	key, err := protect.DeriveKey(secret, salt, "msal token cache")
	if err != nil {
		// handle error
	}
	crypter, err := protect.New(key)
	if err != nil {
		// handle error
	}
	store, err := file.New("/var/lib/app/msal.cache", file.WithCrypter(crypter))
	if err != nil {
		// handle error
	}
	if err := c.Bind(ctx, store); err != nil {
		// handle error
	}
*/
package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/protect"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

// associated binds encrypted cache files to their purpose.
var associated = []byte("msal token cache file")

// Option is an optional argument to New.
type Option func(*Store)

// WithCrypter encrypts the file with c.
func WithCrypter(c protect.Crypter) Option {
	return func(s *Store) {
		s.crypter = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger.Component(l, "file")
	}
}

// WithPermissions sets the mode of the cache file. The default is 0600.
func WithPermissions(mode fs.FileMode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// Store is a cache.ExportReplace backed by one file. It is safe for concurrent use.
type Store struct {
	path    string
	mode    fs.FileMode
	crypter protect.Crypter
	log     *slog.Logger

	mu sync.Mutex
	// written is the hash of what this Store last wrote or read, on disk form.
	written [sha256.Size]byte
}

var _ cache.ExportReplace = (*Store)(nil)

// New creates a Store for path. The directory is created when missing; the file is created
// on first export.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("file: path is required")
	}
	s := &Store{
		path: filepath.Clean(path),
		mode: 0o600,
		log:  logger.Component(nil, "file"),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	return s, nil
}

// Path returns the path of the cache file.
func (s *Store) Path() string {
	return s.path
}

// Replace implements cache.ExportReplace. A missing file leaves the cache unchanged.
func (s *Store) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.written = sha256.Sum256(raw)

	b, err := s.decode(raw)
	if err != nil {
		return err
	}
	return u.Unmarshal(b)
}

// Export implements cache.ExportReplace. An unencrypted document identical to the file is
// not rewritten.
func (s *Store) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	raw, err := s.encode(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(raw)
	if s.crypter == nil && sum == s.written {
		if cur, err := os.ReadFile(s.path); err == nil && bytes.Equal(cur, raw) {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(raw); err != nil {
		return err
	}
	s.written = sum
	return nil
}

func (s *Store) decode(raw []byte) ([]byte, error) {
	if s.crypter == nil {
		return raw, nil
	}
	b, err := s.crypter.Decrypt(raw, associated)
	if err != nil {
		return nil, fmt.Errorf("file: %s: %w", s.path, err)
	}
	return b, nil
}

func (s *Store) encode(b []byte) ([]byte, error) {
	if s.crypter == nil {
		return b, nil
	}
	return s.crypter.Encrypt(b, associated)
}

// write must be called with s.mu held.
func (s *Store) write(raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), s.mode); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	s.log.Debug("cache file written", logger.Field("path", s.path), logger.Field("bytes", len(raw)))
	return nil
}

// Watch calls onChange whenever another writer changes the cache file, until ctx is done.
// Changes this Store made itself are not reported. onChange runs on the watcher goroutine.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	// Renames replace the file, so the directory is watched rather than the file.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("file: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if s.ownWrite() {
					continue
				}
				s.log.Debug("cache file changed", logger.Field("path", s.path), logger.Field("op", event.Op.String()))
				onChange()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error("watching cache file", logger.Field("path", s.path), logger.Field("error", err))
			}
		}
	}()
	return nil
}

// ownWrite reports whether the file holds what this Store last wrote or read.
func (s *Store) ownWrite() bool {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sha256.Sum256(raw) == s.written
}
