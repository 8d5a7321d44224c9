// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package keyvault persists serialized token caches as Azure Key Vault secrets, one secret per
partition key. It lets several instances of a service share caches without shared disk.

Partition keys are hashed into secret names, so they never appear in the vault.

Usage:

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		// handle error
	}
	store, err := keyvault.New("https://myvault.vault.azure.net/", cred)
	if err != nil {
		// handle error
	}
*/
package keyvault

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/protect"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

const (
	defaultPrefix = "msal-cache"
	contentType   = "application/vnd.msal.token-cache+base64"
	// hashLen is the number of hex characters of the partition key hash in a secret name.
	hashLen = 40
)

var validPrefix = regexp.MustCompile(`^[0-9a-zA-Z-]{1,80}$`)

// SecretClient is the part of *azsecrets.Client the Store uses.
type SecretClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

var _ SecretClient = (*azsecrets.Client)(nil)

// Option is an optional argument to New and NewWithClient.
type Option func(*Store)

// WithPrefix sets the prefix of secret names. It may contain letters, digits and dashes.
// The default is "msal-cache".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithCrypter encrypts secret values with c before they leave the process.
func WithCrypter(c protect.Crypter) Option {
	return func(s *Store) {
		s.crypter = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger.Component(l, "keyvault")
	}
}

// Store is a cache.ExportReplace backed by Key Vault secrets.
type Store struct {
	client  SecretClient
	prefix  string
	crypter protect.Crypter
	log     *slog.Logger
}

var _ cache.ExportReplace = (*Store)(nil)

// New creates a Store for the vault at vaultURL, authenticating with cred.
func New(vaultURL string, cred azcore.TokenCredential, opts ...Option) (*Store, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault: %w", err)
	}
	return NewWithClient(client, opts...)
}

// NewWithClient creates a Store using client.
func NewWithClient(client SecretClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("keyvault: client is required")
	}
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		log:    logger.Component(nil, "keyvault"),
	}
	for _, o := range opts {
		o(s)
	}
	if !validPrefix.MatchString(s.prefix) {
		return nil, fmt.Errorf("keyvault: invalid secret name prefix %q", s.prefix)
	}
	return s, nil
}

// SecretName returns the name of the secret holding partitionKey.
func (s *Store) SecretName(partitionKey string) string {
	sum := sha256.Sum256([]byte(partitionKey))
	return s.prefix + "-" + hex.EncodeToString(sum[:])[:hashLen]
}

// Replace implements cache.ExportReplace. A partition without a secret leaves the cache
// unchanged.
func (s *Store) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	name := s.SecretName(hints.PartitionKey)
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			s.log.Debug("no secret for partition", logger.Field("secret", name))
			return nil
		}
		return fmt.Errorf("keyvault: reading secret %s: %w", name, err)
	}
	if resp.Value == nil {
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return fmt.Errorf("keyvault: secret %s is not a token cache: %w", name, err)
	}
	if s.crypter != nil {
		data, err = s.crypter.Decrypt(data, []byte(hints.PartitionKey))
		if err != nil {
			return fmt.Errorf("keyvault: secret %s: %w", name, err)
		}
	}
	return u.Unmarshal(data)
}

// Export implements cache.ExportReplace. Every export creates a new secret version.
func (s *Store) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if s.crypter != nil {
		data, err = s.crypter.Encrypt(data, []byte(hints.PartitionKey))
		if err != nil {
			return fmt.Errorf("keyvault: %w", err)
		}
	}

	name := s.SecretName(hints.PartitionKey)
	params := azsecrets.SetSecretParameters{
		Value:       to.Ptr(base64.StdEncoding.EncodeToString(data)),
		ContentType: to.Ptr(contentType),
		Tags: map[string]*string{
			"encrypted": to.Ptr(fmt.Sprint(s.crypter != nil)),
		},
	}
	if _, err := s.client.SetSecret(ctx, name, params, nil); err != nil {
		return fmt.Errorf("keyvault: writing secret %s: %w", name, err)
	}
	s.log.Debug("secret written", logger.Field("secret", name), logger.Field("bytes", len(data)))
	return nil
}
