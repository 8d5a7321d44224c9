// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/file"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/protect"
)

const (
	testClientID = "client"
	testEnv      = "login.microsoftonline.com"
	testHomeID   = "uid.utid"
)

// writeCache writes a cache holding one signed in account to path.
func writeCache(t *testing.T, path string, opts ...file.Option) {
	t.Helper()
	ctx := context.Background()
	s, err := file.New(path, opts...)
	require.NoError(t, err)
	c, err := cache.New(testClientID)
	require.NoError(t, err)
	require.NoError(t, c.Bind(ctx, s))

	_, err = c.SaveTokenResponse(ctx, cache.AuthParams{Environment: testEnv, Realm: "utid", AuthorityType: "MSSTS"}, cache.TokenResponse{
		AccessToken:   "at-secret",
		RefreshToken:  "rt-secret",
		IDToken:       cache.IDTokenClaims{RawToken: "x.e30", Oid: "oid", PreferredUsername: "user@contoso.com"},
		ClientInfo:    cache.ClientInfo{UID: "uid", UTID: "utid"},
		GrantedScopes: []string{"User.Read"},
		ExpiresOn:     time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func run(t *testing.T, cfg config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.Key)

	cfg, err = loadConfig(ctx, envconfig.MapLookuper(map[string]string{
		"MSALCACHE_KEY":       "00",
		"MSALCACHE_CLIENT_ID": "abc",
		"MSALCACHE_LOG_LEVEL": "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.ClientID)
	_, err = cfg.crypter()
	assert.Error(t, err, "a one byte key is rejected")

	_, err = loadConfig(ctx, envconfig.MapLookuper(map[string]string{"MSALCACHE_LOG_LEVEL": "loud"}))
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	writeCache(t, path)

	out, err := run(t, config{LogLevel: "warn"}, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "AccessToken")
	assert.Contains(t, out, "User.Read")
	assert.Contains(t, out, "user@contoso.com")
	assert.Contains(t, out, "2030-01-01T00:00:00Z")
	assert.NotContains(t, out, "at-secret")
	assert.Contains(t, out, "5")

	out, err = run(t, config{LogLevel: "warn"}, "inspect", "--show-secrets", path)
	require.NoError(t, err)
	assert.Contains(t, out, "at-secret")
}

func TestInspectErrors(t *testing.T) {
	_, err := run(t, config{LogLevel: "warn"}, "inspect", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "cache.json")
	writeCache(t, path)
	_, err = run(t, config{LogLevel: "warn"}, "inspect", "--format", "yaml", path)
	assert.Error(t, err)
}

func TestEncryptedInspect(t *testing.T) {
	key := bytes.Repeat([]byte{1}, protect.KeySize)
	crypter, err := protect.New(key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cache.bin")
	writeCache(t, path, file.WithCrypter(crypter))

	_, err = run(t, config{LogLevel: "warn"}, "inspect", path)
	assert.Error(t, err, "encrypted file without a key")

	out, err := run(t, config{LogLevel: "warn", Key: hex.EncodeToString(key)}, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "user@contoso.com")
}

func TestConvertRoundTrip(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "cache.json")
	legacy := filepath.Join(dir, "legacy.json")
	back := filepath.Join(dir, "back.json")
	writeCache(t, current)

	out, err := run(t, config{LogLevel: "warn"}, "convert", current, legacy)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 entities")

	raw, err := os.ReadFile(legacy)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "access_tokens")

	out, err = run(t, config{LogLevel: "warn"}, "convert", "--from", "legacy", "--to", "current", legacy, back)
	require.NoError(t, err)
	// The legacy format has no app metadata.
	assert.Contains(t, out, "wrote 4 entities")

	out, err = run(t, config{LogLevel: "warn"}, "inspect", "--show-secrets", back)
	require.NoError(t, err)
	assert.Contains(t, out, "at-secret")
	assert.Contains(t, out, "rt-secret")
}

func TestRemoveAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	writeCache(t, path)

	_, err := run(t, config{LogLevel: "warn"}, "remove-account", "--home-account-id", testHomeID, "--environment", testEnv, path)
	assert.Error(t, err, "client id is required")

	out, err := run(t, config{LogLevel: "warn", ClientID: testClientID}, "remove-account", "--home-account-id", testHomeID, "--environment", testEnv, path)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 4 entities")

	out, err = run(t, config{LogLevel: "warn"}, "inspect", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "user@contoso.com")
	assert.Contains(t, out, "AppMetadata")
}
