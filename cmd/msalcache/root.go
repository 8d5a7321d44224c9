// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/file"
)

const (
	formatCurrent = "current"
	formatLegacy  = "legacy"

	// defaultClientID is used where the client does not matter, such as reading a file.
	defaultClientID = "msalcache"
)

// app carries what every command needs.
type app struct {
	cfg config
	log *slog.Logger
}

func newRootCmd(cfg config) *cobra.Command {
	a := &app{cfg: cfg}
	root := &cobra.Command{
		Use:   "msalcache",
		Short: "Inspect and maintain MSAL token cache files",
		Long: `msalcache reads and writes the token cache files MSAL libraries share.

Encrypted files need the key in MSALCACHE_KEY or --key, as 64 hex characters.`,
		// SilenceUsage keeps usage out of the output of failed operations.
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = a.cfg.logger(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.Key, "key", cfg.Key, "hex encoded key of encrypted cache files")

	root.AddCommand(newInspectCmd(a), newConvertCmd(a), newRemoveAccountCmd(a))
	return root
}

func validFormat(format string) error {
	if format != formatCurrent && format != formatLegacy {
		return fmt.Errorf("unknown format %q, want %q or %q", format, formatCurrent, formatLegacy)
	}
	return nil
}

func (a *app) store(path string) (*file.Store, error) {
	opts := []file.Option{file.WithLogger(a.log)}
	crypter, err := a.cfg.crypter()
	if err != nil {
		return nil, err
	}
	if crypter != nil {
		opts = append(opts, file.WithCrypter(crypter))
	}
	return file.New(path, opts...)
}

// read loads the existing cache file at path without writing to it.
func (a *app) read(ctx context.Context, path, format string) (*cache.TokenCache, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s does not exist", path)
	}
	s, err := a.store(path)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(defaultClientID, cache.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	if err := s.Replace(ctx, formatted{c: c, format: format}, cache.ReplaceHints{}); err != nil {
		return nil, err
	}
	return c, nil
}

// formatted serializes a TokenCache in one of the two formats.
type formatted struct {
	c      *cache.TokenCache
	format string
}

func (f formatted) Marshal() ([]byte, error) {
	if f.format == formatLegacy {
		return f.c.MarshalLegacy()
	}
	return f.c.Marshal()
}

func (f formatted) Unmarshal(b []byte) error {
	if f.format == formatLegacy {
		return f.c.UnmarshalLegacy(b)
	}
	return f.c.Unmarshal(b)
}

var kinds = []cache.Kind{cache.KindAccessToken, cache.KindRefreshToken, cache.KindIDToken, cache.KindAccount, cache.KindAppMetaData}

func count(ctx context.Context, c *cache.TokenCache) (int, error) {
	n := 0
	for _, k := range kinds {
		entities, err := c.Entities(ctx, k)
		if err != nil {
			return 0, err
		}
		n += len(entities)
	}
	return n, nil
}
