// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/protect"
)

// config is read from the environment. Flags override it.
type config struct {
	// Key is the hex encoded key of encrypted cache files.
	Key string `env:"MSALCACHE_KEY"`
	// ClientID is the client whose tokens remove-account removes.
	ClientID string `env:"MSALCACHE_CLIENT_ID"`
	LogLevel string `env:"MSALCACHE_LOG_LEVEL, default=warn"`
}

func loadConfig(ctx context.Context, lookup envconfig.Lookuper) (config, error) {
	var cfg config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}
	if _, err := cfg.level(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid MSALCACHE_LOG_LEVEL %q", c.LogLevel)
	}
	return l, nil
}

func (c config) logger(w io.Writer) *slog.Logger {
	l, _ := c.level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// crypter returns nil when no key is configured.
func (c config) crypter() (protect.Crypter, error) {
	if c.Key == "" {
		return nil, nil
	}
	key, err := protect.ParseHexKey(c.Key)
	if err != nil {
		return nil, fmt.Errorf("MSALCACHE_KEY: %w", err)
	}
	a, err := protect.New(key)
	if err != nil {
		return nil, err
	}
	return a, nil
}
