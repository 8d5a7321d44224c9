// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger provides the structured logger used inside the token cache.
package logger

import (
	"log/slog"
)

// New returns l, or a logger that discards everything if l is nil. The token cache
// never writes to stdout unless the host asks it to.
func New(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}

// Component returns a child logger tagged with the component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return New(l).With(slog.String("component", name))
}
