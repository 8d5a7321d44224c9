// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger adapts log sinks that accept only a level and a message, such as the Azure
// SDK's log listener, to the *slog.Logger the token cache takes.
package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// CallbackFunc receives one formatted log line.
// we can only have one string to support azure sdk
type CallbackFunc func(level, message string)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

func levelOf(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return Err
	case l >= slog.LevelWarn:
		return Warn
	case l >= slog.LevelInfo:
		return Info
	}
	return Debug
}

// New creates a logger that formats every record as "message key=value ..." and passes it
// to cb. Records below min are dropped.
func New(cb CallbackFunc, min slog.Level) *slog.Logger {
	return slog.New(&handler{cb: cb, min: min, mu: &sync.Mutex{}})
}

type handler struct {
	cb     CallbackFunc
	min    slog.Level
	prefix string
	attrs  []slog.Attr
	// mu serializes calls to cb.
	mu *sync.Mutex
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.cb != nil && l >= h.min
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cb(string(levelOf(r.Level)), b.String())
	return nil
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}
