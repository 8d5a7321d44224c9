// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package memory provides a process-local store for serialized token caches, keyed by
partition key. Several TokenCache instances bound to one Store share their contents,
which is how a web service keeps one cache per user without touching disk.

Usage:

	store, err := memory.New(memory.WithMaximumSize(10_000), memory.WithIdleTimeout(time.Hour))
	if err != nil {
		// handle error
	}
	c, err := cache.New(clientID, cache.WithPartitionKey(userID))
	if err != nil {
		// handle error
	}
	if err := c.Bind(ctx, store); err != nil {
		// handle error
	}
*/
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
)

const defaultMaximumSize = 10_000

// Option is an optional argument to New.
type Option func(*options)

type options struct {
	maximumSize int
	idle        time.Duration
}

// WithMaximumSize bounds the number of partitions held. Least recently used partitions are
// evicted first. The default is 10,000.
func WithMaximumSize(n int) Option {
	return func(o *options) {
		o.maximumSize = n
	}
}

// WithIdleTimeout evicts partitions that were not read or written for d. By default
// partitions never expire.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idle = d
	}
}

// Stats counts partition lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Store holds one serialized cache per partition key. It implements cache.ExportReplace and
// is safe for concurrent use.
type Store struct {
	cache   *otter.Cache[string, []byte]
	counter *stats.Counter
}

var _ cache.ExportReplace = (*Store)(nil)

// New creates an empty Store.
func New(opts ...Option) (*Store, error) {
	o := options{maximumSize: defaultMaximumSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maximumSize <= 0 {
		return nil, errors.New("memory: maximum size must be positive")
	}

	counter := stats.NewCounter()
	cfg := &otter.Options[string, []byte]{
		MaximumSize:   o.maximumSize,
		StatsRecorder: counter,
	}
	if o.idle > 0 {
		cfg.ExpiryCalculator = otter.ExpiryAccessing[string, []byte](o.idle)
	}
	c, err := otter.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{cache: c, counter: counter}, nil
}

// Replace implements cache.ExportReplace. A partition that was never exported leaves the
// cache unchanged.
func (s *Store) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	entry, ok := s.cache.GetEntry(hints.PartitionKey)
	if !ok {
		return nil
	}
	return u.Unmarshal(entry.Value)
}

// Export implements cache.ExportReplace.
func (s *Store) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	s.cache.Set(hints.PartitionKey, b)
	return nil
}

// Delete removes the partition with key.
func (s *Store) Delete(key string) {
	s.cache.Invalidate(key)
}

// Len returns the number of partitions held.
func (s *Store) Len() int {
	return s.cache.EstimatedSize()
}

// Stats returns lookup counters since the Store was created.
func (s *Store) Stats() Stats {
	snap := s.counter.Snapshot()
	return Stats{Hits: snap.Hits, Misses: snap.Misses}
}
