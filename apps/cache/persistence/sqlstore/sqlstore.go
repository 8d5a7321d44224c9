// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package sqlstore persists serialized token caches in SQLite, one row per partition key.
It suits services that keep many users' caches on one host and want them to survive
restarts.

Usage:

	store, err := sqlstore.Open(ctx, "file:/var/lib/app/tokens.db")
	if err != nil {
		// handle error
	}
	defer store.Close()
	if err := store.ApplyMigrations(); err != nil {
		// handle error
	}
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/protect"
	"github.com/AzureAD/msal-go-token-cache/apps/cache/persistence/sqlstore/migrations"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

// Option is an optional argument to Open.
type Option func(*Store)

// WithCrypter encrypts every row with c. The partition key is bound to the row as
// associated data, so rows cannot be swapped between partitions.
func WithCrypter(c protect.Crypter) Option {
	return func(s *Store) {
		s.crypter = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger.Component(l, "sqlstore")
	}
}

// WithClock replaces time.Now, which stamps updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is a cache.ExportReplace backed by a SQLite database. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	crypter protect.Crypter
	log     *slog.Logger
	now     func() time.Time
}

var _ cache.ExportReplace = (*Store)(nil)

// Open opens the database at dsn. Call ApplyMigrations before first use.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: logger.Component(nil, "sqlstore"),
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ApplyMigrations creates or upgrades the schema using the embedded migration files.
func (s *Store) ApplyMigrations() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}
	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}
	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Replace implements cache.ExportReplace. A partition that was never exported leaves the
// cache unchanged.
func (s *Store) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM token_cache WHERE partition_key = ?`,
		hints.PartitionKey,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sqlstore: reading partition: %w", err)
	}

	if s.crypter != nil {
		data, err = s.crypter.Decrypt(data, []byte(hints.PartitionKey))
		if err != nil {
			return fmt.Errorf("sqlstore: %w", err)
		}
	}
	return u.Unmarshal(data)
}

// Export implements cache.ExportReplace.
func (s *Store) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if s.crypter != nil {
		data, err = s.crypter.Encrypt(data, []byte(hints.PartitionKey))
		if err != nil {
			return fmt.Errorf("sqlstore: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO token_cache (partition_key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (partition_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		hints.PartitionKey, data, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: writing partition: %w", err)
	}
	s.log.Debug("partition written", logger.Field("bytes", len(data)))
	return nil
}

// Delete removes a partition. Deleting a missing partition is not an error.
func (s *Store) Delete(ctx context.Context, partitionKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM token_cache WHERE partition_key = ?`, partitionKey); err != nil {
		return fmt.Errorf("sqlstore: deleting partition: %w", err)
	}
	return nil
}

// DeleteStale removes partitions not written since before. It returns the number removed.
func (s *Store) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_cache WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting stale partitions: %w", err)
	}
	return res.RowsAffected()
}

// Partitions returns the stored partition keys in order.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT partition_key FROM token_cache ORDER BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing partitions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
