// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"
	"errors"
	"sync/atomic"
)

// errArgsExpired is returned by NotificationArgs methods called after the callback returned.
var errArgsExpired = errors.New("cache: NotificationArgs used after its callback returned")

// Hook is a host notification callback. A non-nil error fails the cache operation that
// invoked it and is returned to the caller wrapped in an *errors.CallbackError.
//
// ctx is marked as belonging to the notification: passing it back to a method of the same
// TokenCache returns errors.ErrReentrantAccess. Calling that TokenCache with an unrelated
// context from inside a Hook deadlocks, and so does calling its Marshal or Unmarshal. Use the
// methods of args to read or replace the cache.
type Hook func(ctx context.Context, args *NotificationArgs) error

// NotificationArgs describes the operation a Hook is notified about. It is only valid for
// the duration of the callback.
type NotificationArgs struct {
	// CorrelationID identifies the operation; every hook of one operation sees the same id.
	CorrelationID string
	// Operation is the name of the TokenCache method, for example "AccessToken".
	Operation string
	ClientID  string
	// Account is the account the operation is scoped to, or the zero value.
	Account Account
	// PartitionKey is the suggested key for partitioning persisted data.
	PartitionKey string
	// IsWrite is true for operations that may change the cache.
	IsWrite bool

	c    *TokenCache
	live atomic.Bool
}

func (a *NotificationArgs) valid() error {
	if !a.live.Load() {
		return errArgsExpired
	}
	return nil
}

// HasStateChanged reports whether the cache changed since the flag was last reset.
func (a *NotificationArgs) HasStateChanged() bool {
	return a.c.HasStateChanged()
}

// ResetStateChanged clears the state changed flag. Hosts call it after persisting the cache.
func (a *NotificationArgs) ResetStateChanged() {
	a.c.ResetStateChanged()
}

// Marshal serializes the cache in the current format.
func (a *NotificationArgs) Marshal() ([]byte, error) {
	if err := a.valid(); err != nil {
		return nil, err
	}
	return a.c.marshal()
}

// Unmarshal replaces the cache with data in the current format.
func (a *NotificationArgs) Unmarshal(b []byte) error {
	if err := a.valid(); err != nil {
		return err
	}
	return a.c.unmarshal(b)
}

// MarshalLegacy serializes the cache in the legacy format.
func (a *NotificationArgs) MarshalLegacy() ([]byte, error) {
	if err := a.valid(); err != nil {
		return nil, err
	}
	return a.c.marshalLegacy()
}

// UnmarshalLegacy merges legacy format data into the cache.
func (a *NotificationArgs) UnmarshalLegacy(b []byte) error {
	if err := a.valid(); err != nil {
		return err
	}
	return a.c.unmarshalLegacy(b)
}
