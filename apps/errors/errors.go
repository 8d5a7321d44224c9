// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error types returned by the token cache. Callers should use
// errors.Is with the sentinel values and errors.As with the struct types.
package errors

import (
	"errors"
	"fmt"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

var (
	// ErrInvalidEntity indicates a cache entity is missing a required field. Such entities
	// are never stored.
	ErrInvalidEntity = errors.New("invalid cache entity")
	// ErrCorruptCache indicates persisted cache data could not be parsed at all. The cache
	// has been reset to empty; the host may delete the persisted data and start over.
	ErrCorruptCache = errors.New("cache data is corrupt")
	// ErrReentrantAccess is returned when a notification callback calls back into the
	// TokenCache that invoked it.
	ErrReentrantAccess = errors.New("token cache accessed from inside one of its own notification callbacks")
	// ErrAlreadyBound is returned when binding a cache that is already bound to a different
	// persistence delegate.
	ErrAlreadyBound = errors.New("token cache is already bound to a different persistence delegate")
)

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	var v verboser
	if errors.As(err, &v) {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// InvalidEntityError describes which required field of which entity kind is missing.
type InvalidEntityError struct {
	Kind  string
	Field string
}

// Error implements error.Error().
func (e InvalidEntityError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Kind, e.Field)
}

// Is allows errors.Is(err, ErrInvalidEntity).
func (e InvalidEntityError) Is(target error) bool {
	return target == ErrInvalidEntity
}

// CorruptCacheError is returned when a whole document fails to parse.
type CorruptCacheError struct {
	// Format is "current" or "legacy".
	Format string
	// Size is the length of the rejected document.
	Size int
	Err  error
}

// Error implements error.Error().
func (e *CorruptCacheError) Error() string {
	return fmt.Sprintf("%s cache data (%d bytes) is corrupt: %s", e.Format, e.Size, e.Err)
}

// Unwrap returns the parse error.
func (e *CorruptCacheError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrCorruptCache).
func (e *CorruptCacheError) Is(target error) bool {
	return target == ErrCorruptCache
}

// Verbose prints the error with all of its fields.
func (e *CorruptCacheError) Verbose() string {
	return fmt.Sprintf("%s:\n%s", e.Error(), prettyConf.Sprint(e))
}

// CallbackError wraps an error returned by a host notification callback or a bound
// persistence delegate. The cache operation that triggered the callback has failed.
type CallbackError struct {
	// Hook is the notification point, for example "BeforeAccess".
	Hook          string
	CorrelationID string
	Err           error
}

// Error implements error.Error().
func (e *CallbackError) Error() string {
	return fmt.Sprintf("token cache %s callback failed: %s", e.Hook, e.Err)
}

// Unwrap returns the host's error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Verbose prints the error with the correlation id and the host error's details.
func (e *CallbackError) Verbose() string {
	return fmt.Sprintf("%s\n\tCorrelationID: %s\n\tCause:\n%s", e.Error(), e.CorrelationID, prettyConf.Sprint(e.Err))
}
