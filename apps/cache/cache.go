// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache provides the MSAL token cache: the store an application queries for tokens
before it goes to the network and writes token responses into after it does.

A TokenCache starts unbound, holding its data in memory. Hosts persist it in one of two ways.
They may register notification hooks (SetBeforeAccess, SetBeforeWrite, SetAfterAccess) and
move the serialized bytes themselves, or they may Bind an ExportReplace implementation, such
as the ones under cache/persistence, which the cache then calls around every operation.

The serialized data is the JSON contract shared by MSAL libraries in every language, so a
cache written here can be read by other MSAL clients. MarshalLegacy and UnmarshalLegacy
produce the format of older clients.
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache, overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ReplaceHints are suggestions for loading the cache.
type ReplaceHints struct {
	// PartitionKey is a suggested key for partitioning the cache.
	PartitionKey string
}

// ExportHints are suggestions for storing data.
type ExportHints struct {
	// PartitionKey is a suggested key for partitioning the cache.
	PartitionKey string
}

// ExportReplace exports and replaces in-memory cache data. It's optional for token caches
// and provides the persistence a host binds with TokenCache.Bind or TokenCache.BindLegacy.
//
// Implementations should honor Context cancellations and return context.Canceled or
// context.DeadlineExceeded in those cases. Retries must be implemented inside the
// implementation. An error fails the cache operation that triggered the call.
type ExportReplace interface {
	// Replace replaces the cache with what is in external storage. Implementors should
	// call the Unmarshaler with the stored bytes, or not at all when nothing is stored.
	Replace(ctx context.Context, cache Unmarshaler, hints ReplaceHints) error
	// Export writes the binary representation of the cache (cache.Marshal()) to external
	// storage. This is considered opaque.
	Export(ctx context.Context, cache Marshaler, hints ExportHints) error
}
