// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package storage holds all cached token information for MSAL. The Accessor is the in-memory
// store; Serialize and Deserialize convert its entire contents to and from the JSON contract
// that MSAL libraries in every language share. Persistent storage only ever sees the whole
// document, so that other MSAL clients reading the same storage agree on its layout.
package storage

import (
	stdJSON "encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

// Accessor is an in-memory cache of entities, one map per kind, keyed by canonical key.
// It is safe for concurrent use.
type Accessor struct {
	mu       sync.RWMutex
	entities map[Kind]map[string]Entity
	// sections holds top-level sections of a deserialized document this version does not know.
	sections map[string]stdJSON.RawMessage
	onChange func()

	log *slog.Logger
}

// NewAccessor is the constructor for Accessor. log may be nil.
func NewAccessor(log *slog.Logger) *Accessor {
	return &Accessor{
		entities: newEntityMaps(),
		sections: map[string]stdJSON.RawMessage{},
		log:      logger.Component(log, "storage"),
	}
}

func newEntityMaps() map[Kind]map[string]Entity {
	m := make(map[Kind]map[string]Entity, len(Kinds))
	for _, k := range Kinds {
		m[k] = map[string]Entity{}
	}
	return m
}

// OnChange registers fn to be called after every mutation that changes the accessor's
// contents. fn is called without the accessor's lock held.
func (a *Accessor) OnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *Accessor) changed(didChange bool) {
	if !didChange {
		return
	}
	a.mu.RLock()
	fn := a.onChange
	a.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Insert adds e or replaces the entity with the same key. Replacing an entity with an
// identical one is not a change.
func (a *Accessor) Insert(e Entity) error {
	v := value(e)
	if v == nil {
		return fmt.Errorf("cannot insert entity of type %T", e)
	}
	e = v
	if err := e.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	didChange := a.put(e)
	a.mu.Unlock()

	a.changed(didChange)
	return nil
}

// Load upserts entities read from persistent storage. Unlike Insert it never reports a
// change, and invalid entities are skipped and returned.
func (a *Accessor) Load(entities ...Entity) (skipped []Entity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range entities {
		e = value(e)
		if e == nil {
			continue
		}
		if err := e.Validate(); err != nil {
			skipped = append(skipped, e)
			continue
		}
		a.put(e)
	}
	return skipped
}

// put must be called with a.mu held.
func (a *Accessor) put(e Entity) bool {
	m := a.entities[e.Kind()]
	key := e.Key().String()
	if old, ok := m[key]; ok && reflect.DeepEqual(old, e) {
		return false
	}
	m[key] = e
	return true
}

// Get returns the entity of kind with key. It never fails; a missing key returns false.
func (a *Accessor) Get(kind Kind, key string) (Entity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entities[kind][key]
	return e, ok
}

// AccessToken returns the access token with key.
func (a *Accessor) AccessToken(key string) (AccessToken, bool) {
	return get[AccessToken](a, KindAccessToken, key)
}

// RefreshToken returns the refresh token with key.
func (a *Accessor) RefreshToken(key string) (RefreshToken, bool) {
	return get[RefreshToken](a, KindRefreshToken, key)
}

// IDToken returns the id token with key.
func (a *Accessor) IDToken(key string) (IDToken, bool) {
	return get[IDToken](a, KindIDToken, key)
}

// Account returns the account with key.
func (a *Accessor) Account(key string) (Account, bool) {
	return get[Account](a, KindAccount, key)
}

// AppMetaData returns the app metadata with key.
func (a *Accessor) AppMetaData(key string) (AppMetaData, bool) {
	return get[AppMetaData](a, KindAppMetaData, key)
}

func get[T Entity](a *Accessor, kind Kind, key string) (T, bool) {
	e, ok := a.Get(kind, key)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := e.(T)
	return v, ok
}

// Remove deletes the entity of kind with key. Removing a key that does not exist is a no-op.
func (a *Accessor) Remove(kind Kind, key string) bool {
	a.mu.Lock()
	_, ok := a.entities[kind][key]
	delete(a.entities[kind], key)
	a.mu.Unlock()

	a.changed(ok)
	return ok
}

// All returns a snapshot of every entity of kind, ordered by key.
func (a *Accessor) All(kind Kind) []Entity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sorted(a.entities[kind])
}

func sorted(m map[string]Entity) []Entity {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func all[T Entity](a *Accessor, kind Kind) []T {
	entities := a.All(kind)
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// AccessTokens returns a snapshot of every access token.
func (a *Accessor) AccessTokens() []AccessToken { return all[AccessToken](a, KindAccessToken) }

// RefreshTokens returns a snapshot of every refresh token.
func (a *Accessor) RefreshTokens() []RefreshToken { return all[RefreshToken](a, KindRefreshToken) }

// IDTokens returns a snapshot of every id token.
func (a *Accessor) IDTokens() []IDToken { return all[IDToken](a, KindIDToken) }

// Accounts returns a snapshot of every account.
func (a *Accessor) Accounts() []Account { return all[Account](a, KindAccount) }

// AppMetaDatas returns a snapshot of every app metadata record.
func (a *Accessor) AppMetaDatas() []AppMetaData { return all[AppMetaData](a, KindAppMetaData) }

// Len returns the number of entities of kind.
func (a *Accessor) Len(kind Kind) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entities[kind])
}

// Clear removes every entity and unknown section.
func (a *Accessor) Clear() {
	a.mu.Lock()
	didChange := len(a.sections) > 0
	for _, m := range a.entities {
		if len(m) > 0 {
			didChange = true
		}
	}
	a.entities = newEntityMaps()
	a.sections = map[string]stdJSON.RawMessage{}
	a.mu.Unlock()

	a.changed(didChange)
}

// Fill adds the entities and unknown sections of src whose keys a does not have. Entities
// already in a win. It never reports a change and returns the number of entities added.
func (a *Accessor) Fill(src *Accessor) int {
	if src == a {
		return 0
	}
	entities, sections := src.snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()
	added := 0
	for _, k := range Kinds {
		for key, e := range entities[k] {
			if _, ok := a.entities[k][key]; ok {
				continue
			}
			a.entities[k][key] = e
			added++
		}
	}
	for k, v := range sections {
		if _, ok := a.sections[k]; !ok {
			a.sections[k] = v
		}
	}
	return added
}

// replace swaps in new contents without reporting a change.
func (a *Accessor) replace(entities map[Kind]map[string]Entity, sections map[string]stdJSON.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entities = entities
	a.sections = sections
}

// snapshot returns copies of the accessor's maps.
func (a *Accessor) snapshot() (map[Kind]map[string]Entity, map[string]stdJSON.RawMessage) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entities := newEntityMaps()
	for k, m := range a.entities {
		for key, e := range m {
			entities[k][key] = e
		}
	}
	sections := make(map[string]stdJSON.RawMessage, len(a.sections))
	for k, v := range a.sections {
		sections[k] = v
	}
	return entities, sections
}
