// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/legacy"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/storage"
)

// Hook points, as reported in errors.CallbackError.Hook.
const (
	HookBeforeAccess = "BeforeAccess"
	HookBeforeWrite  = "BeforeWrite"
	HookAfterAccess  = "AfterAccess"
	HookReplace      = "Replace"
	HookExport       = "Export"
)

// Option is an optional argument to New.
type Option func(*TokenCache)

// WithLogger sets the logger. By default the cache logs nothing.
func WithLogger(l *slog.Logger) Option {
	return func(c *TokenCache) {
		c.log = logger.Component(l, "cache")
	}
}

// WithPartitionKey sets the partition key passed to hooks and bound persistence. The
// default is the client id.
func WithPartitionKey(key string) Option {
	return func(c *TokenCache) {
		c.partitionKey = key
	}
}

// WithClock replaces time.Now, which SaveTokenResponse uses to stamp cached_at.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCache) {
		c.now = now
	}
}

// CorruptionHandler is told when bound persistence holds data that cannot be parsed at all.
// err wraps errors.ErrCorruptCache. The operation continues with an empty cache, and the
// unreadable data is overwritten by the next export.
type CorruptionHandler func(ctx context.Context, err error)

// WithCorruptionHandler registers h. Without one, corrupt persisted data is only logged.
func WithCorruptionHandler(h CorruptionHandler) Option {
	return func(c *TokenCache) {
		c.onCorrupt = h
	}
}

// TokenCache is the token cache of one client application. All of its methods are safe
// for concurrent use. Operations are linearizable: each holds the cache lock from reloading
// bound persistence to the after-access notification.
type TokenCache struct {
	clientID     string
	partitionKey string
	log          *slog.Logger
	now          func() time.Time
	onCorrupt    CorruptionHandler

	// mu serializes operations, including their notifications.
	mu       sync.Mutex
	accessor *storage.Accessor
	bridge   *legacy.Bridge
	changed  atomic.Bool

	// delegate and legacyDelegate are written with mu held.
	delegate       ExportReplace
	legacyDelegate ExportReplace

	hooksMu      sync.RWMutex
	beforeAccess Hook
	beforeWrite  Hook
	afterAccess  Hook
}

// New creates an unbound TokenCache for clientID.
func New(clientID string, options ...Option) (*TokenCache, error) {
	if clientID == "" {
		return nil, errors.New("cache: clientID is required")
	}
	c := &TokenCache{
		clientID:     clientID,
		partitionKey: clientID,
		log:          logger.Component(nil, "cache"),
		now:          time.Now,
	}
	for _, o := range options {
		o(c)
	}
	c.accessor = storage.NewAccessor(c.log)
	c.accessor.OnChange(func() { c.changed.Store(true) })
	c.bridge = legacy.New(c.log)
	return c, nil
}

// ClientID returns the client id the cache was created for.
func (c *TokenCache) ClientID() string {
	return c.clientID
}

// HasStateChanged reports whether the cache changed since the flag was last reset. The
// cache resets it only after exporting to bound persistence; hosts that persist from a
// notification hook reset it themselves.
func (c *TokenCache) HasStateChanged() bool {
	return c.changed.Load()
}

// ResetStateChanged clears the state changed flag.
func (c *TokenCache) ResetStateChanged() {
	c.changed.Store(false)
}

// SetBeforeAccess registers the hook invoked before every operation. A nil hook removes it.
func (c *TokenCache) SetBeforeAccess(h Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.beforeAccess = h
}

// SetBeforeWrite registers the hook invoked after before-access for operations that may
// change the cache.
func (c *TokenCache) SetBeforeWrite(h Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.beforeWrite = h
}

// SetAfterAccess registers the hook invoked after every operation, including failed ones.
func (c *TokenCache) SetAfterAccess(h Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.afterAccess = h
}

func (c *TokenCache) hook(name string) Hook {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	switch name {
	case HookBeforeAccess:
		return c.beforeAccess
	case HookBeforeWrite:
		return c.beforeWrite
	case HookAfterAccess:
		return c.afterAccess
	}
	return nil
}

// Marshal serializes the cache in the current format. It waits for any running operation
// to finish. From inside a Hook use NotificationArgs.Marshal instead.
func (c *TokenCache) Marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marshal()
}

// Unmarshal replaces the contents of the cache with b. Malformed entities are skipped and
// logged. Data that is not JSON empties the cache and returns a *errors.CorruptCacheError.
// It waits for any running operation to finish. From inside a Hook use
// NotificationArgs.Unmarshal instead.
func (c *TokenCache) Unmarshal(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmarshal(b)
}

// MarshalLegacy serializes the cache in the legacy format, keeping whatever the last
// UnmarshalLegacy read and could not interpret.
func (c *TokenCache) MarshalLegacy() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marshalLegacy()
}

// UnmarshalLegacy merges legacy format data into the cache. Legacy records replace entities
// with the same key.
func (c *TokenCache) UnmarshalLegacy(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmarshalLegacy(b)
}

// marshal, unmarshal, marshalLegacy and unmarshalLegacy must be called with c.mu held.

func (c *TokenCache) marshal() ([]byte, error) {
	return storage.Serialize(c.accessor)
}

func (c *TokenCache) unmarshal(b []byte) error {
	_, err := storage.Deserialize(b, c.accessor)
	return err
}

func (c *TokenCache) marshalLegacy() ([]byte, error) {
	return c.bridge.Export(c.accessor)
}

func (c *TokenCache) unmarshalLegacy(b []byte) error {
	_, err := c.bridge.Import(b, c.accessor)
	return err
}

type notificationKey struct{}

func (c *TokenCache) inNotification(ctx context.Context) bool {
	v, _ := ctx.Value(notificationKey{}).(*TokenCache)
	return v == c
}

type operation struct {
	name    string
	write   bool
	account Account
}

// do runs fn under the cache lock, surrounded by persistence and notifications.
func (c *TokenCache) do(ctx context.Context, op operation, fn func() error) error {
	if c.inNotification(ctx) {
		return fmt.Errorf("%s: %w", op.name, errs.ErrReentrantAccess)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	args := &NotificationArgs{
		CorrelationID: uuid.NewString(),
		Operation:     op.name,
		ClientID:      c.clientID,
		Account:       op.account,
		PartitionKey:  c.partitionKey,
		IsWrite:       op.write,
		c:             c,
	}
	hctx := context.WithValue(ctx, notificationKey{}, c)

	err := func() error {
		if err := c.reload(hctx, args.CorrelationID); err != nil {
			return err
		}
		if err := c.notify(hctx, HookBeforeAccess, args); err != nil {
			return err
		}
		if op.write {
			if err := c.notify(hctx, HookBeforeWrite, args); err != nil {
				return err
			}
		}
		if err := fn(); err != nil {
			return err
		}
		return c.persist(hctx, args.CorrelationID, false)
	}()

	afterErr := c.notify(hctx, HookAfterAccess, args)
	switch {
	case err != nil && afterErr != nil:
		return errors.Join(err, afterErr)
	case err != nil:
		return err
	}
	return afterErr
}

func (c *TokenCache) notify(ctx context.Context, name string, args *NotificationArgs) error {
	h := c.hook(name)
	if h == nil {
		return nil
	}
	args.live.Store(true)
	defer args.live.Store(false)
	if err := h(ctx, args); err != nil {
		c.log.Error("notification callback failed", logger.Field("hook", name), logger.Field("correlationID", args.CorrelationID), logger.Field("error", err))
		return &errs.CallbackError{Hook: name, CorrelationID: args.CorrelationID, Err: err}
	}
	return nil
}

// accessorSerializer adapts an Accessor to Serializer for bound persistence.
type accessorSerializer struct {
	a *storage.Accessor
}

func (s accessorSerializer) Marshal() ([]byte, error) {
	return storage.Serialize(s.a)
}

func (s accessorSerializer) Unmarshal(b []byte) error {
	_, err := storage.Deserialize(b, s.a)
	return err
}

// legacySerializer adapts an Accessor and Bridge to Serializer for bound legacy persistence.
type legacySerializer struct {
	a *storage.Accessor
	b *legacy.Bridge
}

func (s legacySerializer) Marshal() ([]byte, error) {
	return s.b.Export(s.a)
}

func (s legacySerializer) Unmarshal(b []byte) error {
	_, err := s.b.Import(b, s.a)
	return err
}

// reload replaces the cache with the contents of bound persistence. Legacy data is applied
// after current data. Must be called with c.mu held.
func (c *TokenCache) reload(ctx context.Context, correlationID string) error {
	hints := ReplaceHints{PartitionKey: c.partitionKey}
	if c.delegate != nil {
		if err := c.delegate.Replace(ctx, accessorSerializer{a: c.accessor}, hints); err != nil {
			if err := c.replaceError(ctx, correlationID, err); err != nil {
				return err
			}
		}
	}
	if c.legacyDelegate != nil {
		if err := c.legacyDelegate.Replace(ctx, legacySerializer{a: c.accessor, b: c.bridge}, hints); err != nil {
			if err := c.replaceError(ctx, correlationID, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceError turns a failed Replace into the error the operation returns. Corrupt data is
// not an error: the cache is already empty, so the operation goes on as a cache miss and the
// state is marked changed so that the next export overwrites the unreadable data.
func (c *TokenCache) replaceError(ctx context.Context, correlationID string, err error) error {
	if !errors.Is(err, errs.ErrCorruptCache) {
		return c.persistenceError(HookReplace, correlationID, err)
	}
	c.log.Error("persisted cache data is corrupt, continuing with an empty cache",
		logger.Field("correlationID", correlationID), logger.Field("partitionKey", c.partitionKey), logger.Field("error", err))
	c.changed.Store(true)
	if c.onCorrupt != nil {
		c.onCorrupt(ctx, err)
	}
	return nil
}

// persist exports the cache to every bound delegate when it changed, or always if force is
// set, and resets the state changed flag once all exports succeed. Must be called with c.mu held.
func (c *TokenCache) persist(ctx context.Context, correlationID string, force bool) error {
	if c.delegate == nil && c.legacyDelegate == nil {
		return nil
	}
	if !force && !c.changed.Load() {
		return nil
	}

	hints := ExportHints{PartitionKey: c.partitionKey}
	g, gctx := errgroup.WithContext(ctx)
	if c.delegate != nil {
		g.Go(func() error {
			return c.delegate.Export(gctx, accessorSerializer{a: c.accessor}, hints)
		})
	}
	if c.legacyDelegate != nil {
		g.Go(func() error {
			return c.legacyDelegate.Export(gctx, legacySerializer{a: c.accessor, b: c.bridge}, hints)
		})
	}
	if err := g.Wait(); err != nil {
		return c.persistenceError(HookExport, correlationID, err)
	}
	c.changed.Store(false)
	return nil
}

func (c *TokenCache) persistenceError(hook, correlationID string, err error) error {
	c.log.Error("cache persistence failed", logger.Field("hook", hook), logger.Field("correlationID", correlationID), logger.Field("error", err))
	return &errs.CallbackError{Hook: hook, CorrelationID: correlationID, Err: err}
}

// Bind attaches persistence for the current format. The persisted data is loaded, the
// entities the cache held in memory are added on top of it, and the result is exported,
// once. Binding the delegate that is already bound does nothing; binding a different one
// returns errors.ErrAlreadyBound.
func (c *TokenCache) Bind(ctx context.Context, d ExportReplace) error {
	return c.bind(ctx, d, false)
}

// BindLegacy attaches persistence for the legacy format, with the same rules as Bind. Once
// bound, legacy data is applied after current data on every reload and both formats are
// exported whenever the cache changes.
func (c *TokenCache) BindLegacy(ctx context.Context, d ExportReplace) error {
	return c.bind(ctx, d, true)
}

func (c *TokenCache) bind(ctx context.Context, d ExportReplace, isLegacy bool) error {
	if d == nil {
		return errors.New("cache: cannot bind a nil ExportReplace")
	}
	if c.inNotification(ctx) {
		return fmt.Errorf("Bind: %w", errs.ErrReentrantAccess)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := &c.delegate
	if isLegacy {
		current = &c.legacyDelegate
	}
	if *current != nil {
		if sameDelegate(*current, d) {
			return nil
		}
		return errs.ErrAlreadyBound
	}

	correlationID := uuid.NewString()
	hctx := context.WithValue(ctx, notificationKey{}, c)

	loaded := storage.NewAccessor(c.log)
	var u Unmarshaler = accessorSerializer{a: loaded}
	if isLegacy {
		u = legacySerializer{a: loaded, b: c.bridge}
	}
	if err := d.Replace(hctx, u, ReplaceHints{PartitionKey: c.partitionKey}); err != nil {
		if err := c.replaceError(hctx, correlationID, err); err != nil {
			return err
		}
	}

	added := c.accessor.Fill(loaded)
	*current = d
	if err := c.persist(hctx, correlationID, true); err != nil {
		*current = nil
		return err
	}
	c.log.Info("token cache bound to persistence", logger.Field("legacy", isLegacy), logger.Field("loaded", added), logger.Field("partitionKey", c.partitionKey))
	return nil
}

// sameDelegate reports whether a and b are the same delegate. Delegates of types that
// cannot be compared are never the same.
func sameDelegate(a, b ExportReplace) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
