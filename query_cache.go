package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisalay/query-cache/api"
	"github.com/krisalay/query-cache/dedup"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/event"
	"github.com/krisalay/query-cache/invalidation"
	"github.com/krisalay/query-cache/mutation"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

/*
QueryCache is the main cache implementation.

This struct is the orchestrator that connects:
- the sharded entry store (values + tag index)
- the invalidator and the mutator, each with its own event bus
- single-flight request deduplication
- the engine (TTL policy, hooks, metrics, logging)

EVENT POLICY:
-------------
A cache-miss-driven fetch fills the store SILENTLY: no MutationEvent.
Only explicit Update* calls emit MutationEvents. Subscribers can
therefore treat a MutationEvent as "data changed externally" and a fetch
they initiated themselves stays invisible to everyone else. This is the
one policy applied everywhere; no code path mixes the two.
*/
type QueryCache struct {
	store  *store.Store
	engine *engine.Engine
	inv    *invalidation.Invalidator
	mut    *mutation.Mutator
	flight *dedup.Deduplicator

	invBus *event.Bus[types.InvalidationEvent]
	mutBus *event.Bus[types.MutationEvent]

	// Background sweeper ownership. The cache owns its goroutine;
	// Close stops it.
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// QueryCache implements the full public contract.
var _ api.Cache = (*QueryCache)(nil)

// DefaultRefreshInterval is the sweep period used when periodic TTL
// refresh is enabled without an interval.
const DefaultRefreshInterval = 30 * time.Second

/*
Config is read once at construction. All fields are optional; the zero
value yields a working cache with no TTLs, no logging, no metrics and
no hooks.
*/
type Config struct {
	// Shards is the entry store shard count (store.DefaultShards if 0).
	Shards int

	// EventBuffer is the per-subscriber event queue depth
	// (event.DefaultBuffer if 0).
	EventBuffer int

	// DefaultQueryTTL applies to Fetch and to mutation writes.
	// Zero ⇒ entries written by them never expire.
	DefaultQueryTTL time.Duration

	// DefaultInfiniteQueryTTL applies to FetchInfinite the same way.
	DefaultInfiniteQueryTTL time.Duration

	// EnablePeriodicTTLRefresh starts a background sweep that drops
	// entries whose TTL ran out, so memory and subscriber views do not
	// trail behind lazy expiry. Removals are housekeeping: no events.
	EnablePeriodicTTLRefresh bool

	// RefreshInterval is the sweep period (DefaultRefreshInterval if 0).
	RefreshInterval time.Duration

	// Logger is used as-is when set. The cache never touches any global
	// logger; its logging lives and dies with the instance.
	Logger *zap.Logger

	// EnableLogging picks a development logger when Logger is nil.
	// Without it, a nil Logger means no logging at all.
	EnableLogging bool

	// Metrics counts cache events (NoopMetrics if nil).
	Metrics types.Metrics

	// OnSuccess fires with a Result on every fetch completion and every
	// mutation. OnError fires on every producer failure.
	OnSuccess types.ResultHook
	OnError   types.ResultHook
}

// New creates a QueryCache from cfg and starts the periodic sweeper if
// enabled. Call Close when done with the cache.
func New(cfg Config) *QueryCache {
	logger := cfg.Logger
	if logger == nil {
		if cfg.EnableLogging {
			logger = zap.Must(zap.NewDevelopment())
		} else {
			logger = zap.NewNop()
		}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	eng := engine.New(
		cfg.DefaultQueryTTL,
		cfg.DefaultInfiniteQueryTTL,
		metrics,
		logger,
		cfg.OnSuccess,
		cfg.OnError,
	)

	st := store.New(cfg.Shards)
	invBus := event.NewBus[types.InvalidationEvent](cfg.EventBuffer)
	mutBus := event.NewBus[types.MutationEvent](cfg.EventBuffer)

	ctx, cancel := context.WithCancel(context.Background())

	c := &QueryCache{
		store:  st,
		engine: eng,
		inv:    invalidation.New(st, invBus, metrics),
		mut:    mutation.New(st, mutBus, metrics),
		flight: dedup.New(metrics),
		invBus: invBus,
		mutBus: mutBus,
		cancel: cancel,
	}

	if cfg.EnablePeriodicTTLRefresh {
		interval := cfg.RefreshInterval
		if interval <= 0 {
			interval = DefaultRefreshInterval
		}
		c.wg.Add(1)
		go c.refreshLoop(ctx, interval)
	}

	return c
}

//
// ================= FETCH PATH =================
//

/*
Fetch returns the cached value for key while it is fresh, and otherwise
runs producer (deduplicated) and caches its result under the default
query TTL.

BEHAVIOR:
---------
1. Entry present and alive → cached value, no producer call
2. Otherwise → at most one producer runs per key; concurrent callers
   join it and all receive the identical value or error
3. A successful producer result is written silently (see the event
   policy on QueryCache) together with the given tags
4. A failed producer writes nothing; the next Fetch retries
*/
func (c *QueryCache) Fetch(ctx context.Context, key string, producer types.Producer, tags ...string) (any, error) {
	return c.fetch(ctx, types.KindQuery, key, producer, c.engine.TTLFor(types.KindQuery), tags)
}

// FetchWithTTL is Fetch with an explicit TTL. Zero ⇒ the entry never
// expires.
func (c *QueryCache) FetchWithTTL(ctx context.Context, key string, producer types.Producer, ttl time.Duration, tags ...string) (any, error) {
	return c.fetch(ctx, types.KindQuery, key, producer, ttl, tags)
}

// FetchInfinite is Fetch for paged/infinite queries: same contract,
// default infinite-query TTL, and hooks see KindInfiniteQuery.
func (c *QueryCache) FetchInfinite(ctx context.Context, key string, producer types.Producer, tags ...string) (any, error) {
	return c.fetch(ctx, types.KindInfiniteQuery, key, producer, c.engine.TTLFor(types.KindInfiniteQuery), tags)
}

func (c *QueryCache) fetch(ctx context.Context, kind types.Kind, key string, producer types.Producer, ttl time.Duration, tags []string) (any, error) {
	// Freshness is judged against the ttl THIS call asked for, never
	// the ttl stored when the entry was written. A caller tolerating
	// only 10ms of staleness re-fetches an entry another caller wrote
	// with an hour to live. The stored TTL only feeds the sweeper.
	if ent, ok := c.store.Get(key); ok && engine.IsAlive(ent.LastWriteTime, ttl) {
		c.engine.Metrics.Hit()
		return ent.Value, nil
	}

	c.engine.Metrics.Miss()

	// The store fill happens INSIDE the flight: exactly one joined
	// caller writes, and a producer orphaned by Remove/Forget still
	// lands its result in the store when it eventually finishes.
	v, err := c.flight.Execute(ctx, key, func(ctx context.Context) (any, error) {
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.store.Put(key, v, ttl, tags)
		c.engine.Metrics.Fill()
		return v, nil
	})
	if err != nil {
		c.engine.ReportError(kind, key, err)
		return nil, err
	}
	c.engine.ReportSuccess(kind, key, v)
	return v, nil
}

/*
Execute runs producer under the single-flight contract for key, without
touching the store: no freshness check, no fill, no events. It is the
bare deduplication primitive for callers that manage storage themselves.
*/
func (c *QueryCache) Execute(ctx context.Context, key string, producer types.Producer) (any, error) {
	return c.flight.Execute(ctx, key, producer)
}

// HasPending reports whether a producer is currently in flight for key.
func (c *QueryCache) HasPending(key string) bool {
	return c.flight.HasPending(key)
}

//
// ================= STORE ACCESS =================
//

// Put stores value under key with the default query TTL, replacing the
// key's tag record. Direct population is silent: no MutationEvent.
func (c *QueryCache) Put(key string, value any, tags ...string) {
	c.store.Put(key, value, c.engine.DefaultQueryTTL, tags)
}

// PutWithTTL is Put with an explicit TTL. Zero ⇒ never expires.
func (c *QueryCache) PutWithTTL(key string, value any, ttl time.Duration, tags ...string) {
	c.store.Put(key, value, ttl, tags)
}

// Get returns the stored value for key, if any. Freshness is NOT
// checked here; Fetch is the TTL-aware read.
func (c *QueryCache) Get(key string) (any, bool) {
	ent, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	return ent.Value, true
}

// Entry returns the stored entry for key, including its write time and
// TTL. The entry is shared and must not be modified.
func (c *QueryCache) Entry(key string) (*types.CacheEntry, bool) {
	return c.store.Get(key)
}

// Has reports whether key currently has an entry.
func (c *QueryCache) Has(key string) bool {
	return c.store.Has(key)
}

/*
Remove deletes key immediately and forgets any in-flight producer for
it, so a later Fetch starts fresh instead of joining a stale execution.
The orphaned producer still runs to completion.

Idempotent; emits nothing.
*/
func (c *QueryCache) Remove(key string) {
	c.flight.Forget(key)
	c.store.Remove(key)
}

// Clear removes every entry and every tag record. Emits nothing.
func (c *QueryCache) Clear() {
	c.store.Clear()
}

// Keys returns all cached keys, sorted.
func (c *QueryCache) Keys() []string { return c.store.Keys() }

// KeysMatchingPattern returns the keys matched by a `*`-wildcard
// pattern; `*` matches zero-or-more characters, everything else is
// literal.
func (c *QueryCache) KeysMatchingPattern(pattern string) []string {
	return c.store.KeysMatchingPattern(pattern)
}

// KeysWithAnyTag returns the union of keys carrying any of the tags.
func (c *QueryCache) KeysWithAnyTag(tags ...string) []string {
	return c.store.KeysWithAnyTag(tags)
}

// TagsOf returns the tags attached to key, sorted.
func (c *QueryCache) TagsOf(key string) []string { return c.store.TagsOf(key) }

// Len returns the number of cached entries.
func (c *QueryCache) Len() int { return c.store.Len() }

/*
ValueAs reads key expecting a value of type T.

A key that is absent, or whose stored value is not a T, yields the zero
value and false. A shape mismatch is an absent read, never a panic.
*/
func ValueAs[T any](c *QueryCache, key string) (T, bool) {
	var zero T
	ent, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := ent.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

//
// ================= TTL MANAGEMENT =================
//

/*
TTL returns the remaining time-to-live for key.

RETURN VALUES (Redis-compatible semantics):
-------------------------------------------
> 0 : duration remaining before expiry
-1  : key exists but has no TTL
-2  : key does not exist, or its TTL already ran out
*/
func (c *QueryCache) TTL(key string) time.Duration {
	ent, ok := c.store.Get(key)
	if !ok {
		return -2
	}
	if ent.TTL <= 0 {
		return -1
	}
	d := ent.TTL - time.Since(ent.LastWriteTime)
	if d <= 0 {
		return -2
	}
	return d
}

// Expire replaces the TTL of an existing key, keeping its value and
// write time. Returns false when the key is absent.
func (c *QueryCache) Expire(key string, ttl time.Duration) bool {
	return c.store.ResetTTL(key, ttl)
}

//
// ================= INVALIDATION & MUTATION =================
//

// InvalidateKeys removes the given keys. When emit is true and at least
// one key was removed, exactly one InvalidationEvent lists the removed
// keys. Returns the removed keys.
func (c *QueryCache) InvalidateKeys(keys []string, emit bool) []string {
	return c.inv.InvalidateKeys(keys, emit)
}

// InvalidateByPattern removes every key matching a `*`-wildcard
// pattern; the event carries the pattern.
func (c *QueryCache) InvalidateByPattern(pattern string, emit bool) []string {
	return c.inv.InvalidateByPattern(pattern, emit)
}

// InvalidateByTags removes every key carrying any of the tags; the
// event carries the tags.
func (c *QueryCache) InvalidateByTags(tags []string, emit bool) []string {
	return c.inv.InvalidateByTags(tags, emit)
}

// UpdateSingle replaces the value for key and emits one MutationEvent.
// The mutation hook fires with KindMutation.
func (c *QueryCache) UpdateSingle(key string, value any, tags ...string) {
	c.mut.UpdateSingle(key, value, c.engine.DefaultQueryTTL, tags)
	c.engine.ReportSuccess(types.KindMutation, key, value)
}

// UpdateSingleWith computes the new value from the current one under a
// single lock (no lost updates) and emits one MutationEvent. Returns
// the written value.
func (c *QueryCache) UpdateSingleWith(key string, updater func(old any, ok bool) any, tags ...string) any {
	v := c.mut.UpdateSingleWith(key, updater, c.engine.DefaultQueryTTL, tags)
	c.engine.ReportSuccess(types.KindMutation, key, v)
	return v
}

// UpdateBatch writes every key in keys to its value in data and, when
// emit is true, announces the whole batch with ONE MutationEvent.
// The mutation hook fires once per written key; emit only gates the
// event, never the hooks.
func (c *QueryCache) UpdateBatch(keys []string, data map[string]any, emit bool) {
	c.mut.UpdateBatch(keys, data, c.engine.DefaultQueryTTL, emit)
	for _, k := range keys {
		c.engine.ReportSuccess(types.KindMutation, k, data[k])
	}
}

//
// ================= SUBSCRIPTIONS =================
//

// SubscribeInvalidation attaches handler to the invalidation bus and
// returns its unsubscribe function. Handlers run on a bus-owned
// goroutine; a slow handler drops its own backlog, never blocking the
// cache or other subscribers.
func (c *QueryCache) SubscribeInvalidation(handler types.InvalidationHandler) (unsubscribe func()) {
	return c.invBus.Subscribe(handler)
}

// SubscribeMutation attaches handler to the mutation bus and returns
// its unsubscribe function.
func (c *QueryCache) SubscribeMutation(handler types.MutationHandler) (unsubscribe func()) {
	return c.mutBus.Subscribe(handler)
}

//
// ================= LIFECYCLE =================
//

// refreshLoop periodically drops entries whose TTL ran out. Removals
// are silent housekeeping; only Metrics.Expire sees them.
func (c *QueryCache) refreshLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := c.store.RemoveExpired(c.engine.Alive)
			for range removed {
				c.engine.Metrics.Expire()
			}
			if len(removed) > 0 {
				c.engine.Logger.Debug("ttl refresh removed expired entries",
					zap.Int("count", len(removed)),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the sweeper and shuts both event buses down, draining
// queued events. Safe to call more than once.
func (c *QueryCache) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.invBus.Close()
		c.mutBus.Close()
	})
}
