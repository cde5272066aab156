package api

import (
	"context"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
Cache defines the PUBLIC API of the query cache.

This is the contract the query/mutation binding layer programs against.
Storage, sharding, deduplication, TTL policy and event delivery are all
hidden behind it.
*/
type Cache interface {

	/*
		Fetch retrieves the value for key.

		BEHAVIOR:
		---------
		1. If the key exists in cache and is still fresh (per TTL):
		   - Return the cached value immediately

		2. If the key is absent or stale:
		   - Run the producer (deduplicated: concurrent callers for the
		     same key share ONE execution and one result)
		   - Store the result
		   - Return it

		A fetch fill is silent: it emits no MutationEvent. Only the
		Update* operations announce data changes.
	*/
	Fetch(ctx context.Context, key string, producer types.Producer, tags ...string) (any, error)

	// FetchWithTTL is Fetch with an explicit freshness window.
	// ttl == 0 means the entry never expires.
	FetchWithTTL(ctx context.Context, key string, producer types.Producer, ttl time.Duration, tags ...string) (any, error)

	// FetchInfinite is Fetch for paged/infinite queries. It uses the
	// configured infinite-query default TTL and reports
	// KindInfiniteQuery to the global hooks.
	FetchInfinite(ctx context.Context, key string, producer types.Producer, tags ...string) (any, error)

	/*
		Execute runs producer under the single-flight guarantee for key,
		WITHOUT touching the cache: no freshness check, no fill, no
		events. All concurrent callers of the same key observe the
		identical value or the identical error.
	*/
	Execute(ctx context.Context, key string, producer types.Producer) (any, error)

	// HasPending reports whether a producer is in flight for key.
	HasPending(key string) bool

	// Put stores value under key (default query TTL), replacing the
	// key's tag record. Absent tags clear previous tag membership.
	Put(key string, value any, tags ...string)

	// PutWithTTL is Put with an explicit TTL (0 ⇒ never expires).
	PutWithTTL(key string, value any, ttl time.Duration, tags ...string)

	// Get returns the stored value, ignoring freshness.
	Get(key string) (any, bool)

	// Has reports whether key has an entry.
	Has(key string) bool

	/*
		Remove deletes key immediately.

		BEHAVIOR:
		---------
		- Entry and tag record go together, atomically
		- Any in-flight producer for the key is forgotten, so the next
		  Fetch starts fresh (the orphaned producer still completes)
		- Idempotent: removing an absent key is a no-op, not an error
	*/
	Remove(key string)

	// Clear removes every entry and every tag record.
	Clear()

	// Keys returns all cached keys, sorted.
	Keys() []string

	// KeysMatchingPattern resolves a `*`-wildcard pattern: `*` matches
	// zero-or-more characters, every other character is literal.
	KeysMatchingPattern(pattern string) []string

	// KeysWithAnyTag returns the union of keys carrying any given tag.
	KeysWithAnyTag(tags ...string) []string

	// TagsOf returns the tags attached to key.
	TagsOf(key string) []string

	// Len returns the number of cached entries.
	Len() int

	/*
		TTL returns the remaining time-to-live for key.

		RETURN VALUES (Redis-compatible semantics):
		-------------------------------------------
		> 0 : duration remaining before expiry
		-1  : key exists but has no TTL
		-2  : key does not exist or is already expired
	*/
	TTL(key string) time.Duration

	// Expire replaces the TTL of an existing key. Returns false when
	// the key is absent.
	Expire(key string, ttl time.Duration) bool

	/*
		InvalidateKeys removes the given keys.

		When emit is true and ≥1 key was actually removed, exactly one
		InvalidationEvent is published listing exactly the removed keys.
		A no-op invalidation emits nothing. emit == false keeps internal
		housekeeping silent.
	*/
	InvalidateKeys(keys []string, emit bool) []string

	// InvalidateByPattern removes every key matching the wildcard
	// pattern; the event carries the pattern.
	InvalidateByPattern(pattern string, emit bool) []string

	// InvalidateByTags removes every key carrying any of the tags; the
	// event carries the tags.
	InvalidateByTags(tags []string, emit bool) []string

	// UpdateSingle replaces the value for key and emits one
	// MutationEvent describing the post-write state.
	UpdateSingle(key string, value any, tags ...string)

	// UpdateSingleWith derives the new value from the old one. Read and
	// write happen under one lock: concurrent updaters never lose an
	// update. Returns the written value.
	UpdateSingleWith(key string, updater func(old any, ok bool) any, tags ...string) any

	// UpdateBatch writes every pair and, when emit is true, announces
	// the whole batch with ONE aggregated MutationEvent. The success
	// hook fires once per written key regardless of emit.
	UpdateBatch(keys []string, data map[string]any, emit bool)

	// SubscribeInvalidation attaches a handler to the invalidation
	// stream. The returned function detaches it; detaching never
	// errors. A slow handler never blocks other subscribers.
	SubscribeInvalidation(handler types.InvalidationHandler) (unsubscribe func())

	// SubscribeMutation attaches a handler to the mutation stream.
	SubscribeMutation(handler types.MutationHandler) (unsubscribe func())

	// Close stops background work and shuts the event buses down.
	Close()
}
