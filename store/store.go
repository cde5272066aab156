package store

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
This file defines the Entry Store: the keyed map of cache entries plus the
tag index that makes bulk invalidation possible.

Instead of one big map and one big lock, the store is split into shards.
Each shard:
- Holds some portion of the keys
- Has its own entry map AND its own slice of the tag index
- Has its own lock

A key's entry record and its tag record always live on the same shard, so
"remove the entry and its tags" is a single lock acquisition. That is the
store's core invariant: every key in the tag index is also in the entry
map, and both records appear and disappear together.
*/

type shard struct {
	mu sync.RWMutex

	// entries holds key → entry for the keys routed to this shard.
	entries map[string]*types.CacheEntry

	// tags holds key → set of tag for the same keys.
	// A key with no tags has NO record here (not an empty set).
	tags map[string]map[string]struct{}
}

func newShard() *shard {
	return &shard{
		entries: make(map[string]*types.CacheEntry),
		tags:    make(map[string]map[string]struct{}),
	}
}

// Store is the sharded entry store. Zero value is not usable; use New.
type Store struct {
	shards []*shard
}

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 8

// New creates a Store with the given number of shards.
func New(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := make([]*shard, shards)
	for i := range s {
		s[i] = newShard()
	}
	return &Store{shards: s}
}

// hash converts a key into a number. FNV is a fast, non-cryptographic
// hash; the same routing the sharded cache this grew out of used.
func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[int(hash(key))%len(s.shards)]
}

/*
Put inserts or replaces the entry for key.

BEHAVIOR:
---------
- Overwrites any existing entry wholesale (entries are immutable)
- Sets LastWriteTime to now
- Replaces the key's tag record with tags
- Empty or absent tags ⇒ the tag record is removed entirely; any
  previous tag membership is cleared
*/
func (s *Store) Put(key string, value any, ttl time.Duration, tags []string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.put(key, value, ttl, tags)
}

// put writes entry + tag record. Caller must hold the shard lock.
func (sh *shard) put(key string, value any, ttl time.Duration, tags []string) {
	sh.entries[key] = &types.CacheEntry{
		Key:           key,
		Value:         value,
		LastWriteTime: time.Now(),
		TTL:           ttl,
	}

	if len(tags) == 0 {
		delete(sh.tags, key)
		return
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	sh.tags[key] = set
}

// Get returns the entry for key, or absent. The returned entry is shared
// and must not be modified.
func (s *Store) Get(key string) (*types.CacheEntry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	ent, ok := sh.entries[key]
	return ent, ok
}

// Has reports whether key currently has an entry.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

/*
Remove deletes the entry and the tag record for key in one step.

It reports whether an entry was actually removed, so callers building
invalidation events can list exactly the keys that existed.
Removing an absent key is a no-op, not an error.
*/
func (s *Store) Remove(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, ok := sh.entries[key]
	if ok {
		delete(sh.entries, key)
		delete(sh.tags, key)
	}
	return ok
}

// Clear removes every entry and every tag record.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*types.CacheEntry)
		sh.tags = make(map[string]map[string]struct{})
		sh.mu.Unlock()
	}
}

/*
Update atomically applies fn to the current value of key (or to "absent")
and writes the result back.

The read and the write happen under one shard lock acquisition. Two
concurrent Update calls on the same key therefore never lose an update:
one runs fully before the other sees the key.

Returns the new value.
*/
func (s *Store) Update(key string, fn func(old any, ok bool) any, ttl time.Duration, tags []string) any {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var old any
	ent, ok := sh.entries[key]
	if ok {
		old = ent.Value
	}
	next := fn(old, ok)
	sh.put(key, next, ttl, tags)
	return next
}

// Keys returns every key currently present, sorted.
func (s *Store) Keys() []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entries {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

/*
KeysMatchingPattern returns every key matched by a `*`-wildcard pattern,
sorted.

`*` matches zero or more characters; every other pattern character
matches itself literally. See pattern.go for why literal really means
literal here.
*/
func (s *Store) KeysMatchingPattern(pattern string) []string {
	re := compilePattern(pattern)

	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.entries {
			if re.MatchString(k) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// KeysWithAnyTag returns the union of keys carrying any of the given
// tags, sorted.
func (s *Store) KeysWithAnyTag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, set := range sh.tags {
			for t := range set {
				if _, ok := want[t]; ok {
					out = append(out, k)
					break
				}
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// TagsOf returns the tags attached to key, sorted. Nil when the key is
// absent or untagged.
func (s *Store) TagsOf(key string) []string {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	set, ok := sh.tags[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of entries currently stored.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

/*
ResetTTL replaces the entry for key with a copy carrying the new TTL.

LastWriteTime is preserved: changing how long data may live is not a
write of new data. Returns false when the key is absent.
*/
func (s *Store) ResetTTL(key string, ttl time.Duration) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ent, ok := sh.entries[key]
	if !ok {
		return false
	}
	next := *ent
	next.TTL = ttl
	sh.entries[key] = &next
	return true
}

/*
RemoveExpired removes every entry for which alive returns false and
returns the removed keys, sorted.

This is the periodic sweeper's entry point. Each shard is swept under
its own lock; tag records go with their entries as always.
*/
func (s *Store) RemoveExpired(alive func(*types.CacheEntry) bool) []string {
	var out []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.entries {
			if !alive(ent) {
				delete(sh.entries, k)
				delete(sh.tags, k)
				out = append(out, k)
			}
		}
		sh.mu.Unlock()
	}
	sort.Strings(out)
	return out
}
