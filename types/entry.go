package types

import "time"

/*
CacheEntry is one slot of the cache: the value a producer (or an explicit
update) handed us, plus the moment it was written.

Entries are immutable once created. Every write replaces the whole entry;
nothing mutates a stored entry in place. This keeps readers safe without
holding locks on the entry itself.
*/
type CacheEntry struct {
	// Key is the cache key this entry belongs to.
	Key string

	// Value is whatever the producer returned. The cache never inspects it.
	Value any

	// LastWriteTime is when this entry was written.
	// Freshness is always judged against this moment, never against reads.
	LastWriteTime time.Time

	// TTL is how long this entry stays fresh after LastWriteTime.
	// Zero means the entry never expires.
	TTL time.Duration
}
