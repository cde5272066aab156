package mutation

import (
	"time"

	"github.com/krisalay/query-cache/event"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

/*
Mutator writes new values into the cache and broadcasts what changed.

Mutation means "here is the updated data": subscribers get the new
values in the event and do not need to re-fetch. The event is always
emitted AFTER the store write, so a subscriber reading the cache in its
handler sees the post-write state.
*/
type Mutator struct {
	store   *store.Store
	bus     *event.Bus[types.MutationEvent]
	metrics types.Metrics
}

// New wires a Mutator to its store and event bus.
func New(s *store.Store, bus *event.Bus[types.MutationEvent], metrics types.Metrics) *Mutator {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	return &Mutator{store: s, bus: bus, metrics: metrics}
}

// UpdateSingle replaces the value for key and emits one MutationEvent
// for it. Tags replace the key's previous tag record (none ⇒ cleared).
func (m *Mutator) UpdateSingle(key string, value any, ttl time.Duration, tags []string) {
	m.store.Put(key, value, ttl, tags)
	m.emit([]string{key}, map[string]any{key: value}, tags)
}

/*
UpdateSingleWith computes the new value from the old one.

This is the only mutation path that reads before writing. The read and
the write run under one store lock acquisition, so two concurrent
updaters on the same key compose instead of losing one update.

The updater receives the current value and whether the key existed.
Returns the value that was written.
*/
func (m *Mutator) UpdateSingleWith(key string, updater func(old any, ok bool) any, ttl time.Duration, tags []string) any {
	next := m.store.Update(key, updater, ttl, tags)
	m.emit([]string{key}, map[string]any{key: next}, tags)
	return next
}

/*
UpdateBatch writes every key in keys to its value in data, then emits
ONE aggregated MutationEvent covering the whole batch.

Notification is all-or-nothing: either the batch is announced once, or
not at all when emit is false. Writes are in-memory assignments and
cannot partially fail.

Keys missing from data are written as nil, matching a plain Put of nil.
*/
func (m *Mutator) UpdateBatch(keys []string, data map[string]any, ttl time.Duration, emit bool) {
	written := make(map[string]any, len(keys))
	for _, k := range keys {
		v := data[k]
		m.store.Put(k, v, ttl, nil)
		written[k] = v
	}
	if len(keys) == 0 {
		return
	}
	m.metrics.Mutation()
	if emit {
		m.bus.Publish(types.MutationEvent{Keys: keys, Data: written})
	}
}

// emit publishes one event carrying the written keys, their post-write
// data, and the tags the caller attached to the write.
func (m *Mutator) emit(keys []string, data map[string]any, tags []string) {
	m.metrics.Mutation()
	m.bus.Publish(types.MutationEvent{Keys: keys, Data: data, Tags: tags})
}
