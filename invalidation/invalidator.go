package invalidation

import (
	"github.com/krisalay/query-cache/event"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

/*
Invalidator removes cache entries and tells the world about it.

Invalidation means "this data is gone, re-fetch if needed": the entry
is dropped, not replaced. Each call emits AT MOST one event:
- exactly one, listing exactly the removed keys, when ≥1 key was removed
  and the caller asked for an event
- none for a no-op call, and none when emit is false (internal
  housekeeping uses that to stay silent)
*/
type Invalidator struct {
	store   *store.Store
	bus     *event.Bus[types.InvalidationEvent]
	metrics types.Metrics
}

// New wires an Invalidator to its store and event bus.
func New(s *store.Store, bus *event.Bus[types.InvalidationEvent], metrics types.Metrics) *Invalidator {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	return &Invalidator{store: s, bus: bus, metrics: metrics}
}

/*
InvalidateKeys removes the given keys.

Keys that are not present are skipped; the event (and the returned
slice) lists only the keys actually removed, in the order given.
*/
func (i *Invalidator) InvalidateKeys(keys []string, emit bool) []string {
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		if i.store.Remove(k) {
			removed = append(removed, k)
		}
	}
	i.publish(types.InvalidationEvent{Keys: removed}, emit)
	return removed
}

// InvalidateByPattern removes every key matching a `*`-wildcard pattern.
// The event carries the pattern alongside the resolved keys.
func (i *Invalidator) InvalidateByPattern(pattern string, emit bool) []string {
	removed := i.removeAll(i.store.KeysMatchingPattern(pattern))
	i.publish(types.InvalidationEvent{Keys: removed, Pattern: pattern}, emit)
	return removed
}

// InvalidateByTags removes every key carrying any of the given tags.
// The event carries the tags alongside the resolved keys.
func (i *Invalidator) InvalidateByTags(tags []string, emit bool) []string {
	removed := i.removeAll(i.store.KeysWithAnyTag(tags))
	i.publish(types.InvalidationEvent{Keys: removed, Tags: tags}, emit)
	return removed
}

// removeAll removes resolved keys, keeping only the ones that still
// existed by the time their removal ran.
func (i *Invalidator) removeAll(keys []string) []string {
	removed := make([]string, 0, len(keys))
	for _, k := range keys {
		if i.store.Remove(k) {
			removed = append(removed, k)
		}
	}
	return removed
}

func (i *Invalidator) publish(ev types.InvalidationEvent, emit bool) {
	if len(ev.Keys) == 0 {
		// no-op invalidation: no event, no error
		return
	}
	i.metrics.Invalidation()
	if emit {
		i.bus.Publish(ev)
	}
}
