package types

/*
This file defines the two event shapes the cache broadcasts.

Invalidation and mutation are deliberately separate signals:
- Invalidation says "this data is GONE, re-fetch if you still need it"
- Mutation says "here is the NEW data, no re-fetch required"

Subscribers that conflate the two end up re-fetching data they were just
handed, so the cache never emits one where the other is meant.
*/

// InvalidationEvent describes one invalidation call that removed at least
// one key. A call that removes nothing emits nothing.
type InvalidationEvent struct {
	// Keys lists exactly the keys that were removed, no more, no less.
	Keys []string

	// Pattern is set when the invalidation was pattern-driven ("user_*").
	// Empty otherwise.
	Pattern string

	// Tags is set when the invalidation was tag-driven. Nil otherwise.
	Tags []string
}

// MutationEvent describes one mutation call (single or batch), emitted
// after the store write completed. It describes the post-write state.
type MutationEvent struct {
	// Keys lists the keys that were written, in write order.
	Keys []string

	// Data maps every written key to its new value.
	Data map[string]any

	// Pattern is optional caller-supplied context. Empty otherwise.
	Pattern string

	// Tags carries the tags the mutation attached to its write. Nil for
	// batch updates, which write untagged.
	Tags []string
}

// InvalidationHandler observes invalidation events.
type InvalidationHandler func(InvalidationEvent)

// MutationHandler observes mutation events.
type MutationHandler func(MutationEvent)
