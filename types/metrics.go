package types

// This file defines how the cache reports what it is doing.

/*
Metrics is the set of events the cache wants to count.
The cache calls these methods whenever the matching event happens.
*/
type Metrics interface {

	// Hit is called when a fetch is served from a fresh cached entry.
	Hit()

	// Miss is called when a fetch finds no entry, or only a stale one,
	// and has to run the producer.
	Miss()

	// Fill is called when a producer result is written into the store.
	Fill()

	// Mutation is called once per mutation call (single or batch).
	Mutation()

	// Invalidation is called once per invalidation call that removed
	// at least one key.
	Invalidation()

	// Expire is called for every key the periodic sweep removes because
	// its TTL ran out.
	Expire()

	// DedupJoin is called when a caller joins an already in-flight
	// producer instead of starting its own. The count is best-effort
	// under contention, not an exact join tally.
	DedupJoin()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

Users who do not care about metrics should not have to implement them,
and the cache should not need nil checks everywhere. NoopMetrics is the
default whenever no Metrics is supplied.
*/
type NoopMetrics struct{}

// All methods below intentionally do nothing.

func (NoopMetrics) Hit()          {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Fill()         {}
func (NoopMetrics) Mutation()     {}
func (NoopMetrics) Invalidation() {}
func (NoopMetrics) Expire()       {}
func (NoopMetrics) DedupJoin()    {}
