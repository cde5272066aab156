package dedup

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/query-cache/types"
)

/*
Deduplicator guarantees at most one concurrent producer execution per
key.

If 100 goroutines ask for the same missing key, only ONE runs the
producer. The rest join the in-flight execution and receive the
identical result: the same value on success, the same error on failure.

The per-key state machine is: absent → pending → absent. Both success
and failure return the slot to absent before results are delivered, so
a follow-up call always starts a fresh execution.
*/
type Deduplicator struct {
	sf singleflight.Group

	mu sync.Mutex

	// pending tracks which keys currently have a producer running.
	// The value is a per-execution token so that a producer orphaned by
	// Forget cannot clear the registration of a newer execution when it
	// eventually finishes.
	pending map[string]*execToken

	metrics types.Metrics
}

type execToken struct{}

// New creates a Deduplicator. A nil metrics falls back to NoopMetrics.
func New(metrics types.Metrics) *Deduplicator {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	return &Deduplicator{
		pending: make(map[string]*execToken),
		metrics: metrics,
	}
}

/*
Execute runs producer under the single-flight contract for key.

BEHAVIOR:
---------
- key absent   → register, run producer once, unregister, return
- key pending  → join the in-flight execution; do NOT run producer
- all joined callers see the identical (value, error) pair
- a producer failure clears the slot too; nothing is retained

The producer receives the context of the caller that actually started
the execution. The core imposes no timeout of its own: a caller-side
timeout that abandons the wait still leaves the slot owned by the
running producer until it completes (or until Forget).
*/
func (d *Deduplicator) Execute(ctx context.Context, key string, producer types.Producer) (any, error) {
	// Best-effort join counter: a flight can complete between this
	// check and Do (counting a join that runs fresh), and a joiner can
	// arrive before the producer marks itself pending (missing one).
	// The single-flight guarantee itself comes from sf.Do alone.
	if d.HasPending(key) {
		d.metrics.DedupJoin()
	}
	v, err, _ := d.sf.Do(key, func() (any, error) {
		tok := d.begin(key)
		defer d.end(key, tok)
		return producer(ctx)
	})
	return v, err
}

// HasPending reports whether a producer is currently running for key.
func (d *Deduplicator) HasPending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

/*
Forget clears the in-flight slot for key without waiting for the
producer to finish.

The running producer is NOT cancelled; it runs to completion and its
already-joined callers still get its result. But new Execute calls for
the key start a fresh execution instead of joining the stale one. Used
when a key is explicitly removed from the cache.
*/
func (d *Deduplicator) Forget(key string) {
	d.sf.Forget(key)

	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

func (d *Deduplicator) begin(key string) *execToken {
	tok := &execToken{}
	d.mu.Lock()
	d.pending[key] = tok
	d.mu.Unlock()
	return tok
}

// end clears the registration, but only if it still belongs to this
// execution. After a Forget, a newer execution may own the slot.
func (d *Deduplicator) end(key string, tok *execToken) {
	d.mu.Lock()
	if d.pending[key] == tok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
}
