package mutation

import (
	"sync"
	"testing"
	"time"

	"github.com/krisalay/query-cache/event"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

func newFixture() (*Mutator, *store.Store, <-chan types.MutationEvent, func()) {
	st := store.New(4)
	bus := event.NewBus[types.MutationEvent](16)
	mut := New(st, bus, nil)

	events := make(chan types.MutationEvent, 16)
	unsub := bus.Subscribe(func(ev types.MutationEvent) { events <- ev })

	return mut, st, events, func() { unsub(); bus.Close() }
}

func nextEvent(t *testing.T, events <-chan types.MutationEvent) types.MutationEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mutation event")
		return types.MutationEvent{}
	}
}

//
// ================= SINGLE UPDATE =================
//

func TestUpdateSingleWritesAndEmits(t *testing.T) {
	mut, st, events, done := newFixture()
	defer done()

	mut.UpdateSingle("k", "v", 0, []string{"t"})

	ent, ok := st.Get("k")
	if !ok || ent.Value != "v" {
		t.Fatalf("expected v stored, got %v (ok=%v)", ent, ok)
	}

	ev := nextEvent(t, events)
	if len(ev.Keys) != 1 || ev.Keys[0] != "k" {
		t.Fatalf("expected [k], got %v", ev.Keys)
	}
	if ev.Data["k"] != "v" {
		t.Fatalf("expected post-write data in the event, got %v", ev.Data)
	}
	if len(ev.Tags) != 1 || ev.Tags[0] != "t" {
		t.Fatalf("expected the write's tags on the event, got %v", ev.Tags)
	}
}

//
// ================= UPDATER =================
//

func TestUpdateSingleWithSeesOldValue(t *testing.T) {
	mut, _, events, done := newFixture()
	defer done()

	v := mut.UpdateSingleWith("counter", func(old any, ok bool) any {
		if ok {
			t.Fatal("expected absent on first update")
		}
		return 1
	}, 0, nil)
	if v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
	nextEvent(t, events)

	v = mut.UpdateSingleWith("counter", func(old any, ok bool) any {
		return old.(int) + 1
	}, 0, nil)
	if v != 2 {
		t.Fatalf("expected 2, got %v", v)
	}
	ev := nextEvent(t, events)
	if ev.Data["counter"] != 2 {
		t.Fatalf("expected the event to carry the written value, got %v", ev.Data)
	}
}

func TestConcurrentUpdatersCompose(t *testing.T) {
	mut, st, _, done := newFixture()
	defer done()

	mut.UpdateSingle("counter", 0, 0, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mut.UpdateSingleWith("counter", func(old any, ok bool) any {
				return old.(int) + 1
			}, 0, nil)
		}()
	}
	wg.Wait()

	ent, _ := st.Get("counter")
	if ent.Value != n {
		t.Fatalf("lost updates: expected %d, got %v", n, ent.Value)
	}
}

//
// ================= BATCH =================
//

func TestUpdateBatchEmitsOneAggregatedEvent(t *testing.T) {
	mut, st, events, done := newFixture()
	defer done()

	mut.UpdateBatch(
		[]string{"k1", "k2"},
		map[string]any{"k1": 1, "k2": 2},
		0,
		true,
	)

	ent, _ := st.Get("k1")
	if ent.Value != 1 {
		t.Fatalf("expected k1 == 1, got %v", ent.Value)
	}

	ev := nextEvent(t, events)
	if len(ev.Keys) != 2 || ev.Keys[0] != "k1" || ev.Keys[1] != "k2" {
		t.Fatalf("expected one event with both keys, got %v", ev.Keys)
	}
	if ev.Data["k1"] != 1 || ev.Data["k2"] != 2 {
		t.Fatalf("expected batch data, got %v", ev.Data)
	}

	// exactly one event for the whole batch
	select {
	case extra := <-events:
		t.Fatalf("expected a single aggregated event, also got %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateBatchSilent(t *testing.T) {
	mut, st, events, done := newFixture()
	defer done()

	mut.UpdateBatch([]string{"k1"}, map[string]any{"k1": 1}, 0, false)

	if !st.Has("k1") {
		t.Fatal("expected the write to happen regardless of emit")
	}
	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateBatchEmptyIsNoOp(t *testing.T) {
	mut, _, events, done := newFixture()
	defer done()

	mut.UpdateBatch(nil, nil, 0, true)

	select {
	case ev := <-events:
		t.Fatalf("expected no event for an empty batch, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
