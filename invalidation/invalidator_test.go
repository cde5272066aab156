package invalidation

import (
	"testing"
	"time"

	"github.com/krisalay/query-cache/event"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

func newFixture() (*Invalidator, *store.Store, <-chan types.InvalidationEvent, func()) {
	st := store.New(4)
	bus := event.NewBus[types.InvalidationEvent](16)
	inv := New(st, bus, nil)

	events := make(chan types.InvalidationEvent, 16)
	unsub := bus.Subscribe(func(ev types.InvalidationEvent) { events <- ev })

	return inv, st, events, func() { unsub(); bus.Close() }
}

func nextEvent(t *testing.T, events <-chan types.InvalidationEvent) types.InvalidationEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation event")
		return types.InvalidationEvent{}
	}
}

func expectNoEvent(t *testing.T, events <-chan types.InvalidationEvent) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

//
// ================= BY KEYS =================
//

func TestInvalidateKeysFiltersToPresent(t *testing.T) {
	inv, st, events, done := newFixture()
	defer done()

	st.Put("a", 1, 0, nil)
	st.Put("b", 2, 0, nil)

	removed := inv.InvalidateKeys([]string{"a", "missing", "b"}, true)

	if len(removed) != 2 || removed[0] != "a" || removed[1] != "b" {
		t.Fatalf("expected [a b], got %v", removed)
	}
	if st.Has("a") || st.Has("b") {
		t.Fatal("expected keys removed from store")
	}

	ev := nextEvent(t, events)
	if len(ev.Keys) != 2 || ev.Keys[0] != "a" || ev.Keys[1] != "b" {
		t.Fatalf("event must list exactly the removed keys, got %v", ev.Keys)
	}
	if ev.Pattern != "" || ev.Tags != nil {
		t.Fatalf("key invalidation must not set pattern/tags: %+v", ev)
	}
}

func TestNoOpInvalidationEmitsNothing(t *testing.T) {
	inv, _, events, done := newFixture()
	defer done()

	if removed := inv.InvalidateKeys([]string{"missing"}, true); len(removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", removed)
	}
	expectNoEvent(t, events)
}

func TestEmitFalseIsSilent(t *testing.T) {
	inv, st, events, done := newFixture()
	defer done()

	st.Put("a", 1, 0, nil)

	if removed := inv.InvalidateKeys([]string{"a"}, false); len(removed) != 1 {
		t.Fatal("expected removal to happen regardless of emit")
	}
	if st.Has("a") {
		t.Fatal("expected key removed")
	}
	expectNoEvent(t, events)
}

//
// ================= BY PATTERN =================
//

func TestInvalidateByPattern(t *testing.T) {
	inv, st, events, done := newFixture()
	defer done()

	st.Put("user_1", 1, 0, nil)
	st.Put("user_42", 2, 0, nil)
	st.Put("users_1", 3, 0, nil)

	removed := inv.InvalidateByPattern("user_*", true)

	if len(removed) != 2 {
		t.Fatalf("expected user_1 and user_42, got %v", removed)
	}
	if !st.Has("users_1") {
		t.Fatal("users_1 must survive a user_* invalidation")
	}

	ev := nextEvent(t, events)
	if ev.Pattern != "user_*" {
		t.Fatalf("expected pattern on the event, got %q", ev.Pattern)
	}
	if len(ev.Keys) != 2 {
		t.Fatalf("expected the resolved keys on the event, got %v", ev.Keys)
	}
}

func TestInvalidateByPatternNoMatches(t *testing.T) {
	inv, st, events, done := newFixture()
	defer done()

	st.Put("post_1", 1, 0, nil)

	if removed := inv.InvalidateByPattern("user_*", true); len(removed) != 0 {
		t.Fatalf("expected no removals, got %v", removed)
	}
	expectNoEvent(t, events)
}

//
// ================= BY TAGS =================
//

func TestInvalidateByTags(t *testing.T) {
	inv, st, events, done := newFixture()
	defer done()

	st.Put("u1", 1, 0, []string{"user"})
	st.Put("u2", 2, 0, []string{"user", "admin"})
	st.Put("p1", 3, 0, []string{"post"})
	st.Put("plain", 4, 0, nil)

	removed := inv.InvalidateByTags([]string{"user"}, true)

	if len(removed) != 2 {
		t.Fatalf("expected exactly the user-tagged keys, got %v", removed)
	}
	if !st.Has("p1") || !st.Has("plain") {
		t.Fatal("differently-tagged and untagged keys must survive")
	}

	ev := nextEvent(t, events)
	if len(ev.Tags) != 1 || ev.Tags[0] != "user" {
		t.Fatalf("expected tags on the event, got %v", ev.Tags)
	}
	if len(ev.Keys) != 2 {
		t.Fatalf("event keys must equal the removed set, got %v", ev.Keys)
	}
}
