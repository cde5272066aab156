package event

import (
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan int, n int) []int {
	t.Helper()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
	return out
}

//
// ================= FAN-OUT =================
//

func TestEverySubscriberReceivesEveryEvent(t *testing.T) {
	b := NewBus[int](8)
	defer b.Close()

	got1 := make(chan int, 8)
	got2 := make(chan int, 8)

	unsub1 := b.Subscribe(func(v int) { got1 <- v })
	defer unsub1()
	unsub2 := b.Subscribe(func(v int) { got2 <- v })
	defer unsub2()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	for _, ch := range []chan int{got1, got2} {
		vs := collect(t, ch, 3)
		for i, want := range []int{1, 2, 3} {
			if vs[i] != want {
				t.Fatalf("expected %v in order, got %v", []int{1, 2, 3}, vs)
			}
		}
	}
}

func TestSubscriberOnlySeesEventsAfterSubscribing(t *testing.T) {
	b := NewBus[int](8)
	defer b.Close()

	b.Publish(1)

	got := make(chan int, 8)
	unsub := b.Subscribe(func(v int) { got <- v })
	defer unsub()

	b.Publish(2)

	if vs := collect(t, got, 1); vs[0] != 2 {
		t.Fatalf("expected only the post-subscribe event, got %v", vs)
	}
}

//
// ================= UNSUBSCRIBE =================
//

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus[int](8)
	defer b.Close()

	got := make(chan int, 8)
	unsub := b.Subscribe(func(v int) { got <- v })

	b.Publish(1)
	collect(t, got, 1)

	unsub()
	// detaching twice never errors
	unsub()

	b.Publish(2)

	select {
	case v := <-got:
		t.Fatalf("expected no delivery after unsubscribe, got %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
}

//
// ================= SLOW SUBSCRIBERS =================
//

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBus[int](1)
	defer b.Close()

	// The slow subscriber parks forever on its first event.
	block := make(chan struct{})
	unsubSlow := b.Subscribe(func(v int) { <-block })
	defer unsubSlow()

	fast := make(chan int, 16)
	unsubFast := b.Subscribe(func(v int) { fast <- v })
	defer unsubFast()

	// Far more events than the slow subscriber's buffer can hold.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The fast subscriber still gets everything.
	vs := collect(t, fast, 10)
	for i, v := range vs {
		if v != i {
			t.Fatalf("expected in-order delivery, got %v", vs)
		}
	}

	close(block)
}

//
// ================= CLOSE =================
//

func TestCloseDrainsAndIsIdempotent(t *testing.T) {
	b := NewBus[int](8)

	got := make(chan int, 8)
	b.Subscribe(func(v int) { got <- v })

	b.Publish(1)
	b.Close()
	b.Close()

	// The queued event was drained before Close returned.
	select {
	case v := <-got:
		if v != 1 {
			t.Fatalf("expected 1, got %v", v)
		}
	default:
		t.Fatal("expected the queued event to be delivered during Close")
	}

	// Publishing and subscribing after Close are no-ops.
	b.Publish(2)
	unsub := b.Subscribe(func(v int) { t.Error("subscriber attached after Close") })
	unsub()
}
