package event

import "sync"

/*
Bus is a broadcast channel: every subscriber receives every event
published after it subscribed.

DELIVERY MODEL:
---------------
Each subscriber gets its own buffered channel and its own drain
goroutine that feeds the handler. Publish pushes into every channel and
returns; it never waits for handlers.

A subscriber that falls a full buffer behind starts losing events; the
publisher drops instead of blocking. One slow consumer therefore cannot
stall the cache or starve the other consumers; it only degrades its own
view.

Within one subscriber, events arrive in publish order.
*/
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]chan T
	nextID uint64
	buffer int
	closed bool
	wg     sync.WaitGroup
}

// DefaultBuffer is the per-subscriber queue depth used when NewBus is
// given a non-positive buffer.
const DefaultBuffer = 128

// NewBus creates a Bus whose subscribers each buffer up to buffer
// undelivered events.
func NewBus[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus[T]{
		subs:   make(map[uint64]chan T),
		buffer: buffer,
	}
}

/*
Subscribe registers handler and returns its unsubscribe function.

The handler runs on a dedicated goroutine owned by the bus. Unsubscribe
stops delivery, lets queued events drain, and is safe to call more than
once. Unsubscribing never errors.
*/
func (b *Bus[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	ch := make(chan T, b.buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range ch {
			handler(ev)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

/*
Publish delivers ev to every current subscriber.

Publish holds the read lock while sending, so a concurrent unsubscribe
(which closes the channel under the write lock) can never race a send
onto a closed channel.
*/
func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			// queued for this subscriber
		default:
			// subscriber is a full buffer behind: drop rather than block
		}
	}
}

// SubscriberCount returns how many subscribers are attached.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

/*
Close detaches every subscriber and waits for queued events to finish
draining. Publish and Subscribe after Close are no-ops. Safe to call
more than once.
*/
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
