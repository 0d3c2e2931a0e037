package events

import (
	"fmt"
	"os"
	"sync"
)

// Listener receives published events.
type Listener func(Event)

// Subscription identifies a registered listener and can remove it.
type Subscription struct {
	id  int64
	bus *Bus
}

// Unsubscribe removes the listener from the bus. Safe to call more than
// once.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.remove(s.id)
		s.bus = nil
	}
}

type listenerEntry struct {
	id int64
	fn Listener
}

// Bus delivers events to listeners synchronously, in registration order.
// A panicking listener is recovered so it cannot abort the publishing
// call or starve later listeners.
type Bus struct {
	mu        sync.RWMutex
	nextID    int64
	listeners []listenerEntry
	panics    int64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener for all events. Returns a subscription
// that removes the listener when no longer wanted.
func (b *Bus) Subscribe(fn Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})
	return &Subscription{id: id, bus: b}
}

func (b *Bus) remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.listeners {
		if entry.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every listener in registration order. The
// call returns after all listeners have run.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	snapshot := make([]listenerEntry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, entry := range snapshot {
		b.deliver(entry.fn, e)
	}
}

func (b *Bus) deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.panics++
			b.mu.Unlock()
			fmt.Fprintf(os.Stderr, "warning: event listener panicked on %s: %v\n", e.Type(), r)
		}
	}()
	fn(e)
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// PanicCount returns how many listener invocations have panicked.
func (b *Bus) PanicCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.panics
}
