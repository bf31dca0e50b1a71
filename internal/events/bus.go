package events

import (
	"sync"
	"time"
)

// Handler processes a single event
type Handler func(Event)

// Bus distributes events to subscribed handlers.
// Emit is synchronous: handlers run on the emitting goroutine in
// subscription order, so handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit delivers the event to all subscribed handlers.
// Sets the event timestamp if unset. No-op after Close.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Close shuts down the event bus; subsequent emits are dropped
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
