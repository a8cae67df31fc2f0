// Package broadcast fans typed events out to subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// Hub delivers values to every current subscriber in subscription order.
// Publish calls handlers synchronously on the caller's goroutine, so values
// from a single publisher arrive in order.
type Hub[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id      uint64
	fn      func(T)
	removed *atomic.Bool
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is idempotent. Once it returns, no new delivery to fn
// starts; a delivery already running on another goroutine may still finish.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	h.next++
	id := h.next
	removed := new(atomic.Bool)
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn, removed: removed})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			removed.Store(true)
			h.remove(id)
		})
	}
}

// Publish hands v to every subscriber registered at the time of the call.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	subs := make([]subscriber[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		if s.removed.Load() {
			continue
		}
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}
