// Package broadcast carries "storage changed" notifications between cart
// instances that share a store.
package broadcast

import (
	"context"
	"sync"
)

// Notification says that origin wrote key of session. Version increases
// with every write of the same origin.
type Notification struct {
	Session string `json:"session"`
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Version uint64 `json:"version"`
}

type Bus interface {
	Publish(ctx context.Context, n Notification) error
	// Subscribe registers fn for every notification. The returned function
	// removes the subscription.
	Subscribe(fn func(Notification)) (unsubscribe func())
}

// Hub is an in-process Bus. Publish delivers synchronously on the caller's
// goroutine, so subscribers must not publish from inside fn.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Notification)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Notification))}
}

func (h *Hub) Publish(_ context.Context, n Notification) error {
	h.dispatch(n)
	return nil
}

func (h *Hub) Subscribe(fn func(Notification)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) dispatch(n Notification) {
	h.mu.RLock()
	fns := make([]func(Notification), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(n)
	}
}
