// Package events provides an instance-owned observer registry. Each owner
// creates its own Registry and closes it when torn down; nothing here is
// process-global.
package events

import (
	"sync"
)

// Kind names a class of event
type Kind string

// Handler receives one event
type Handler[E any] func(E)

type subscription[E any] struct {
	id      uint64
	handler Handler[E]
}

// Registry maps event kinds to ordered handler sets
type Registry[E any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscription[E]
	closed bool
}

// NewRegistry creates an empty registry
func NewRegistry[E any]() *Registry[E] {
	return &Registry[E]{subs: make(map[Kind][]subscription[E])}
}

// Subscribe registers handler for kind and returns a disposer. Calling the
// disposer more than once is a no-op. Subscribing to a closed registry
// returns a no-op disposer and the handler is never called.
func (r *Registry[E]) Subscribe(kind Kind, handler Handler[E]) func() {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	r.nextID++
	id := r.nextID
	r.subs[kind] = append(r.subs[kind], subscription[E]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(kind, id) })
	}
}

func (r *Registry[E]) unsubscribe(kind Kind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[kind]
	for i, s := range subs {
		if s.id == id {
			// copy so an in-flight Emit keeps iterating its own slice
			next := make([]subscription[E], 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.subs, kind)
			} else {
				r.subs[kind] = next
			}
			return
		}
	}
}

// Emit calls every handler for kind in subscription order. Handlers run on
// the caller's goroutine and may subscribe or dispose without deadlocking.
func (r *Registry[E]) Emit(kind Kind, event E) {
	r.mu.RLock()
	subs := r.subs[kind]
	r.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Count returns the number of handlers subscribed to kind
func (r *Registry[E]) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[kind])
}

// Close drops every subscription; later Subscribe calls are ignored
func (r *Registry[E]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.subs = make(map[Kind][]subscription[E])
}
