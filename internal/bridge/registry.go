package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a set of callbacks that all receive every published value.
type Registry[T any] struct {
	mu   sync.RWMutex
	subs map[string]func(T)
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{subs: make(map[string]func(T))}
}

// Subscribe adds fn and returns the handle that removes it.
func (r *Registry[T]) Subscribe(fn func(T)) *Subscription {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs[id] = fn
	r.mu.Unlock()
	return &Subscription{id: id, cancel: func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}}
}

// Publish calls every current subscriber with v. Subscribers run on the
// caller's goroutine, outside the registry lock.
func (r *Registry[T]) Publish(v T) {
	r.mu.RLock()
	fns := make([]func(T), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Subscription is a handle to one registered callback.
type Subscription struct {
	id     string
	cancel func()
	once   sync.Once
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Cancel removes the callback. Calling it more than once is harmless.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
