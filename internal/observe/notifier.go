// Package observe provides an in-process push-model state container:
// components publish every state transition to subscribed consumers.
package observe

import (
	"sort"
	"sync"
)

// Notifier fans a state value out to all subscribed listeners. Safe for
// concurrent use. Listeners are invoked synchronously in subscription order;
// a listener that blocks delays the publisher, so consumers doing slow work
// should hand the value off to their own goroutine.
type Notifier[T any] struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(T)
}

// NewNotifier creates an empty Notifier.
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{
		listeners: make(map[int]func(T)),
	}
}

// Subscribe registers a listener for every subsequent Publish.
// The returned function cancels the subscription; calling it more than once is harmless.
func (n *Notifier[T]) Subscribe(fn func(T)) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Publish delivers the value to every active listener.
func (n *Notifier[T]) Publish(value T) {
	n.mu.RLock()
	ids := make([]int, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.listeners[id])
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(value)
	}
}
