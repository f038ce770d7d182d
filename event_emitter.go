package wsnotify

import (
	"sync"
)

type callback[T any] func(T)

// EventEmitterCallback maps events (of type K) to listener callbacks receiving V.
type EventEmitterCallback[K comparable, V any] struct {
	listeners map[K][]callback[V]
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitterCallback[K, V] {
	return &EventEmitterCallback[K, V]{
		listeners: make(map[K][]callback[V]),
	}
}

// On registers a new listener for the given event.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit calls every listener registered for event, in registration order, on the
// calling goroutine. Listeners run without the lock held, so they may call On or
// Reset themselves.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) int {
	e.lock.RLock()
	listeners := e.listeners[event]
	e.lock.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
	return len(listeners)
}

// Has reports whether anyone listens for event.
func (e *EventEmitterCallback[K, V]) Has(event K) bool {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event]) > 0
}

// Reset drops every listener.
func (e *EventEmitterCallback[K, V]) Reset() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]callback[V])
}
