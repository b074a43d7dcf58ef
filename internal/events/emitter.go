// Package events provides a minimal synchronous publish/subscribe primitive
// used to fan editor and filesystem notifications out to interested parties.
package events

import "sync"

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Emitter delivers values to subscribers in subscription order. The zero
// value is ready to use. Emit calls each callback synchronously on the
// emitting goroutine; callbacks must not block for long.
type Emitter[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

// Subscribe registers fn and returns a function that removes the
// registration. The returned function is safe to call more than once.
func (e *Emitter[T]) Subscribe(fn func(T)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit invokes every subscriber with v. The subscriber list is snapshotted
// up front, so callbacks may subscribe or unsubscribe without deadlocking;
// a callback removed mid-emit may still receive the value being delivered.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]subscriber[T], len(e.subs))
	copy(snapshot, e.subs)
	e.mu.Unlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Len reports the number of active subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
