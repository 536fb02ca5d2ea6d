package events

import "sync"

// registry tracks listeners by id and remembers the last notified value
type registry[L any, T any] struct {
	mu          sync.RWMutex
	listeners   map[uint64]L
	nextID      uint64
	replay      bool
	last        T
	hasNotified bool
}

func newRegistry[L any, T any](replay bool) *registry[L, T] {
	return &registry[L, T]{
		listeners: make(map[uint64]L),
		replay:    replay,
	}
}

// add stores l and returns its removal func plus the value to replay, if any
func (r *registry[L, T]) add(l L) (func(), T, bool) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	last, shouldReplay := r.last, r.replay && r.hasNotified
	r.mu.Unlock()

	remove := func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
	return remove, last, shouldReplay
}

// record remembers value (when replaying) and returns a copy of the current listeners
func (r *registry[L, T]) record(value T) []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replay {
		r.last = value
		r.hasNotified = true
	}
	out := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

func (r *registry[L, T]) lastValue() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.replay && r.hasNotified
}

func (r *registry[L, T]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
