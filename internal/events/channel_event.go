package events

import "sync/atomic"

// ChannelEvent fans values out to listener channels without ever blocking the notifier.
// A listener whose buffer is full misses that value and the miss is counted.
type ChannelEvent[T any] struct {
	reg     *registry[chan<- T, T]
	dropped atomic.Uint64
}

// NewChannelEvent creates a ChannelEvent. With replayLast set, a new listener
// immediately receives the most recent value if Notify has been called before.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{reg: newRegistry[chan<- T, T](replayLast)}
}

// Listen registers ch and returns its deregistration func
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("ChannelEvent: channel cannot be nil")
	}
	remove, last, replay := e.reg.add(ch)
	if replay {
		e.send(ch, last)
	}
	return remove
}

// Notify offers value to every listener and returns how many accepted it
func (e *ChannelEvent[T]) Notify(value T) int {
	delivered := 0
	for _, ch := range e.reg.record(value) {
		if e.send(ch, value) {
			delivered++
		}
	}
	return delivered
}

func (e *ChannelEvent[T]) send(ch chan<- T, value T) bool {
	select {
	case ch <- value:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Last returns the most recent value when the event replays, false otherwise
func (e *ChannelEvent[T]) Last() (T, bool) {
	return e.reg.lastValue()
}

// Dropped is the number of deliveries skipped because a listener was full
func (e *ChannelEvent[T]) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *ChannelEvent[T]) ListenerCount() int {
	return e.reg.count()
}
