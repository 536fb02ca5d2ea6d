package events

// CallbackEvent calls listener funcs synchronously on the notifying goroutine
type CallbackEvent[T any] struct {
	reg *registry[func(T), T]
}

// NewCallbackEvent creates a CallbackEvent. With replayLast set, a new listener
// is called immediately with the most recent value if Notify has been called before.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{reg: newRegistry[func(T), T](replayLast)}
}

// Listen registers callback and returns its deregistration func
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("CallbackEvent: callback cannot be nil")
	}
	remove, last, replay := e.reg.add(callback)
	if replay {
		callback(last)
	}
	return remove
}

// Notify calls every listener with value, outside the registry lock
func (e *CallbackEvent[T]) Notify(value T) {
	for _, callback := range e.reg.record(value) {
		callback(value)
	}
}

func (e *CallbackEvent[T]) Last() (T, bool) {
	return e.reg.lastValue()
}

func (e *CallbackEvent[T]) ListenerCount() int {
	return e.reg.count()
}
