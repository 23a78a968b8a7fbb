package coalesce

import (
	"sync"
	"time"
)

// Value holds the latest of a rapidly changing value and publishes it to
// subscribers only after it has been stable for the delay.
type Value[T any] struct {
	debouncer   *Debouncer[T]
	latest      T
	published   T
	subscribers map[uint64]func(T)
	nextID      uint64
	mu          sync.RWMutex
}

func NewValue[T any](initial T, delay time.Duration, opts ...Option) *Value[T] {
	v := &Value[T]{
		latest:      initial,
		published:   initial,
		subscribers: make(map[uint64]func(T)),
	}
	v.debouncer = NewDebouncer(delay, v.publish, opts...)
	return v
}

func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	v.latest = value
	v.mu.Unlock()

	v.debouncer.Trigger(value)
}

// Latest returns the most recent Set value, published or not.
func (v *Value[T]) Latest() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.latest
}

// Published returns the last value delivered to subscribers.
func (v *Value[T]) Published() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.published
}

func (v *Value[T]) SetDelay(delay time.Duration) {
	v.debouncer.SetDelay(delay)
}

// Flush publishes a pending value immediately.
func (v *Value[T]) Flush() bool {
	return v.debouncer.Flush()
}

func (v *Value[T]) Cancel() {
	v.debouncer.Cancel()
}

func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.subscribers[id] = fn

	return func() {
		v.mu.Lock()
		delete(v.subscribers, id)
		v.mu.Unlock()
	}
}

func (v *Value[T]) publish(value T) {
	v.mu.Lock()
	v.published = value
	subscribers := make([]func(T), 0, len(v.subscribers))
	for _, fn := range v.subscribers {
		subscribers = append(subscribers, fn)
	}
	v.mu.Unlock()

	for _, fn := range subscribers {
		fn(value)
	}
}
