package coalesce

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of Trigger calls into a single call of fn with
// the arguments of the last trigger, once delay has passed without another
// trigger.
type Debouncer[T any] struct {
	fn         func(T)
	clock      Clock
	delay      time.Duration
	timer      Timer
	pending    bool
	args       T
	generation uint64
	mu         sync.Mutex
}

type Option func(*options)

type options struct {
	clock Clock
}

func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func NewDebouncer[T any](delay time.Duration, fn func(T), opts ...Option) *Debouncer[T] {
	o := options{clock: RealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Debouncer[T]{
		fn:    fn,
		clock: o.clock,
		delay: delay,
	}
}

// Trigger replaces any pending call and restarts the quiet period.
func (d *Debouncer[T]) Trigger(args T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.generation++
	gen := d.generation
	d.args = args
	d.pending = true
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// SetDelay changes the delay used by subsequent triggers; a scheduled call
// keeps its original deadline.
func (d *Debouncer[T]) SetDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

func (d *Debouncer[T]) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// Cancel drops the pending call, if any.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
}

// Flush runs the pending call now instead of waiting. It reports whether a
// call was made.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	args := d.args
	d.reset()
	d.mu.Unlock()

	d.fn(args)
	return true
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// fire runs only if no trigger, cancel or flush happened after the timer for
// gen was armed.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.generation {
		d.mu.Unlock()
		return
	}
	args := d.args
	d.reset()
	d.mu.Unlock()

	d.fn(args)
}

// reset must be called with mu held.
func (d *Debouncer[T]) reset() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	d.pending = false
	var zero T
	d.args = zero
}
