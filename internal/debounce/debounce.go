// Package debounce coalesces bursts of calls into one delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays fn until no new call has arrived for the configured
// quiet period, then runs it once with the most recent argument.
//
// fn never runs concurrently with itself. All methods are safe for
// concurrent use.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	latest  T
	pending bool
	stopped bool

	runMu sync.Mutex
}

// New returns a Debouncer that calls fn after delay of quiet.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call schedules fn(v), replacing any pending argument and restarting the
// quiet period. Calls after Stop are ignored.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.latest = v
	d.pending = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

// Take cancels the pending call and returns its argument. ok is false when
// nothing was pending.
func (d *Debouncer[T]) Take() (v T, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.takeLocked()
}

// Flush runs a pending call immediately on the caller's goroutine. It
// reports whether there was one.
func (d *Debouncer[T]) Flush() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	v, ok := d.Take()
	if ok {
		d.fn(v)
	}
	return ok
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop drops any pending call and ignores future ones.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.takeLocked()
	d.stopped = true
}

func (d *Debouncer[T]) fire() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	v, ok := d.Take()
	if ok {
		d.fn(v)
	}
}

func (d *Debouncer[T]) takeLocked() (v T, ok bool) {
	if d.timer != nil {
		d.timer.Stop()
	}
	if !d.pending {
		return v, false
	}
	v = d.latest
	var zero T
	d.latest = zero
	d.pending = false
	return v, true
}
