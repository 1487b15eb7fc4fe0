// Package notify delivers position updates to listeners without letting a
// slow listener hold up the motion engine.
package notify

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/positioner/internal/timeutil"
)

// Coalescer is a single-slot "latest update" queue. Producers never block:
// Offer swaps the pending value and, if no consumer is running, starts one.
// At most one consumer goroutine is active at a time, enforced by an atomic
// flag rather than a lock. Consecutive deliveries are spaced by at least
// the minimum interval; values offered in between are coalesced and only
// the most recent is delivered.
type Coalescer[T any] struct {
	latest   atomic.Pointer[T]
	active   atomic.Bool
	closed   atomic.Bool
	interval time.Duration
	clock    timeutil.Clock
	deliver  func(T)

	// last is only touched by the active consumer.
	last time.Time
}

// NewCoalescer returns a Coalescer calling deliver with the latest value at
// most once per interval. A nil clock uses the real clock.
func NewCoalescer[T any](interval time.Duration, clock timeutil.Clock, deliver func(T)) *Coalescer[T] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Coalescer[T]{interval: interval, clock: clock, deliver: deliver}
}

// Offer replaces the pending value and makes sure a consumer will deliver it.
func (c *Coalescer[T]) Offer(v T) {
	if c.closed.Load() {
		return
	}
	c.latest.Store(&v)
	if c.active.CompareAndSwap(false, true) {
		go c.drain()
	}
}

// Active reports whether a consumer is currently running.
func (c *Coalescer[T]) Active() bool { return c.active.Load() }

// Close stops further deliveries. A delivery already in progress completes.
func (c *Coalescer[T]) Close() {
	c.closed.Store(true)
	c.latest.Store(nil)
}

func (c *Coalescer[T]) drain() {
	for {
		if !c.last.IsZero() {
			if wait := c.interval - c.clock.Since(c.last); wait > 0 {
				c.clock.Sleep(wait)
			}
		}
		v := c.latest.Swap(nil)
		if v == nil || c.closed.Load() {
			c.active.Store(false)
			// A producer may have stored after the swap while still seeing
			// the flag set; take the slot back if nobody else has.
			if c.closed.Load() || c.latest.Load() == nil || !c.active.CompareAndSwap(false, true) {
				return
			}
			continue
		}
		c.deliver(*v)
		c.last = c.clock.Now()
	}
}
