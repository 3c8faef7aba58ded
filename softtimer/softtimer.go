// Package softtimer provides polled deadlines driven by a free-running
// monotonic counter. Wall-clock changes (settimeofday) never move them.
package softtimer

import (
	"sync"
	"time"
)

// Clock is a free-running monotonic counter.
type Clock interface {
	// Elapsed returns the time since an arbitrary fixed origin.
	Elapsed() time.Duration
}

type systemClock struct {
	origin time.Time
}

// System returns a Clock backed by the runtime's monotonic clock.
func System() Clock {
	return &systemClock{origin: time.Now()}
}

func (c *systemClock) Elapsed() time.Duration {
	return time.Since(c.origin)
}

// Fake is a manually advanced Clock for tests and simulations.
type Fake struct {
	mu  sync.Mutex
	now time.Duration
}

// NewFake returns a Fake clock at zero.
func NewFake() *Fake {
	return &Fake{}
}

// Elapsed implements Clock.
func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}

// Timer is a deadline on a Clock. An unstarted Timer is expired.
type Timer struct {
	clock    Clock
	period   time.Duration
	deadline time.Duration
	armed    bool
}

// New returns an expired Timer on clock.
func New(clock Clock) Timer {
	return Timer{clock: clock}
}

// Start arms the timer to expire d from now.
func (t *Timer) Start(d time.Duration) {
	t.period = d
	t.deadline = t.clock.Elapsed() + d
	t.armed = true
}

// Rearm is Start with a new duration.
func (t *Timer) Rearm(d time.Duration) {
	t.Start(d)
}

// Repeat re-arms the timer one period after its previous deadline, so a
// periodic timer polled late does not drift.
func (t *Timer) Repeat() {
	if !t.armed {
		t.Start(t.period)
		return
	}
	t.deadline += t.period
}

// Expire forces the timer into the expired state.
func (t *Timer) Expire() {
	t.armed = false
}

// Expired reports whether the deadline has passed.
func (t *Timer) Expired() bool {
	if !t.armed || t.clock == nil {
		return true
	}
	return t.clock.Elapsed() >= t.deadline
}

// Remaining returns the time left before expiry, zero when expired.
func (t *Timer) Remaining() time.Duration {
	if t.Expired() {
		return 0
	}
	return t.deadline - t.clock.Elapsed()
}
