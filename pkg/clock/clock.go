package clock

import (
	"slices"
	"sync"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Clock is the source of time for session timeouts and upload dates
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending call scheduled with AfterFunc
type Timer interface {
	// Stop cancels the call, and returns false if it already fired or
	// was stopped
	Stop() bool
}

// Fake is a clock which only moves when Advance is called. Calls
// scheduled with AfterFunc run synchronously within Advance, in deadline
// order.
type Fake struct {
	sync.Mutex
	now     time.Time
	waiters []*waiter
}

type realClock struct{}

type waiter struct {
	fake     *Fake
	deadline time.Time
	fn       func()
	done     bool
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Real returns the wall clock
func Real() Clock {
	return realClock{}
}

// NewFake returns a fake clock which starts at the given time
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - REAL

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - FAKE

func (c *Fake) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.Lock()
	defer c.Unlock()
	w := &waiter{fake: c, deadline: c.now.Add(d), fn: f}
	c.waiters = append(c.waiters, w)
	return w
}

// Advance moves the clock forward and runs every call which is due.
// A call must not advance the clock itself.
func (c *Fake) Advance(d time.Duration) {
	c.Lock()
	c.now = c.now.Add(d)
	var due []*waiter
	c.waiters = slices.DeleteFunc(c.waiters, func(w *waiter) bool {
		if w.done {
			return true
		}
		if !w.deadline.After(c.now) {
			w.done = true
			due = append(due, w)
			return true
		}
		return false
	})
	c.Unlock()

	slices.SortStableFunc(due, func(a, b *waiter) int {
		return a.deadline.Compare(b.deadline)
	})
	for _, w := range due {
		w.fn()
	}
}

// Pending returns the number of calls which have not yet run
func (c *Fake) Pending() int {
	c.Lock()
	defer c.Unlock()
	var n int
	for _, w := range c.waiters {
		if !w.done {
			n++
		}
	}
	return n
}

func (w *waiter) Stop() bool {
	w.fake.Lock()
	defer w.fake.Unlock()
	if w.done {
		return false
	}
	w.done = true
	return true
}
