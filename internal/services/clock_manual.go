package services

import (
	"sync"
	"time"
)

// ManualClock is a Clock that only moves when told to. Due callbacks run
// synchronously inside Advance, in deadline order. A jitter function, when
// set, delays each callback to simulate a late timer.
type ManualClock struct {
	mu     sync.Mutex
	now    int64
	timers []*manualTimer
	jitter func() time.Duration
}

type manualTimer struct {
	clock   *ManualClock
	when    int64
	f       func()
	stopped bool
}

func NewManualClock(startNs int64) *ManualClock {
	return &ManualClock{now: startNs}
}

// SetJitter installs a function returning the extra lateness of each callback.
func (c *ManualClock) SetJitter(jitter func() time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jitter = jitter
}

func (c *ManualClock) NowNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t := &manualTimer{clock: c, when: c.now + int64(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + int64(d)
	c.mu.Unlock()
	c.AdvanceTo(target)
}

// AdvanceTo moves the clock to targetNs, firing every timer that falls due.
// With jitter the clock may end up past targetNs.
func (c *ManualClock) AdvanceTo(targetNs int64) {
	for {
		c.mu.Lock()
		next := c.nextDueLocked(targetNs)
		if next == nil {
			if targetNs > c.now {
				c.now = targetNs
			}
			c.mu.Unlock()
			return
		}
		next.stopped = true
		fireAt := next.when
		if c.jitter != nil {
			fireAt += int64(c.jitter())
		}
		if fireAt > c.now {
			c.now = fireAt
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *ManualClock) nextDueLocked(targetNs int64) *manualTimer {
	var next *manualTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.when <= targetNs && (next == nil || t.when < next.when) {
			next = t
		}
	}
	c.timers = live
	return next
}
