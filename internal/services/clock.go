package services

import (
	"time"
)

// Clock is the monotonic time source of the scheduler.
type Clock interface {
	// NowNs returns nanoseconds since an arbitrary monotonic epoch.
	NowNs() int64
	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type systemClock struct {
	epoch time.Time
}

// NewSystemClock returns a Clock backed by the runtime's monotonic clock.
func NewSystemClock() Clock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) NowNs() int64 {
	return int64(time.Since(c.epoch))
}

func (c *systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
