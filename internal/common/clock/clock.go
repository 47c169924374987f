package clock

import "time"

// Clock provides the current time and single-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable single-shot timer. Stop reports whether the call
// prevented the timer from firing; callbacks that already fired are not undone.
type Timer interface {
	Stop() bool
}

// DefaultClock implements Clock using the system clock
type DefaultClock struct{}

// New returns the system clock.
func New() *DefaultClock {
	return &DefaultClock{}
}

// Now returns the current time
func (c *DefaultClock) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine after d elapses.
func (c *DefaultClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
