// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements archive.Clock on the process clock. Times are always UTC
// so ledger entries format directly as HTTP dates.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// After fires once d has elapsed. A non-positive d fires immediately.
func (Clock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now().UTC()
		return ch
	}
	return time.After(d)
}
