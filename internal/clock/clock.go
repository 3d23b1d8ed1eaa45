// Package clock provides a testable clock for cookie expiry and state timestamps.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface for getting the current time.
type Clock interface {
	Now() time.Time
}

// Real is the production clock -- uses system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now() }

// Mock is a controllable clock for tests.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMock creates a Mock clock set to the given time. A zero time starts the
// clock at 2024-01-01 UTC.
func NewMock(t time.Time) *Mock {
	if t.IsZero() {
		t = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Mock{current: t}
}

// Now returns the mock clock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set sets the mock clock to an absolute time.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Advance moves the clock forward by the given duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// YearsFrom returns the instant n calendar years after c.Now().
// Cookie lifetimes are expressed in years rather than as a fixed duration so
// leap days do not shift the expiry date.
func YearsFrom(c Clock, n int) time.Time {
	return c.Now().AddDate(n, 0, 0)
}

// Expired reports whether deadline is set and has passed according to c.
func Expired(c Clock, deadline time.Time) bool {
	return !deadline.IsZero() && c.Now().After(deadline)
}
