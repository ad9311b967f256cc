// Package timeutil provides a testable clock and conversions between device
// ticks and wall durations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// TicksToDuration converts a device tick count at baseFrequency Hz to a
// duration. A zero frequency yields 0.
func TicksToDuration(ticks int64, baseFrequency uint16) time.Duration {
	if baseFrequency == 0 {
		return 0
	}
	return time.Duration(ticks) * time.Second / time.Duration(baseFrequency)
}

// TicksToSeconds is TicksToDuration expressed as float seconds.
func TicksToSeconds(ticks int64, baseFrequency uint16) float64 {
	if baseFrequency == 0 {
		return 0
	}
	return float64(ticks) / float64(baseFrequency)
}
