package core

import "sync/atomic"

// ClockSource returns the monotonic uptime in microseconds.
// It is called from both loop and interrupt context.
type ClockSource func() uint64

var clockSource ClockSource

// SetClockSource is called by target-specific code to register its timebase.
func SetClockSource(src ClockSource) {
	clockSource = src
}

// Uptime returns the 64-bit microsecond uptime
func Uptime() uint64 {
	if clockSource == nil {
		panic("clock source not configured")
	}
	return clockSource()
}

// Micros returns the low 32 bits of the microsecond uptime.
// Differences between two readings are wrap-safe when taken as uint32.
func Micros() uint32 {
	return uint32(Uptime())
}

// Millis returns the millisecond uptime truncated to 32 bits
func Millis() uint32 {
	return uint32(Uptime() / 1000)
}

// ManualClock is a clock source advanced explicitly, used by tests and the
// bench simulator.
type ManualClock struct {
	us atomic.Uint64
}

// NewManualClock returns a clock starting at start microseconds
func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.us.Store(start)
	return c
}

// Now implements ClockSource
func (c *ManualClock) Now() uint64 {
	return c.us.Load()
}

// Set moves the clock to an absolute time
func (c *ManualClock) Set(us uint64) {
	c.us.Store(us)
}

// Advance moves the clock forward by us microseconds
func (c *ManualClock) Advance(us uint64) {
	c.us.Add(us)
}
