package clock

import "time"

// Clock supplies the current instant. The lifecycle monitor never calls
// time.Now directly so that tests can pin the instant.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the wall clock.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock pinned to a settable instant.
type Fixed struct {
	Instant time.Time
}

// NewFixed creates a Fixed clock at the given instant.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{Instant: t}
}

// Now returns the pinned instant.
func (c *Fixed) Now() time.Time {
	return c.Instant
}

// Advance moves the pinned instant forward.
func (c *Fixed) Advance(d time.Duration) {
	c.Instant = c.Instant.Add(d)
}
