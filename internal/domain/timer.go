package domain

import "time"

// Timer is a durable one-shot wake-up for a trip. At most one timer
// should be active per entity; the monitor treats extras as an anomaly
// and cancels them.
type Timer struct {
	ID       string
	EntityID string
	Deadline time.Time
	ArmedAt  time.Time
}
