package repository

import "errors"

var (
	// ErrNotFound is returned when a trip, leg, booking or ride does
	// not exist. Handlers map it to 404; the sweep treats it as a
	// stale entry and moves on.
	ErrNotFound = errors.New("entity not found")
)
