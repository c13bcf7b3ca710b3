package scheduler

import (
	"context"
	"time"

	"voyage/internal/domain"
)

// Scheduler is the durable one-shot timer port. Delivery is fire-once,
// at-least-once: consumers must tolerate duplicate or slightly-late
// firings, which is why the monitor's evaluation is idempotent.
type Scheduler interface {
	// Arm schedules a wake-up for the entity at the given deadline,
	// replacing any existing timer for that entity.
	Arm(ctx context.Context, entityID string, deadline time.Time) error

	// Cancel removes all timers for the entity. Cancelling a timer
	// that does not exist is not an error.
	Cancel(ctx context.Context, entityID string) error

	// ActiveTimersFor returns the timers currently armed for the entity.
	ActiveTimersFor(ctx context.Context, entityID string) ([]*domain.Timer, error)
}
