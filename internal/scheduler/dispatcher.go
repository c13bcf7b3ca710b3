package scheduler

import (
	"context"
	"log"
	"time"

	"voyage/internal/clock"
	"voyage/internal/domain"
)

const claimBatchSize = 100

// DueClaimer claims timers whose deadline has passed.
type DueClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Timer, error)
}

// FireFunc handles one fired timer. It is invoked outside any
// transaction; the handler is responsible for running the evaluation in
// its own isolated unit of work so one entity's failure cannot roll
// back another's.
type FireFunc func(ctx context.Context, entityID string) error

// Dispatcher polls the timer store and fires due timers.
type Dispatcher struct {
	store    DueClaimer
	clock    clock.Clock
	interval time.Duration
	fire     FireFunc
}

// NewDispatcher creates a dispatcher polling at the given interval.
func NewDispatcher(store DueClaimer, clk clock.Clock, interval time.Duration, fire FireFunc) *Dispatcher {
	return &Dispatcher{
		store:    store,
		clock:    clk,
		interval: interval,
		fire:     fire,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce claims and fires all currently due timers. Failures are
// logged per entity and never stop the batch.
func (d *Dispatcher) RunOnce(ctx context.Context) {
	timers, err := d.store.ClaimDue(ctx, d.clock.Now(), claimBatchSize)
	if err != nil {
		log.Printf("timer dispatch: claim failed: %v", err)
		return
	}

	for _, timer := range timers {
		if err := d.fire(ctx, timer.EntityID); err != nil {
			log.Printf("timer dispatch: entity=%s deadline=%s: %v",
				timer.EntityID, timer.Deadline.Format(time.RFC3339), err)
		}
	}
}
