package uow

import (
	"context"
	"database/sql"

	"voyage/internal/eventbus"
	"voyage/internal/repository"
	"voyage/internal/repository/postgres"
)

// UnitOfWork bundles the transaction-scoped repositories with a buffer
// of events to deliver after commit. Everything a service writes
// through the same unit of work commits or rolls back atomically, and
// no subscriber observes an event for a state that might still be
// rolled back.
type UnitOfWork struct {
	Trips    repository.TripRepository
	Bookings repository.BookingRepository
	Rides    repository.RideRepository

	pending []eventbus.Event
}

// New creates a unit of work over the given repositories. Production
// code goes through Runner; tests construct units of work directly over
// in-memory repositories.
func New(trips repository.TripRepository, bookings repository.BookingRepository, rides repository.RideRepository) *UnitOfWork {
	return &UnitOfWork{
		Trips:    trips,
		Bookings: bookings,
		Rides:    rides,
	}
}

// Publish buffers an event for delivery after the unit of work commits.
func (u *UnitOfWork) Publish(e eventbus.Event) {
	u.pending = append(u.pending, e)
}

// Pending returns the buffered events.
func (u *UnitOfWork) Pending() []eventbus.Event {
	return u.pending
}

// Runner opens isolated units of work over the database. Each call to
// RunIsolated is one transaction; callers invoked from a timer or sweep
// use it so that one trip's failure cannot roll back another's.
type Runner struct {
	db  *sql.DB
	bus *eventbus.Bus
}

// NewRunner creates a Runner.
func NewRunner(db *sql.DB, bus *eventbus.Bus) *Runner {
	return &Runner{db: db, bus: bus}
}

// RunIsolated executes fn inside a fresh transaction. On commit, the
// unit of work's buffered events are delivered to the bus; on error the
// transaction is rolled back and nothing is delivered.
func (r *Runner) RunIsolated(ctx context.Context, fn func(ctx context.Context, u *UnitOfWork) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	u := New(
		postgres.NewTripRepositoryWithTx(tx),
		postgres.NewBookingRepositoryWithTx(tx),
		postgres.NewRideRepositoryWithTx(tx),
	)

	if err := fn(ctx, u); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, e := range u.pending {
		r.bus.Publish(ctx, e)
	}

	return nil
}
