package service

import (
	"context"
	"log"

	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/redis"
	"voyage/internal/uow"
)

// Projection keeps the redis read models of the two bounded contexts in
// step with the saga's fan-out events, and advances the ride's own
// lifecycle when all of its bookings are settled.
type Projection struct {
	run   IsolatedRunner
	cache *redis.CacheStore
}

// NewProjection creates a new Projection.
func NewProjection(run IsolatedRunner, cache *redis.CacheStore) *Projection {
	return &Projection{run: run, cache: cache}
}

// RefreshTrip rebuilds the trip snapshot after a settlement round.
func (p *Projection) RefreshTrip(ctx context.Context, tripID string) error {
	return p.run.RunIsolated(ctx, func(ctx context.Context, u *uow.UnitOfWork) error {
		trip, err := u.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}

		fareLegs := trip.FareLegs()
		settled := 0
		for _, leg := range fareLegs {
			if leg.SettlementDone() {
				settled++
			}
		}

		return p.cache.SetTrip(ctx, &redis.CachedTrip{
			ID:          trip.ID,
			State:       string(trip.State),
			FareLegs:    len(fareLegs),
			SettledLegs: settled,
		})
	})
}

// RefreshRide rebuilds the ride snapshot and completes the ride once
// every booking has reached a terminal payment state. The ride is the
// driver-side mirror of the trip; it has no timers of its own and
// advances on these fan-out events.
func (p *Projection) RefreshRide(ctx context.Context, rideID string) error {
	return p.run.RunIsolated(ctx, func(ctx context.Context, u *uow.UnitOfWork) error {
		ride, err := u.Rides.GetByID(ctx, rideID)
		if err != nil {
			return err
		}

		bookings, err := u.Bookings.ListByRideID(ctx, rideID)
		if err != nil {
			return err
		}

		settled := 0
		allDone := len(bookings) > 0
		for _, b := range bookings {
			switch b.PaymentState {
			case domain.BookingPaymentPaid, domain.BookingPaymentCancelled:
				settled++
			default:
				allDone = false
			}
		}

		if allDone && ride.State == domain.RideStateActive {
			ride.State = domain.RideStateCompleted
			if err := u.Rides.Update(ctx, ride); err != nil {
				return err
			}
		}

		return p.cache.SetRide(ctx, &redis.CachedRide{
			ID:              ride.ID,
			State:           string(ride.State),
			Bookings:        len(bookings),
			SettledBookings: settled,
		})
	})
}

// RegisterSubscribers wires the event processors to the bus: the saga's
// asynchronous final evaluation, the notification processors, and the
// read-model projections. All of these run after the emitting unit of
// work has committed.
func RegisterSubscribers(
	bus *eventbus.Bus,
	run IsolatedRunner,
	settlement *Settlement,
	notifier *Notifier,
	projection *Projection,
) {
	bus.Subscribe(eventbus.KindTripValidation, func(ctx context.Context, e eventbus.Event) {
		validation, ok := e.Payload.(eventbus.TripValidation)
		if !ok {
			return
		}
		err := run.RunIsolated(ctx, func(ctx context.Context, u *uow.UnitOfWork) error {
			return settlement.EvaluateTripAfterConfirmation(ctx, u, e.TripID, validation.Final)
		})
		if err != nil {
			log.Printf("settlement: final evaluation trip=%s: %v", e.TripID, err)
		}
	})

	bus.Subscribe(eventbus.KindTripTransition, func(ctx context.Context, e eventbus.Event) {
		if transition, ok := e.Payload.(eventbus.TripTransition); ok {
			notifier.NotifyTransition(ctx, e.TripID, transition)
		}
	})

	bus.Subscribe(eventbus.KindValidationReminder, func(ctx context.Context, e eventbus.Event) {
		notifier.NotifyValidationReminder(ctx, e.TripID)
	})

	bus.Subscribe(eventbus.KindTripEvaluated, func(ctx context.Context, e eventbus.Event) {
		if settled, ok := e.Payload.(eventbus.LegSettled); ok {
			notifier.NotifyLegSettled(ctx, e.TripID, settled)
		}
		if err := projection.RefreshTrip(ctx, e.TripID); err != nil {
			log.Printf("projection: refresh trip=%s: %v", e.TripID, err)
		}
	})

	bus.Subscribe(eventbus.KindRideEvaluated, func(ctx context.Context, e eventbus.Event) {
		if err := projection.RefreshRide(ctx, e.RideID); err != nil {
			log.Printf("projection: refresh ride=%s: %v", e.RideID, err)
		}
	})

	bus.Subscribe(eventbus.KindBookingConfirmed, func(ctx context.Context, e eventbus.Event) {
		if bookingID, ok := e.Payload.(string); ok {
			notifier.NotifyBookingConfirmed(ctx, e.TripID, bookingID)
		}
	})
}
