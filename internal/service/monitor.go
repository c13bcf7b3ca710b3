package service

import (
	"context"
	"log"
	"time"

	"voyage/internal/clock"
	"voyage/internal/config"
	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/scheduler"
	"voyage/internal/uow"
)

// IsolatedRunner opens a fresh unit of work per invocation. Timer and
// sweep callers go through it so one trip's failure cannot roll back
// another trip evaluated in the same pass.
type IsolatedRunner interface {
	RunIsolated(ctx context.Context, fn func(ctx context.Context, u *uow.UnitOfWork) error) error
}

// Monitor is the trip lifecycle state machine. It is self-healing: the
// trip's state is always recomputed from persisted attributes, never
// from an assumed previous in-memory state, so lost, duplicated or late
// timers are harmless and evaluation is idempotent.
type Monitor struct {
	cfg       config.MonitorConfig
	clock     clock.Clock
	scheduler scheduler.Scheduler
}

// NewMonitor creates a new Monitor.
func NewMonitor(cfg config.MonitorConfig, clk clock.Clock, sched scheduler.Scheduler) *Monitor {
	return &Monitor{
		cfg:       cfg,
		clock:     clk,
		scheduler: sched,
	}
}

// Evaluate recomputes the trip's state from its persisted attributes
// and decides the next wake-up. It runs inside the caller's unit of
// work: observers that are already transactional join, timer callbacks
// wrap it in an isolated unit of work via EvaluateByID.
//
// One transition event is emitted unconditionally, even when the state
// did not change, so downstream processors decide relevance themselves.
func (m *Monitor) Evaluate(ctx context.Context, u *uow.UnitOfWork, trip *domain.Trip, trigger string) error {
	now := m.clock.Now()
	oldState := trip.State
	newState := m.nextState(trip, now)

	if newState.Ordinal() < oldState.Ordinal() {
		// Regressions should only happen through explicit compensation
		// paths. Log the anomaly but still apply the computed state.
		log.Printf("trip monitor: state regression trip=%s %s -> %s trigger=%s",
			trip.ID, oldState, newState, trigger)
	}

	trip.State = newState

	var deadline time.Time
	switch newState {
	case domain.TripStatePlanning, domain.TripStateBooking, domain.TripStateScheduled:
		deadline = trip.DepartureTime.Add(-m.cfg.DepartingLead)
	case domain.TripStateDeparting:
		deadline = trip.DepartureTime
	case domain.TripStateInTransit:
		deadline = trip.ArrivalTime
	case domain.TripStateArriving:
		deadline = trip.ArrivalTime.Add(m.cfg.ArrivingPeriod)
	case domain.TripStateValidating:
		deadline = m.evaluateValidating(ctx, u, trip, oldState, now)
	case domain.TripStateCompleted, domain.TripStateCancelled:
		m.cancelAllTimers(ctx, trip.ID)
	}

	if err := u.Trips.Update(ctx, trip); err != nil {
		return err
	}

	u.Publish(eventbus.Event{
		Kind:   eventbus.KindTripTransition,
		TripID: trip.ID,
		Payload: eventbus.TripTransition{
			Trigger:  trigger,
			OldState: oldState,
			NewState: newState,
		},
	})

	if !deadline.IsZero() && !newState.Terminal() {
		return m.syncTimer(ctx, trip.ID, deadline)
	}

	return nil
}

// EvaluateByID loads and evaluates one trip in a fresh, isolated unit
// of work. This is the entry point for timer callbacks and the sweep.
func (m *Monitor) EvaluateByID(ctx context.Context, run IsolatedRunner, tripID, trigger string) error {
	return run.RunIsolated(ctx, func(ctx context.Context, u *uow.UnitOfWork) error {
		trip, err := u.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		return m.Evaluate(ctx, u, trip, trigger)
	})
}

// nextState derives the trip's state purely from durable attributes:
// time comparisons against departure and arrival, leg settlement state,
// and booking completeness. No event-derived state is consulted.
func (m *Monitor) nextState(trip *domain.Trip, now time.Time) domain.TripState {
	if trip.State == domain.TripStateCancelled {
		return domain.TripStateCancelled
	}

	switch {
	case now.Before(trip.DepartureTime.Add(-m.cfg.DepartingLead)):
		// Booking completeness only gates the pre-departure states;
		// once departure is imminent, time wins.
		if len(trip.Legs) == 0 {
			return domain.TripStatePlanning
		}
		if !bookingsComplete(trip) {
			return domain.TripStateBooking
		}
		return domain.TripStateScheduled
	case now.Before(trip.DepartureTime):
		return domain.TripStateDeparting
	case now.Before(trip.ArrivalTime):
		return domain.TripStateInTransit
	case now.Before(trip.ArrivalTime.Add(m.cfg.ArrivingPeriod)):
		return domain.TripStateArriving
	default:
		if trip.Settled() {
			return domain.TripStateCompleted
		}
		return domain.TripStateValidating
	}
}

// bookingsComplete reports whether every fare-bearing leg has had its
// fare reserved. A fare-bearing leg whose fare is still unreserved
// means its booking has not been confirmed yet.
func bookingsComplete(trip *domain.Trip) bool {
	for _, leg := range trip.FareLegs() {
		if leg.PaymentState == domain.LegPaymentNone {
			return false
		}
	}
	return true
}

// evaluateValidating manages the validation window and returns the next
// wake-up deadline, or zero when the window has expired.
func (m *Monitor) evaluateValidating(ctx context.Context, u *uow.UnitOfWork, trip *domain.Trip, oldState domain.TripState, now time.Time) time.Time {
	interval := m.cfg.ValidationInterval

	if oldState != domain.TripStateValidating {
		// First entry: the expiration arithmetic bounds the number of
		// reminders, no separate counter is kept.
		trip.ValidationExpirationTime = now.Add(interval * time.Duration(1+m.cfg.MaxReminders))
		trip.ValidationReminderTime = now.Add(interval)
		return trip.ValidationReminderTime
	}

	if now.After(trip.ValidationExpirationTime) {
		// Window closed. The final evaluation must only observe
		// committed state, so the event goes out after commit. Once the
		// remaining held fares are all parked in disputes there is
		// nothing left to settle and the sweep's revisits stay silent.
		if m.settlementPending(ctx, u, trip) {
			u.Publish(eventbus.Event{
				Kind:    eventbus.KindTripValidation,
				TripID:  trip.ID,
				Payload: eventbus.TripValidation{Final: true},
			})
		}
		return time.Time{}
	}

	if !trip.ConfirmationsComplete() && now.After(trip.ValidationReminderTime) {
		trip.ValidationReminderTime = trip.ValidationReminderTime.Add(interval)
		u.Publish(eventbus.Event{
			Kind:   eventbus.KindValidationReminder,
			TripID: trip.ID,
		})
		return trip.ValidationReminderTime
	}

	// Woken early or nothing pending: wait for the reminder moment if
	// it is still ahead, otherwise for the expiration.
	if trip.ValidationReminderTime.After(now) {
		return trip.ValidationReminderTime
	}
	return trip.ValidationExpirationTime
}

// settlementPending reports whether any held fare still awaits the
// settlement saga. Disputed fares do not count: they are resolved
// out-of-band and re-requesting evaluation for them would loop forever.
// A booking load failure counts as pending so the request is retried.
func (m *Monitor) settlementPending(ctx context.Context, u *uow.UnitOfWork, trip *domain.Trip) bool {
	for _, leg := range trip.FareLegs() {
		if leg.PaymentState != domain.LegPaymentReserved {
			continue
		}
		if leg.BookingID == "" {
			return true
		}
		booking, err := u.Bookings.GetByID(ctx, leg.BookingID)
		if err != nil {
			return true
		}
		if booking.PaymentState != domain.BookingPaymentDisputed {
			return true
		}
	}
	return false
}

// RestartValidation rewinds a post-travel trip to ARRIVING and
// re-enters the validation window cleanly. Compensation flows call it
// in the same unit of work as their ledger reversals so the trip state
// and the ledgers cannot diverge.
func (m *Monitor) RestartValidation(ctx context.Context, u *uow.UnitOfWork, trip *domain.Trip) error {
	if trip.State.Ordinal() < domain.TripStateValidating.Ordinal() || trip.State == domain.TripStateCancelled {
		return nil
	}

	trip.State = domain.TripStateArriving
	trip.ValidationExpirationTime = time.Time{}
	trip.ValidationReminderTime = time.Time{}

	m.cancelAllTimers(ctx, trip.ID)

	return m.Evaluate(ctx, u, trip, eventbus.TriggerEvent)
}

// syncTimer enforces the single-active-timer discipline: extras from a
// prior bug or crash are cancelled, a matching timer is left untouched
// to avoid churn, anything else is replaced.
func (m *Monitor) syncTimer(ctx context.Context, tripID string, deadline time.Time) error {
	timers, err := m.scheduler.ActiveTimersFor(ctx, tripID)
	if err != nil {
		return err
	}

	if len(timers) > 1 {
		log.Printf("trip monitor: %d active timers for trip=%s, cancelling all", len(timers), tripID)
		if err := m.scheduler.Cancel(ctx, tripID); err != nil {
			log.Printf("trip monitor: cancel timers trip=%s: %v", tripID, err)
		}
		timers = nil
	}

	if len(timers) == 1 && timers[0].Deadline.Equal(deadline) {
		return nil
	}

	return m.scheduler.Arm(ctx, tripID, deadline)
}

// cancelAllTimers is best-effort: a stale timer that survives here is
// harmless because evaluation is idempotent.
func (m *Monitor) cancelAllTimers(ctx context.Context, tripID string) {
	if err := m.scheduler.Cancel(ctx, tripID); err != nil {
		log.Printf("trip monitor: cancel timers trip=%s: %v", tripID, err)
	}
}
