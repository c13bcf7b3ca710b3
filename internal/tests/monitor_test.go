package tests

import (
	"context"
	"testing"
	"time"

	"voyage/internal/clock"
	"voyage/internal/config"
	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/service"
	"voyage/internal/uow"
)

// ──────────────────────────────────────────────
// 1. TRIP LIFECYCLE MONITOR
// ──────────────────────────────────────────────

func monitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		DepartingLead:      30 * time.Minute,
		ArrivingPeriod:     15 * time.Minute,
		ValidationInterval: 48 * time.Hour,
		MaxReminders:       2,
	}
}

// reservedTrip builds a trip with one reserved fare leg departing at
// the given time and arriving one hour later.
func reservedTrip(id string, departure time.Time) *domain.Trip {
	return &domain.Trip{
		ID:            id,
		TravellerID:   "traveller-1",
		State:         domain.TripStateScheduled,
		DepartureTime: departure,
		ArrivalTime:   departure.Add(time.Hour),
		Legs: []*domain.Leg{
			{
				ID:            id + "-leg-1",
				TripID:        id,
				Position:      0,
				Mode:          "rideshare",
				BookingID:     id + "-booking-1",
				FareInCredits: 1500,
				PaymentState:  domain.LegPaymentReserved,
				PaymentID:     "pay-1",
			},
		},
	}
}

func TestMonitor_EvaluationIsIdempotent(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	for i := 0; i < 3; i++ {
		if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
			t.Fatalf("evaluate %d: unexpected error: %v", i, err)
		}
	}

	stored := tripRepo.StoredTrip("trip-1")
	if stored.State != domain.TripStateScheduled {
		t.Errorf("expected state %s, got %s", domain.TripStateScheduled, stored.State)
	}

	// Re-evaluation must not multiply timers or move the deadline.
	timers := sched.TimersFor("trip-1")
	if len(timers) != 1 {
		t.Fatalf("expected 1 timer, got %d", len(timers))
	}
	wantDeadline := departure.Add(-30 * time.Minute)
	if !timers[0].Deadline.Equal(wantDeadline) {
		t.Errorf("expected deadline %s, got %s", wantDeadline, timers[0].Deadline)
	}

	// A matching timer is left untouched, so only the first pass arms.
	if sched.ArmCallCount != 1 {
		t.Errorf("expected 1 arm call, got %d", sched.ArmCallCount)
	}

	// Every evaluation emits a transition event, changed state or not.
	if got := len(u.Pending()); got != 3 {
		t.Errorf("expected 3 transition events, got %d", got)
	}
}

func TestMonitor_HappyPathThroughTravel(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	steps := []struct {
		at        time.Time
		wantState domain.TripState
		wantWake  time.Time
	}{
		{departure.Add(-3 * time.Hour), domain.TripStateScheduled, departure.Add(-30 * time.Minute)},
		{departure.Add(-30 * time.Minute), domain.TripStateDeparting, departure},
		{departure, domain.TripStateInTransit, departure.Add(time.Hour)},
		{departure.Add(time.Hour), domain.TripStateArriving, departure.Add(time.Hour + 15*time.Minute)},
	}

	for _, step := range steps {
		clk.Instant = step.at
		if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerTimer); err != nil {
			t.Fatalf("evaluate at %s: unexpected error: %v", step.at, err)
		}
		if trip.State != step.wantState {
			t.Errorf("at %s: expected state %s, got %s", step.at, step.wantState, trip.State)
		}
		timers := sched.TimersFor("trip-1")
		if len(timers) != 1 {
			t.Fatalf("at %s: expected 1 timer, got %d", step.at, len(timers))
		}
		if !timers[0].Deadline.Equal(step.wantWake) {
			t.Errorf("at %s: expected wake-up %s, got %s", step.at, step.wantWake, timers[0].Deadline)
		}
	}
}

func TestMonitor_PreDepartureStatesFollowBookings(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	// No legs yet: still planning.
	trip := &domain.Trip{
		ID:            "trip-1",
		State:         domain.TripStatePlanning,
		DepartureTime: departure,
		ArrivalTime:   departure.Add(time.Hour),
	}
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.State != domain.TripStatePlanning {
		t.Errorf("expected %s, got %s", domain.TripStatePlanning, trip.State)
	}

	// A fare leg whose fare is not reserved yet means an unconfirmed
	// booking: the trip is still in the booking phase.
	trip.Legs = []*domain.Leg{{
		ID:            "leg-1",
		TripID:        "trip-1",
		FareInCredits: 900,
	}}
	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.State != domain.TripStateBooking {
		t.Errorf("expected %s, got %s", domain.TripStateBooking, trip.State)
	}

	// Once the fare is reserved the trip is fully scheduled.
	trip.Legs[0].PaymentState = domain.LegPaymentReserved
	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.State != domain.TripStateScheduled {
		t.Errorf("expected %s, got %s", domain.TripStateScheduled, trip.State)
	}
}

func TestMonitor_ValidationWindowOpens(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validationStart := departure.Add(time.Hour + 15*time.Minute)
	clk := clock.NewFixed(validationStart)

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateArriving
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.State != domain.TripStateValidating {
		t.Fatalf("expected %s, got %s", domain.TripStateValidating, trip.State)
	}

	// Two reminders at 48h spacing bound the window at 144h: the
	// expiration arithmetic replaces a reminder counter.
	wantExpiration := validationStart.Add(144 * time.Hour)
	if !trip.ValidationExpirationTime.Equal(wantExpiration) {
		t.Errorf("expected expiration %s, got %s", wantExpiration, trip.ValidationExpirationTime)
	}
	wantReminder := validationStart.Add(48 * time.Hour)
	if !trip.ValidationReminderTime.Equal(wantReminder) {
		t.Errorf("expected reminder %s, got %s", wantReminder, trip.ValidationReminderTime)
	}

	timers := sched.TimersFor("trip-1")
	if len(timers) != 1 || !timers[0].Deadline.Equal(wantReminder) {
		t.Fatalf("expected single timer at %s, got %v", wantReminder, timers)
	}
}

func TestMonitor_ValidationRemindersThenExpiry(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validationStart := departure.Add(time.Hour + 15*time.Minute)
	clk := clock.NewFixed(validationStart)

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateArriving
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())
	ctx := context.Background()

	if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First reminder fires after one interval.
	clk.Instant = validationStart.Add(48*time.Hour + time.Minute)
	if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := countKind(u.Pending(), eventbus.KindValidationReminder); got != 1 {
		t.Fatalf("expected 1 reminder after first interval, got %d", got)
	}

	// Second and last reminder.
	clk.Instant = validationStart.Add(96*time.Hour + time.Minute)
	if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := countKind(u.Pending(), eventbus.KindValidationReminder); got != 2 {
		t.Fatalf("expected 2 reminders after second interval, got %d", got)
	}

	// Past the expiration: no more reminders, the final evaluation is
	// requested instead and no timer is re-armed.
	clk.Instant = validationStart.Add(144*time.Hour + time.Minute)
	armsBefore := sched.ArmCallCount
	if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := countKind(u.Pending(), eventbus.KindValidationReminder); got != 2 {
		t.Errorf("expected reminders capped at 2, got %d", got)
	}
	if got := countKind(u.Pending(), eventbus.KindTripValidation); got != 1 {
		t.Errorf("expected 1 final validation event, got %d", got)
	}
	if sched.ArmCallCount != armsBefore {
		t.Errorf("expected no timer armed after expiry")
	}
}

func TestMonitor_ExpiredWindowWithOnlyDisputesStaysQuiet(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validationStart := departure.Add(time.Hour + 15*time.Minute)
	clk := clock.NewFixed(validationStart.Add(200 * time.Hour))

	tripRepo := NewMockTripRepository()
	bookingRepo := NewMockBookingRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateValidating
	trip.ValidationExpirationTime = validationStart.Add(144 * time.Hour)
	trip.ValidationReminderTime = validationStart.Add(48 * time.Hour)
	tripRepo.AddTrip(trip)

	// The only held fare is parked in a dispute awaiting out-of-band
	// resolution.
	bookingRepo.AddBooking(&domain.Booking{
		ID:           "trip-1-booking-1",
		RideID:       "ride-1",
		TravellerID:  "traveller-1",
		DriverID:     "driver-1",
		Seats:        1,
		State:        domain.BookingStateConfirmed,
		PaymentState: domain.BookingPaymentDisputed,
		PaymentID:    "pay-1",
	})

	u := uow.New(tripRepo, bookingRepo, NewMockRideRepository())
	ctx := context.Background()

	// The sweep keeps revisiting the parked trip past its expiration.
	// With nothing left to settle it must not re-request the final
	// evaluation on every pass.
	for i := 0; i < 3; i++ {
		if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerSweep); err != nil {
			t.Fatalf("evaluate %d: unexpected error: %v", i, err)
		}
	}

	if trip.State != domain.TripStateValidating {
		t.Errorf("expected trip parked in %s, got %s", domain.TripStateValidating, trip.State)
	}
	if got := countKind(u.Pending(), eventbus.KindTripValidation); got != 0 {
		t.Errorf("expected no final validation events for a disputed-only trip, got %d", got)
	}
	if sched.ArmCallCount != 0 {
		t.Errorf("expected no timers armed after expiry, got %d", sched.ArmCallCount)
	}
}

func TestMonitor_SettledTripCompletes(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(2 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateValidating
	trip.Legs[0].PaymentState = domain.LegPaymentPaid
	tripRepo.AddTrip(trip)
	sched.AddTimer("trip-1", departure.Add(3*time.Hour))

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.State != domain.TripStateCompleted {
		t.Errorf("expected %s, got %s", domain.TripStateCompleted, trip.State)
	}
	if timers := sched.TimersFor("trip-1"); len(timers) != 0 {
		t.Errorf("expected no timers on a completed trip, got %d", len(timers))
	}
}

func TestMonitor_CancelledIsSticky(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateCancelled
	tripRepo.AddTrip(trip)
	sched.AddTimer("trip-1", departure)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	// Time passing never revives a cancelled trip.
	for _, at := range []time.Time{
		departure.Add(-3 * time.Hour),
		departure,
		departure.Add(24 * time.Hour),
	} {
		clk.Instant = at
		if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if trip.State != domain.TripStateCancelled {
			t.Fatalf("at %s: expected %s, got %s", at, domain.TripStateCancelled, trip.State)
		}
	}

	if timers := sched.TimersFor("trip-1"); len(timers) != 0 {
		t.Errorf("expected no timers on a cancelled trip, got %d", len(timers))
	}
}

func TestMonitor_RegressionIsAppliedAnyway(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(30 * time.Minute))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	// Stored state says validating, but the durable schedule says the
	// trip is still in transit (the arrival was pushed back). The
	// derived state wins even though it sorts earlier.
	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateValidating
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.State != domain.TripStateInTransit {
		t.Errorf("expected %s, got %s", domain.TripStateInTransit, trip.State)
	}
	timers := sched.TimersFor("trip-1")
	if len(timers) != 1 || !timers[0].Deadline.Equal(trip.ArrivalTime) {
		t.Errorf("expected wake-up at arrival, got %v", timers)
	}
}

func TestMonitor_DuplicateTimersCollapsed(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	tripRepo.AddTrip(trip)

	// Leftovers from a crash mid-arm.
	sched.AddTimer("trip-1", departure)
	sched.AddTimer("trip-1", departure.Add(time.Hour))
	sched.AddTimer("trip-1", departure.Add(-30*time.Minute))

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.Evaluate(context.Background(), u, trip, eventbus.TriggerSweep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timers := sched.TimersFor("trip-1")
	if len(timers) != 1 {
		t.Fatalf("expected duplicates collapsed to 1 timer, got %d", len(timers))
	}
	wantDeadline := departure.Add(-30 * time.Minute)
	if !timers[0].Deadline.Equal(wantDeadline) {
		t.Errorf("expected deadline %s, got %s", wantDeadline, timers[0].Deadline)
	}
}

func TestMonitor_RestartValidationRewindsWindow(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	validationStart := departure.Add(time.Hour + 15*time.Minute)
	clk := clock.NewFixed(validationStart)

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	trip.State = domain.TripStateArriving
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())
	ctx := context.Background()

	if err := monitor.Evaluate(ctx, u, trip, eventbus.TriggerTimer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstExpiration := trip.ValidationExpirationTime

	// A week later a settled outcome is revoked and the window restarts.
	clk.Instant = validationStart.Add(7 * 24 * time.Hour)
	if err := monitor.RestartValidation(ctx, u, trip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.State != domain.TripStateValidating {
		t.Fatalf("expected %s, got %s", domain.TripStateValidating, trip.State)
	}
	if !trip.ValidationExpirationTime.After(firstExpiration) {
		t.Errorf("expected a fresh validation window, got expiration %s", trip.ValidationExpirationTime)
	}
	wantReminder := clk.Instant.Add(48 * time.Hour)
	if !trip.ValidationReminderTime.Equal(wantReminder) {
		t.Errorf("expected reminder %s, got %s", wantReminder, trip.ValidationReminderTime)
	}
}

func TestMonitor_RestartValidationIgnoresEarlyTrips(t *testing.T) {
	t.Parallel()

	departure := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(departure.Add(-3 * time.Hour))

	tripRepo := NewMockTripRepository()
	sched := NewMockScheduler()
	monitor := service.NewMonitor(monitorConfig(), clk, sched)

	trip := reservedTrip("trip-1", departure)
	tripRepo.AddTrip(trip)

	u := uow.New(tripRepo, NewMockBookingRepository(), NewMockRideRepository())

	if err := monitor.RestartValidation(context.Background(), u, trip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.State != domain.TripStateScheduled {
		t.Errorf("expected trip untouched in %s, got %s", domain.TripStateScheduled, trip.State)
	}
	if tripRepo.UpdateCallCount != 0 {
		t.Errorf("expected no update, got %d", tripRepo.UpdateCallCount)
	}
}

func countKind(events []eventbus.Event, kind eventbus.Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
