package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"voyage/internal/clock"
	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/ledger"
	"voyage/internal/service"
	"voyage/internal/uow"
)

// ──────────────────────────────────────────────
// 4. TRIP, BOOKING AND CONFIRMATION FLOWS
// ──────────────────────────────────────────────

type flowFixture struct {
	clk        *clock.Fixed
	tripRepo   *MockTripRepository
	rideRepo   *MockRideRepository
	fareLedger *ledger.Memory
	sched      *MockScheduler
	trips      *service.TripService
	bookings   *service.BookingService
	u          *uow.UnitOfWork
}

func newFlowFixture(t *testing.T, now time.Time) *flowFixture {
	t.Helper()

	clk := clock.NewFixed(now)
	tripRepo := NewMockTripRepository()
	bookingRepo := NewMockBookingRepository()
	rideRepo := NewMockRideRepository()
	sched := NewMockScheduler()
	fareLedger := ledger.NewMemory()

	monitor := service.NewMonitor(monitorConfig(), clk, sched)
	settlement := service.NewSettlement(fareLedger, monitor)

	return &flowFixture{
		clk:        clk,
		tripRepo:   tripRepo,
		rideRepo:   rideRepo,
		fareLedger: fareLedger,
		sched:      sched,
		trips:      service.NewTripService(monitor, settlement, clk),
		bookings:   service.NewBookingService(settlement, clk),
		u:          uow.New(tripRepo, bookingRepo, rideRepo),
	}
}

func TestTripService_CreateTripArmsFirstTimer(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFlowFixture(t, now)

	trip, err := f.trips.CreateTrip(context.Background(), f.u, service.CreateTripRequest{
		TravellerID:   "traveller-1",
		DepartureTime: now.Add(24 * time.Hour),
		ArrivalTime:   now.Add(25 * time.Hour),
		Legs: []service.LegSpec{
			{Mode: "walk"},
			{Mode: "rideshare", FareInCredits: 1500},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The fare leg has no reservation yet, so the trip is still booking.
	if trip.State != domain.TripStateBooking {
		t.Errorf("expected %s, got %s", domain.TripStateBooking, trip.State)
	}
	if len(trip.Legs) != 2 || trip.Legs[1].Position != 1 {
		t.Fatalf("expected 2 ordered legs, got %+v", trip.Legs)
	}

	wantDeadline := now.Add(24 * time.Hour).Add(-30 * time.Minute)
	timers := f.sched.TimersFor(trip.ID)
	if len(timers) != 1 || !timers[0].Deadline.Equal(wantDeadline) {
		t.Errorf("expected first timer at %s, got %v", wantDeadline, timers)
	}
}

func TestTripService_CreateTripRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFlowFixture(t, now)
	ctx := context.Background()

	_, err := f.trips.CreateTrip(ctx, f.u, service.CreateTripRequest{
		DepartureTime: now,
		ArrivalTime:   now.Add(time.Hour),
	})
	if !errors.Is(err, service.ErrInvalidTravellerID) {
		t.Errorf("expected ErrInvalidTravellerID, got %v", err)
	}

	_, err = f.trips.CreateTrip(ctx, f.u, service.CreateTripRequest{
		TravellerID:   "traveller-1",
		DepartureTime: now.Add(time.Hour),
		ArrivalTime:   now,
	})
	if !errors.Is(err, service.ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestBookingService_AutoConfirmReservesFare(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFlowFixture(t, now)
	ctx := context.Background()

	ride, err := f.bookings.CreateRide(ctx, f.u, service.CreateRideRequest{
		DriverID:      "driver-1",
		DepartureTime: now.Add(24 * time.Hour),
		ArrivalTime:   now.Add(25 * time.Hour),
		SeatsTotal:    3,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	trip, err := f.trips.CreateTrip(ctx, f.u, service.CreateTripRequest{
		TravellerID:   "traveller-1",
		DepartureTime: now.Add(24 * time.Hour),
		ArrivalTime:   now.Add(25 * time.Hour),
		Legs:          []service.LegSpec{{Mode: "rideshare", FareInCredits: 1500}},
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	legID := trip.Legs[0].ID

	booking, err := f.bookings.CreateBooking(ctx, f.u, service.CreateBookingRequest{
		RideID:      ride.ID,
		LegID:       legID,
		TravellerID: "traveller-1",
		Seats:       1,
		AutoConfirm: true,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	if booking.State != domain.BookingStateConfirmed {
		t.Errorf("expected booking %s, got %s", domain.BookingStateConfirmed, booking.State)
	}
	if booking.DriverID != "driver-1" {
		t.Errorf("expected driver from ride, got %q", booking.DriverID)
	}

	leg := f.tripRepo.StoredLeg(legID)
	if leg.BookingID != booking.ID {
		t.Errorf("expected leg linked to booking, got %q", leg.BookingID)
	}
	if leg.PaymentState != domain.LegPaymentReserved {
		t.Errorf("expected leg %s, got %s", domain.LegPaymentReserved, leg.PaymentState)
	}
	if txn := f.fareLedger.Get(leg.PaymentID); txn == nil || txn.Amount != 1500 {
		t.Errorf("expected 1500 credits reserved, got %+v", txn)
	}

	if got := countKind(f.u.Pending(), eventbus.KindBookingConfirmed); got != 1 {
		t.Errorf("expected 1 booking confirmed event, got %d", got)
	}
}

func TestBookingService_WithoutAutoConfirmNothingReserved(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFlowFixture(t, now)
	ctx := context.Background()

	ride, err := f.bookings.CreateRide(ctx, f.u, service.CreateRideRequest{
		DriverID:      "driver-1",
		DepartureTime: now.Add(24 * time.Hour),
		ArrivalTime:   now.Add(25 * time.Hour),
		SeatsTotal:    3,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	booking, err := f.bookings.CreateBooking(ctx, f.u, service.CreateBookingRequest{
		RideID:      ride.ID,
		LegID:       "leg-1",
		TravellerID: "traveller-1",
		Seats:       1,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	if booking.State != domain.BookingStateRequested {
		t.Errorf("expected booking %s, got %s", domain.BookingStateRequested, booking.State)
	}
	if got := len(f.u.Pending()); got != 0 {
		t.Errorf("expected no events for an unconfirmed booking, got %d", got)
	}
}

func TestTripService_CancelTripReleasesFares(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, true)
	f.store()
	ctx := context.Background()

	monitor := service.NewMonitor(monitorConfig(), f.clk, f.sched)
	trips := service.NewTripService(monitor, f.settlement, f.clk)

	trip, err := trips.CancelTrip(ctx, f.u, "trip-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.State != domain.TripStateCancelled {
		t.Errorf("expected %s, got %s", domain.TripStateCancelled, trip.State)
	}
	leg := f.tripRepo.StoredLeg("leg-1")
	if leg.PaymentState != domain.LegPaymentCancelled {
		t.Errorf("expected leg %s, got %s", domain.LegPaymentCancelled, leg.PaymentState)
	}
	if got := f.fareLedger.Get(leg.PaymentID).Status; got != "RELEASED" {
		t.Errorf("expected fare released, got %s", got)
	}
	booking := f.bookingRepo.StoredBooking("booking-1")
	if booking.PaymentState != domain.BookingPaymentCancelled {
		t.Errorf("expected booking %s, got %s", domain.BookingPaymentCancelled, booking.PaymentState)
	}

	// Cancellation is terminal.
	if _, err := trips.CancelTrip(ctx, f.u, "trip-1"); !errors.Is(err, service.ErrTripTerminal) {
		t.Errorf("expected ErrTripTerminal, got %v", err)
	}
}

func TestTripService_CancelTripKeepsDisputedFaresHeld(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, true)
	f.booking.PaymentState = domain.BookingPaymentDisputed
	f.bookingRepo.AddBooking(f.booking)
	f.store()
	ctx := context.Background()

	monitor := service.NewMonitor(monitorConfig(), f.clk, f.sched)
	trips := service.NewTripService(monitor, f.settlement, f.clk)

	trip, err := trips.CancelTrip(ctx, f.u, "trip-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.State != domain.TripStateCancelled {
		t.Errorf("expected %s, got %s", domain.TripStateCancelled, trip.State)
	}

	// The disputed fare stays held for out-of-band resolution.
	leg := f.tripRepo.StoredLeg("leg-1")
	if leg.PaymentState != domain.LegPaymentReserved {
		t.Errorf("expected disputed fare still %s, got %s", domain.LegPaymentReserved, leg.PaymentState)
	}
}

func TestConfirmation_RecordAnswerDrivesSettlement(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, true)
	f.store()
	ctx := context.Background()
	confirmation := service.NewConfirmation(f.settlement)

	// The provider answers first: the saga waits for the traveller.
	err := confirmation.RecordAnswer(ctx, f.u, service.RecordAnswerRequest{
		LegID:     "leg-1",
		Party:     service.PartyProvider,
		Confirmed: true,
	})
	if err != nil {
		t.Fatalf("provider answer: %v", err)
	}
	if got := f.tripRepo.StoredLeg("leg-1").PaymentState; got != domain.LegPaymentReserved {
		t.Errorf("expected leg still %s, got %s", domain.LegPaymentReserved, got)
	}

	// The traveller's answer completes the round and settles the fare.
	err = confirmation.RecordAnswer(ctx, f.u, service.RecordAnswerRequest{
		LegID:     "leg-1",
		Party:     service.PartyTraveller,
		Confirmed: true,
	})
	if err != nil {
		t.Fatalf("traveller answer: %v", err)
	}

	leg := f.tripRepo.StoredLeg("leg-1")
	if leg.PaymentState != domain.LegPaymentPaid {
		t.Errorf("expected leg %s, got %s", domain.LegPaymentPaid, leg.PaymentState)
	}
	if got := f.tripRepo.StoredTrip("trip-1").State; got != domain.TripStateCompleted {
		t.Errorf("expected trip %s, got %s", domain.TripStateCompleted, got)
	}
}

func TestConfirmation_RejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, true)
	f.store()
	ctx := context.Background()
	confirmation := service.NewConfirmation(f.settlement)

	err := confirmation.RecordAnswer(ctx, f.u, service.RecordAnswerRequest{
		LegID: "leg-1",
		Party: "BYSTANDER",
	})
	if !errors.Is(err, service.ErrInvalidAnswer) {
		t.Errorf("expected ErrInvalidAnswer, got %v", err)
	}

	err = confirmation.Revoke(ctx, f.u, service.RevokeRequest{
		TripID:  "trip-1",
		Party:   service.PartyTraveller,
		Outcome: "SIDEWAYS",
	})
	if !errors.Is(err, service.ErrInvalidRevocation) {
		t.Errorf("expected ErrInvalidRevocation, got %v", err)
	}
}
