package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"voyage/internal/clock"
	"voyage/internal/domain"
	"voyage/internal/uow"
)

// TripService handles trip creation and cancellation. Trips are created
// when a travel plan is accepted; from then on the lifecycle monitor
// and the settlement saga own the state.
type TripService struct {
	monitor    *Monitor
	settlement *Settlement
	clock      clock.Clock
}

// NewTripService creates a new TripService.
func NewTripService(monitor *Monitor, settlement *Settlement, clk clock.Clock) *TripService {
	return &TripService{
		monitor:    monitor,
		settlement: settlement,
		clock:      clk,
	}
}

// LegSpec describes one leg of a travel plan being accepted.
type LegSpec struct {
	Mode          string
	FareInCredits int64
}

// CreateTripRequest contains the parameters for accepting a travel plan.
type CreateTripRequest struct {
	TravellerID   string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Legs          []LegSpec
}

// CreateTrip persists the accepted plan and runs a first evaluation so
// the initial wake-up timer is armed.
func (s *TripService) CreateTrip(ctx context.Context, u *uow.UnitOfWork, req CreateTripRequest) (*domain.Trip, error) {
	if req.TravellerID == "" {
		return nil, ErrInvalidTravellerID
	}
	if req.DepartureTime.IsZero() || req.ArrivalTime.IsZero() || !req.ArrivalTime.After(req.DepartureTime) {
		return nil, ErrInvalidSchedule
	}

	trip := &domain.Trip{
		ID:            uuid.New().String(),
		TravellerID:   req.TravellerID,
		State:         domain.TripStatePlanning,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		CreatedAt:     s.clock.Now(),
	}

	for i, spec := range req.Legs {
		trip.Legs = append(trip.Legs, &domain.Leg{
			ID:            uuid.New().String(),
			TripID:        trip.ID,
			Position:      i,
			Mode:          spec.Mode,
			FareInCredits: spec.FareInCredits,
		})
	}

	if err := u.Trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	if err := s.monitor.Evaluate(ctx, u, trip, "CREATE"); err != nil {
		return nil, err
	}

	return trip, nil
}

// GetTrip retrieves a trip with its legs.
func (s *TripService) GetTrip(ctx context.Context, u *uow.UnitOfWork, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return u.Trips.GetByID(ctx, tripID)
}

// CancelTrip soft-cancels a trip from any non-terminal state. Reserved
// fares are released; the trip row survives because its legs reference
// ledger transactions.
func (s *TripService) CancelTrip(ctx context.Context, u *uow.UnitOfWork, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := u.Trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if trip.State.Terminal() {
		return nil, ErrTripTerminal
	}

	for _, leg := range trip.FareLegs() {
		if leg.PaymentState != domain.LegPaymentReserved {
			continue
		}
		booking, err := s.loadBooking(ctx, u, leg)
		if err != nil {
			return nil, err
		}
		if booking != nil && booking.PaymentState == domain.BookingPaymentDisputed {
			continue
		}
		if err := s.settlement.CancelFare(ctx, u, leg, booking); err != nil {
			return nil, err
		}
	}

	trip.State = domain.TripStateCancelled
	if err := s.monitor.Evaluate(ctx, u, trip, "CANCEL"); err != nil {
		return nil, err
	}

	return trip, nil
}

func (s *TripService) loadBooking(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg) (*domain.Booking, error) {
	if leg.BookingID == "" {
		return nil, nil
	}
	return u.Bookings.GetByID(ctx, leg.BookingID)
}
