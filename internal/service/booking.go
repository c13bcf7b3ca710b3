package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"voyage/internal/clock"
	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/uow"
)

// BookingService handles the driver-side booking flow. Confirming a
// booking is what pulls a leg's fare into the payment protocol.
type BookingService struct {
	settlement *Settlement
	clock      clock.Clock
}

// NewBookingService creates a new BookingService.
func NewBookingService(settlement *Settlement, clk clock.Clock) *BookingService {
	return &BookingService{
		settlement: settlement,
		clock:      clk,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	RideID      string
	LegID       string
	TravellerID string
	Seats       int
	AutoConfirm bool
}

// CreateBooking books seats on a ride for the traveller's leg. With
// auto-confirmation enabled (the platform default) the booking confirms
// immediately and the leg's fare is reserved in the same unit of work.
func (s *BookingService) CreateBooking(ctx context.Context, u *uow.UnitOfWork, req CreateBookingRequest) (*domain.Booking, error) {
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if req.LegID == "" {
		return nil, ErrInvalidLegID
	}
	if req.TravellerID == "" {
		return nil, ErrInvalidTravellerID
	}
	if req.Seats <= 0 {
		return nil, ErrInvalidSeats
	}

	ride, err := u.Rides.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:          uuid.New().String(),
		RideID:      ride.ID,
		TravellerID: req.TravellerID,
		DriverID:    ride.DriverID,
		Seats:       req.Seats,
		State:       domain.BookingStateRequested,
		AutoConfirm: req.AutoConfirm,
		CreatedAt:   s.clock.Now(),
	}

	if err := u.Bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	if !req.AutoConfirm {
		// The manual confirmation flow is not implemented; the booking
		// stays REQUESTED and no fare is reserved.
		log.Printf("booking: %s created without auto-confirmation, manual confirmation is unhandled", booking.ID)
		return booking, nil
	}

	booking.State = domain.BookingStateConfirmed
	if err := u.Bookings.Update(ctx, booking); err != nil {
		return nil, err
	}

	leg, err := u.Trips.GetLeg(ctx, req.LegID)
	if err != nil {
		return nil, err
	}

	leg.BookingID = booking.ID
	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return nil, err
	}

	if leg.HasFare() {
		if err := s.settlement.ReserveFare(ctx, u, req.TravellerID, leg); err != nil {
			return nil, err
		}
	}

	u.Publish(eventbus.Event{
		Kind:    eventbus.KindBookingConfirmed,
		TripID:  leg.TripID,
		RideID:  ride.ID,
		Payload: booking.ID,
	})

	return booking, nil
}

// CancelBooking cancels a booking and, if the leg's fare was reserved,
// releases it back to the traveller.
func (s *BookingService) CancelBooking(ctx context.Context, u *uow.UnitOfWork, bookingID, legID string) error {
	if bookingID == "" {
		return ErrInvalidBookingID
	}

	booking, err := u.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if booking.State == domain.BookingStateCancelled {
		return ErrBookingAlreadyCancelled
	}

	if legID != "" {
		leg, err := u.Trips.GetLeg(ctx, legID)
		if err != nil {
			return err
		}
		if leg.PaymentState == domain.LegPaymentReserved {
			if err := s.settlement.CancelFare(ctx, u, leg, booking); err != nil {
				return err
			}
		}
	}

	booking.State = domain.BookingStateCancelled
	return u.Bookings.Update(ctx, booking)
}

// GetBooking retrieves a booking by ID.
func (s *BookingService) GetBooking(ctx context.Context, u *uow.UnitOfWork, bookingID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	return u.Bookings.GetByID(ctx, bookingID)
}

// CreateRideRequest contains the parameters for publishing a ride offer.
type CreateRideRequest struct {
	DriverID      string
	DepartureTime time.Time
	ArrivalTime   time.Time
	SeatsTotal    int
}

// CreateRide publishes a driver's ride offer.
func (s *BookingService) CreateRide(ctx context.Context, u *uow.UnitOfWork, req CreateRideRequest) (*domain.Ride, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidTravellerID
	}
	if req.DepartureTime.IsZero() || req.ArrivalTime.IsZero() || !req.ArrivalTime.After(req.DepartureTime) {
		return nil, ErrInvalidSchedule
	}
	if req.SeatsTotal <= 0 {
		return nil, ErrInvalidSeats
	}

	ride := &domain.Ride{
		ID:            uuid.New().String(),
		DriverID:      req.DriverID,
		State:         domain.RideStateActive,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		SeatsTotal:    req.SeatsTotal,
		CreatedAt:     s.clock.Now(),
	}

	if err := u.Rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	return ride, nil
}
