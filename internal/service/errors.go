package service

import "errors"

var (
	// ErrPaymentPrecondition is returned when a settlement operation is
	// invoked against a leg or booking in the wrong payment state. This
	// is a programming or ordering error, not a business error: the
	// operation aborts and the surrounding unit of work rolls back.
	ErrPaymentPrecondition = errors.New("payment state precondition violated")

	// ErrLegHasNoFare is returned when a fare operation targets a leg
	// that never entered the payment protocol.
	ErrLegHasNoFare = errors.New("leg has no fare")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidLegID is returned when leg ID is empty.
	ErrInvalidLegID = errors.New("invalid leg id")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidTravellerID is returned when traveller ID is empty.
	ErrInvalidTravellerID = errors.New("invalid traveller id")

	// ErrInvalidSchedule is returned when departure or arrival times
	// are missing or out of order.
	ErrInvalidSchedule = errors.New("invalid departure/arrival schedule")

	// ErrInvalidSeats is returned when the requested seat count is not
	// positive.
	ErrInvalidSeats = errors.New("invalid seat count")

	// ErrBookingNotConfirmed is returned when an operation needs a
	// confirmed booking.
	ErrBookingNotConfirmed = errors.New("booking not confirmed")

	// ErrBookingAlreadyCancelled is returned when cancelling a booking
	// twice.
	ErrBookingAlreadyCancelled = errors.New("booking already cancelled")

	// ErrTripTerminal is returned when an operation targets a trip that
	// already reached COMPLETED or CANCELLED.
	ErrTripTerminal = errors.New("trip already in a terminal state")

	// ErrInvalidAnswer is returned when a confirmation answer is
	// neither a confirmation nor a denial.
	ErrInvalidAnswer = errors.New("invalid confirmation answer")

	// ErrInvalidRevocation is returned when a revocation names neither
	// the positive nor the negative outcome.
	ErrInvalidRevocation = errors.New("invalid revocation outcome")
)
