package domain

import "time"

// BookingPaymentState represents the payment state of the driver-side
// booking ledger. It mirrors the leg's settlement outcome but
// additionally supports DISPUTED, reachable only while the leg's fare
// is still RESERVED.
type BookingPaymentState string

const (
	BookingPaymentUnset     BookingPaymentState = ""
	BookingPaymentPaid      BookingPaymentState = "PAID"
	BookingPaymentCancelled BookingPaymentState = "CANCELLED"
	BookingPaymentDisputed  BookingPaymentState = "DISPUTED"
)

// BookingState represents the lifecycle state of a booking.
type BookingState string

const (
	BookingStateRequested BookingState = "REQUESTED"
	BookingStateConfirmed BookingState = "CONFIRMED"
	BookingStateCancelled BookingState = "CANCELLED"
)

// Booking is the driver-side record of a passenger occupying seats on a
// ride. Its payment state is tracked independently of the leg's but the
// two must always be changed together by the settlement saga.
type Booking struct {
	ID          string
	RideID      string
	TravellerID string
	DriverID    string
	Seats       int
	State       BookingState
	AutoConfirm bool

	PaymentState BookingPaymentState
	PaymentID    string

	CreatedAt time.Time
}

// RideState represents the lifecycle state of the driver-side ride.
// The ride lifecycle mirrors the trip lifecycle; here the ride advances
// on the saga's evaluated fan-out rather than on its own timers.
type RideState string

const (
	RideStateActive    RideState = "ACTIVE"
	RideStateCompleted RideState = "COMPLETED"
	RideStateCancelled RideState = "CANCELLED"
)

// Ride is the driver-side container for the bookings of one ride offer.
type Ride struct {
	ID            string
	DriverID      string
	State         RideState
	DepartureTime time.Time
	ArrivalTime   time.Time
	SeatsTotal    int
	CreatedAt     time.Time
}
