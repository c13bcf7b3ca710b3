package service

import (
	"context"
	"fmt"
	"log"

	"voyage/internal/domain"
	"voyage/internal/eventbus"
	"voyage/internal/ledger"
	"voyage/internal/uow"
)

// Settlement is the fare settlement saga. A fare's life cycle per
// leg/booking pair is five forward/backward operation pairs, each
// guarded by strict precondition assertions: violations are ordering
// errors that abort the operation and roll back the surrounding unit
// of work.
//
// The leg's payment state and its booking's payment state live in two
// independently-owned ledgers; this saga is the only component allowed
// to mutate either, and it always changes both together.
type Settlement struct {
	ledger  ledger.Ledger
	monitor *Monitor
}

// NewSettlement creates a new Settlement saga.
func NewSettlement(l ledger.Ledger, monitor *Monitor) *Settlement {
	return &Settlement{
		ledger:  l,
		monitor: monitor,
	}
}

// ReserveFare holds the leg's fare on the traveller's ledger account.
// Invoked when the leg's booking auto-confirms.
func (s *Settlement) ReserveFare(ctx context.Context, u *uow.UnitOfWork, travellerID string, leg *domain.Leg) error {
	if !leg.HasFare() {
		return fmt.Errorf("%w: leg=%s", ErrLegHasNoFare, leg.ID)
	}
	if err := domain.CheckLegPaymentTransition(leg.PaymentState, domain.LegPaymentReserved); err != nil {
		return s.preconditionViolation("reserve", leg, nil, err)
	}

	description := fmt.Sprintf("fare for leg %s of trip %s", leg.ID, leg.TripID)
	paymentID, err := s.ledger.Reserve(ctx, travellerID, leg.FareInCredits, description, leg.ID)
	if err != nil {
		return err
	}

	leg.PaymentState = domain.LegPaymentReserved
	leg.PaymentID = paymentID

	return u.Trips.UpdateLeg(ctx, leg)
}

// CancelFare releases the reserved fare back to the traveller. Both
// ledgers move to CANCELLED in the same unit of work.
func (s *Settlement) CancelFare(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error {
	if err := s.requireReservedAndUnset(leg, booking); err != nil {
		return s.preconditionViolation("cancel", leg, booking, err)
	}

	if _, err := s.ledger.Release(ctx, leg.PaymentID); err != nil {
		return err
	}

	leg.PaymentState = domain.LegPaymentCancelled
	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return err
	}

	if booking != nil {
		booking.PaymentState = domain.BookingPaymentCancelled
		booking.PaymentID = leg.PaymentID
		return u.Bookings.Update(ctx, booking)
	}

	return nil
}

// PayFare settles the reserved fare to the driver. Both ledgers move to
// PAID in the same unit of work.
func (s *Settlement) PayFare(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error {
	if err := s.requireReservedAndUnset(leg, booking); err != nil {
		return s.preconditionViolation("pay", leg, booking, err)
	}

	var driverID string
	if booking != nil {
		driverID = booking.DriverID
	}

	if _, err := s.ledger.Charge(ctx, driverID, leg.PaymentID, leg.FareInCredits); err != nil {
		return err
	}

	leg.PaymentState = domain.LegPaymentPaid
	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return err
	}

	if booking != nil {
		booking.PaymentState = domain.BookingPaymentPaid
		booking.PaymentID = leg.PaymentID
		return u.Bookings.Update(ctx, booking)
	}

	return nil
}

// DisputeFare holds the fare for out-of-band resolution: no ledger call
// is made, the leg stays RESERVED and only the booking marks DISPUTED.
func (s *Settlement) DisputeFare(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error {
	if booking == nil {
		return s.preconditionViolation("dispute", leg, nil,
			fmt.Errorf("dispute requires a driver booking"))
	}
	if err := s.requireReservedAndUnset(leg, booking); err != nil {
		return s.preconditionViolation("dispute", leg, booking, err)
	}

	booking.PaymentState = domain.BookingPaymentDisputed
	booking.PaymentID = leg.PaymentID

	return u.Bookings.Update(ctx, booking)
}

// UncancelFare re-establishes a released reservation. The new ledger
// reference logically continues the original one.
func (s *Settlement) UncancelFare(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error {
	if leg.PaymentState != domain.LegPaymentCancelled {
		return s.preconditionViolation("uncancel", leg, booking,
			fmt.Errorf("leg is %q, want %q", leg.PaymentState, domain.LegPaymentCancelled))
	}
	if booking != nil && booking.PaymentState != domain.BookingPaymentCancelled {
		return s.preconditionViolation("uncancel", leg, booking,
			fmt.Errorf("booking is %q, want %q", booking.PaymentState, domain.BookingPaymentCancelled))
	}

	paymentID, err := s.ledger.Unrelease(ctx, leg.PaymentID)
	if err != nil {
		return err
	}

	leg.PaymentState = domain.LegPaymentReserved
	leg.PaymentID = paymentID
	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return err
	}

	if booking != nil {
		booking.PaymentState = domain.BookingPaymentUnset
		booking.PaymentID = ""
		return u.Bookings.Update(ctx, booking)
	}

	return nil
}

// UnpayFare reverses a charge back into a reservation.
func (s *Settlement) UnpayFare(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error {
	if leg.PaymentState != domain.LegPaymentPaid {
		return s.preconditionViolation("unpay", leg, booking,
			fmt.Errorf("leg is %q, want %q", leg.PaymentState, domain.LegPaymentPaid))
	}
	if booking != nil && booking.PaymentState != domain.BookingPaymentPaid {
		return s.preconditionViolation("unpay", leg, booking,
			fmt.Errorf("booking is %q, want %q", booking.PaymentState, domain.BookingPaymentPaid))
	}

	paymentID, err := s.ledger.Uncharge(ctx, leg.PaymentID)
	if err != nil {
		return err
	}

	leg.PaymentState = domain.LegPaymentReserved
	leg.PaymentID = paymentID
	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return err
	}

	if booking != nil {
		booking.PaymentState = domain.BookingPaymentUnset
		booking.PaymentID = ""
		return u.Bookings.Update(ctx, booking)
	}

	return nil
}

// EvaluateTripAfterConfirmation is the saga's decision procedure,
// invoked synchronously when a confirmation arrives and asynchronously
// when the monitor's validation window expires (finalOrdeal).
//
// For every fare-bearing leg still awaiting settlement the confirmation
// decision table applies; absence of an answer defaults toward the
// outcome most protective of the traveller, so ambiguity never results
// in an unconfirmed charge.
func (s *Settlement) EvaluateTripAfterConfirmation(ctx context.Context, u *uow.UnitOfWork, tripID string, finalOrdeal bool) error {
	trip, err := u.Trips.GetByID(ctx, tripID)
	if err != nil {
		return err
	}

	if trip.State != domain.TripStateValidating {
		return nil
	}
	if !finalOrdeal && !trip.ConfirmationsComplete() {
		return nil
	}

	settledAny := false
	rides := map[string]bool{}

	for _, leg := range trip.FareLegs() {
		if leg.PaymentState != domain.LegPaymentReserved {
			continue
		}

		booking, err := s.loadBooking(ctx, u, leg)
		if err != nil {
			return err
		}
		if booking != nil && booking.PaymentState == domain.BookingPaymentDisputed {
			// Disputes are resolved out-of-band; leave the fare held.
			continue
		}

		outcome, err := s.settleLeg(ctx, u, leg, booking)
		if err != nil {
			return err
		}

		settledAny = true
		rideID := ""
		bookingID := ""
		if booking != nil {
			rideID = booking.RideID
			bookingID = booking.ID
		}

		u.Publish(eventbus.Event{
			Kind:   eventbus.KindTripEvaluated,
			TripID: trip.ID,
			RideID: rideID,
			Payload: eventbus.LegSettled{
				LegID:     leg.ID,
				BookingID: bookingID,
				Outcome:   outcome,
				Disputed:  booking != nil && booking.PaymentState == domain.BookingPaymentDisputed,
			},
		})
		if rideID != "" && !rides[rideID] {
			rides[rideID] = true
			u.Publish(eventbus.Event{
				Kind:   eventbus.KindRideEvaluated,
				TripID: trip.ID,
				RideID: rideID,
			})
		}
	}

	if settledAny {
		// Re-derive the trip state in the same unit of work so a fully
		// settled trip completes without waiting for the next sweep.
		return s.monitor.Evaluate(ctx, u, trip, eventbus.TriggerEvent)
	}

	return nil
}

// settleLeg applies the confirmation decision table to one leg.
func (s *Settlement) settleLeg(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) (domain.LegPaymentState, error) {
	providerConfirmed := leg.ProviderAnswer == domain.AnswerConfirmed
	if booking == nil {
		// Walk and transit legs have no counterparty to confirm; only
		// the traveller's answer decides.
		providerConfirmed = true
	}

	switch {
	case !providerConfirmed:
		// Provider denied or never answered: release to the traveller.
		return domain.LegPaymentCancelled, s.CancelFare(ctx, u, leg, booking)
	case leg.TravellerAnswer == domain.AnswerDenied && booking != nil:
		// Both parties answered and disagree: hold for manual resolution.
		return leg.PaymentState, s.DisputeFare(ctx, u, leg, booking)
	case leg.TravellerAnswer == domain.AnswerDenied:
		// Traveller denies a leg without a counterparty: release.
		return domain.LegPaymentCancelled, s.CancelFare(ctx, u, leg, booking)
	default:
		// Provider confirmed, traveller agreed or stayed silent.
		return domain.LegPaymentPaid, s.PayFare(ctx, u, leg, booking)
	}
}

// RevokeNegativeTripConfirmation undoes released fares after a denial is
// retracted: every CANCELLED leg is uncancelled and the validation
// window restarts, all in the caller's unit of work so the ledgers and
// the trip state cannot diverge.
func (s *Settlement) RevokeNegativeTripConfirmation(ctx context.Context, u *uow.UnitOfWork, tripID, party string) error {
	return s.revoke(ctx, u, tripID, party, domain.LegPaymentCancelled, s.UncancelFare)
}

// RevokePositiveTripConfirmation undoes charged fares after a
// confirmation is retracted: every PAID leg is unpaid and the
// validation window restarts.
func (s *Settlement) RevokePositiveTripConfirmation(ctx context.Context, u *uow.UnitOfWork, tripID, party string) error {
	return s.revoke(ctx, u, tripID, party, domain.LegPaymentPaid, s.UnpayFare)
}

type inverseOp func(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg, booking *domain.Booking) error

func (s *Settlement) revoke(ctx context.Context, u *uow.UnitOfWork, tripID, party string, outcome domain.LegPaymentState, inverse inverseOp) error {
	trip, err := u.Trips.GetByID(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.State == domain.TripStateCancelled {
		// Cancellation already released the fares; re-reserving one here
		// would strand it, since no validation round runs on a cancelled
		// trip to ever settle it again.
		return fmt.Errorf("%w: trip=%s", ErrTripTerminal, tripID)
	}

	reverted := false
	for _, leg := range trip.FareLegs() {
		if leg.PaymentState != outcome {
			continue
		}

		booking, err := s.loadBooking(ctx, u, leg)
		if err != nil {
			return err
		}

		if err := inverse(ctx, u, leg, booking); err != nil {
			return err
		}

		clearAnswer(leg, party)
		if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
			return err
		}

		reverted = true
	}

	if !reverted {
		return nil
	}

	// The rewound validation round must run in the same unit of work as
	// the ledger reversals above.
	return s.monitor.RestartValidation(ctx, u, trip)
}

func (s *Settlement) loadBooking(ctx context.Context, u *uow.UnitOfWork, leg *domain.Leg) (*domain.Booking, error) {
	if leg.BookingID == "" {
		return nil, nil
	}
	return u.Bookings.GetByID(ctx, leg.BookingID)
}

func clearAnswer(leg *domain.Leg, party string) {
	switch party {
	case PartyProvider:
		leg.ProviderAnswer = domain.AnswerNone
	case PartyTraveller:
		leg.TravellerAnswer = domain.AnswerNone
	}
}

func (s *Settlement) requireReservedAndUnset(leg *domain.Leg, booking *domain.Booking) error {
	if leg.PaymentState != domain.LegPaymentReserved {
		return fmt.Errorf("leg is %q, want %q", leg.PaymentState, domain.LegPaymentReserved)
	}
	if booking != nil && booking.PaymentState != domain.BookingPaymentUnset {
		return fmt.Errorf("booking is %q, want unset", booking.PaymentState)
	}
	return nil
}

// preconditionViolation logs the full context and wraps the sentinel so
// callers can abort their unit of work. These are never retried.
func (s *Settlement) preconditionViolation(op string, leg *domain.Leg, booking *domain.Booking, cause error) error {
	bookingID := ""
	if booking != nil {
		bookingID = booking.ID
	}
	log.Printf("settlement: %s precondition violated leg=%s booking=%s: %v", op, leg.ID, bookingID, cause)
	return fmt.Errorf("%w: %s leg=%s booking=%s: %v", ErrPaymentPrecondition, op, leg.ID, bookingID, cause)
}
