package domain

import "fmt"

// LegPaymentState represents the payment state of a leg's fare.
// Legal transitions:
//
//	none → RESERVED → {PAID | CANCELLED}
//	CANCELLED → RESERVED (uncancel), PAID → RESERVED (unpay)
type LegPaymentState string

const (
	LegPaymentNone      LegPaymentState = ""
	LegPaymentReserved  LegPaymentState = "RESERVED"
	LegPaymentPaid      LegPaymentState = "PAID"
	LegPaymentCancelled LegPaymentState = "CANCELLED"
)

// Answer is a tri-state confirmation answer from one party.
type Answer string

const (
	AnswerNone      Answer = ""
	AnswerConfirmed Answer = "CONFIRMED"
	AnswerDenied    Answer = "DENIED"
)

// Leg is one continuous segment of travel on one mode or vehicle. A leg
// has a fare only if FareInCredits is positive; legs without a fare
// never enter the payment protocol. When the leg is provided by a
// rideshare driver it carries a back-reference to the driver-side
// Booking, and the leg's payment state and the booking's payment state
// must be changed together by the settlement saga.
type Leg struct {
	ID            string
	TripID        string
	Position      int
	Mode          string
	BookingID     string
	FareInCredits int64
	PaymentState  LegPaymentState
	PaymentID     string

	ProviderAnswer  Answer
	TravellerAnswer Answer
}

// HasFare reports whether the leg participates in the payment protocol.
func (l *Leg) HasFare() bool {
	return l.FareInCredits > 0
}

// SettlementDone reports whether the leg reached a terminal payment state.
func (l *Leg) SettlementDone() bool {
	return l.PaymentState == LegPaymentPaid || l.PaymentState == LegPaymentCancelled
}

var legalLegPaymentTransitions = map[LegPaymentState][]LegPaymentState{
	LegPaymentNone:      {LegPaymentReserved},
	LegPaymentReserved:  {LegPaymentPaid, LegPaymentCancelled},
	LegPaymentPaid:      {LegPaymentReserved},
	LegPaymentCancelled: {LegPaymentReserved},
}

// CheckLegPaymentTransition returns an error when from → to is not one
// of the legal leg payment transitions.
func CheckLegPaymentTransition(from, to LegPaymentState) error {
	for _, next := range legalLegPaymentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("illegal leg payment transition %q -> %q", from, to)
}
