package domain

import "time"

// TripState represents the lifecycle state of a trip. States form a
// linear progression; CANCELLED is reachable from any non-terminal state.
type TripState string

const (
	TripStatePlanning   TripState = "PLANNING"
	TripStateBooking    TripState = "BOOKING"
	TripStateScheduled  TripState = "SCHEDULED"
	TripStateDeparting  TripState = "DEPARTING"
	TripStateInTransit  TripState = "IN_TRANSIT"
	TripStateArriving   TripState = "ARRIVING"
	TripStateValidating TripState = "VALIDATING"
	TripStateCompleted  TripState = "COMPLETED"
	TripStateCancelled  TripState = "CANCELLED"
)

var tripStateOrdinals = map[TripState]int{
	TripStatePlanning:   0,
	TripStateBooking:    1,
	TripStateScheduled:  2,
	TripStateDeparting:  3,
	TripStateInTransit:  4,
	TripStateArriving:   5,
	TripStateValidating: 6,
	TripStateCompleted:  7,
	TripStateCancelled:  8,
}

// Ordinal returns the position of the state in the lifecycle order.
// Unknown states sort before PLANNING.
func (s TripState) Ordinal() int {
	if ord, ok := tripStateOrdinals[s]; ok {
		return ord
	}
	return -1
}

// Terminal reports whether no further transitions are possible.
func (s TripState) Terminal() bool {
	return s == TripStateCompleted || s == TripStateCancelled
}

// Trip is the passenger-side aggregate: an accepted travel plan with an
// ordered sequence of legs. Mutated only by the lifecycle monitor and
// the fare settlement saga. Never physically deleted while legs
// reference ledger transactions; cancellation is a state, not a delete.
type Trip struct {
	ID            string
	TravellerID   string
	State         TripState
	DepartureTime time.Time
	ArrivalTime   time.Time

	// Validation window bookkeeping, set when the trip enters VALIDATING.
	ValidationExpirationTime time.Time
	ValidationReminderTime   time.Time

	Legs []*Leg

	CreatedAt time.Time
}

// FareLegs returns the legs that participate in the payment protocol.
func (t *Trip) FareLegs() []*Leg {
	var legs []*Leg
	for _, leg := range t.Legs {
		if leg.HasFare() {
			legs = append(legs, leg)
		}
	}
	return legs
}

// ConfirmationsComplete reports whether every fare-bearing leg has been
// answered by both parties. Legs without a driver booking (walk or
// transit) need only the traveller's answer.
func (t *Trip) ConfirmationsComplete() bool {
	for _, leg := range t.FareLegs() {
		if leg.SettlementDone() {
			continue
		}
		if leg.TravellerAnswer == AnswerNone {
			return false
		}
		if leg.BookingID != "" && leg.ProviderAnswer == AnswerNone {
			return false
		}
	}
	return true
}

// Settled reports whether every fare-bearing leg reached a terminal
// payment state. Trips with no fare-bearing legs are trivially settled.
func (t *Trip) Settled() bool {
	for _, leg := range t.FareLegs() {
		if !leg.SettlementDone() {
			return false
		}
	}
	return true
}
