package eventbus

import "voyage/internal/domain"

// TripTransition is the payload of KindTripTransition.
type TripTransition struct {
	Trigger  string
	OldState domain.TripState
	NewState domain.TripState
}

// Trigger names for TripTransition events.
const (
	TriggerTimer = "TIMER"
	TriggerEvent = "EVENT"
	TriggerSweep = "SWEEP"
)

// TripValidation is the payload of KindTripValidation. Final marks the
// end of the validation window: the saga must settle every remaining
// fare-bearing leg regardless of missing answers.
type TripValidation struct {
	Final bool
}

// LegSettled is the payload of the evaluated fan-out events.
type LegSettled struct {
	LegID     string
	BookingID string
	Outcome   domain.LegPaymentState
	Disputed  bool
}
