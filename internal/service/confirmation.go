package service

import (
	"context"

	"voyage/internal/domain"
	"voyage/internal/uow"
)

// Party names the side a confirmation answer comes from.
const (
	PartyProvider  = "PROVIDER"
	PartyTraveller = "TRAVELLER"
)

// Confirmation records provider and traveller answers on legs and
// pushes the settlement saga forward. Answers arrive as domain events;
// recording one and evaluating the trip happen in the caller's unit of
// work so a failed settlement also rolls back the answer.
type Confirmation struct {
	settlement *Settlement
}

// NewConfirmation creates a new Confirmation service.
func NewConfirmation(settlement *Settlement) *Confirmation {
	return &Confirmation{settlement: settlement}
}

// RecordAnswerRequest contains the parameters for recording an answer.
type RecordAnswerRequest struct {
	LegID     string
	Party     string
	Confirmed bool
}

// RecordAnswer stores one party's answer for a leg and synchronously
// re-evaluates the trip's settlement.
func (c *Confirmation) RecordAnswer(ctx context.Context, u *uow.UnitOfWork, req RecordAnswerRequest) error {
	if req.LegID == "" {
		return ErrInvalidLegID
	}
	if req.Party != PartyProvider && req.Party != PartyTraveller {
		return ErrInvalidAnswer
	}

	leg, err := u.Trips.GetLeg(ctx, req.LegID)
	if err != nil {
		return err
	}

	answer := domain.AnswerConfirmed
	if !req.Confirmed {
		answer = domain.AnswerDenied
	}

	switch req.Party {
	case PartyProvider:
		leg.ProviderAnswer = answer
	case PartyTraveller:
		leg.TravellerAnswer = answer
	}

	if err := u.Trips.UpdateLeg(ctx, leg); err != nil {
		return err
	}

	return c.settlement.EvaluateTripAfterConfirmation(ctx, u, leg.TripID, false)
}

// RevokeRequest contains the parameters for retracting a confirmation
// outcome.
type RevokeRequest struct {
	TripID string
	Party  string

	// Outcome names what is being revoked: "POSITIVE" for charged
	// fares, "NEGATIVE" for released ones.
	Outcome string
}

// Revocation outcomes.
const (
	OutcomePositive = "POSITIVE"
	OutcomeNegative = "NEGATIVE"
)

// Revoke retracts a previously settled confirmation outcome: the
// matching inverse ledger operations run and the validation window
// restarts, all in the caller's unit of work.
func (c *Confirmation) Revoke(ctx context.Context, u *uow.UnitOfWork, req RevokeRequest) error {
	if req.TripID == "" {
		return ErrInvalidTripID
	}
	if req.Party != PartyProvider && req.Party != PartyTraveller {
		return ErrInvalidAnswer
	}

	switch req.Outcome {
	case OutcomePositive:
		return c.settlement.RevokePositiveTripConfirmation(ctx, u, req.TripID, req.Party)
	case OutcomeNegative:
		return c.settlement.RevokeNegativeTripConfirmation(ctx, u, req.TripID, req.Party)
	default:
		return ErrInvalidRevocation
	}
}
