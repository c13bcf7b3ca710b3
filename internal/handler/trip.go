package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voyage/internal/domain"
	"voyage/internal/service"
	"voyage/internal/uow"
)

// TripHandler handles HTTP requests for trips and confirmations.
type TripHandler struct {
	run          service.IsolatedRunner
	tripService  *service.TripService
	confirmation *service.Confirmation
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(run service.IsolatedRunner, tripService *service.TripService, confirmation *service.Confirmation) *TripHandler {
	return &TripHandler{
		run:          run,
		tripService:  tripService,
		confirmation: confirmation,
	}
}

// CreateTripRequest is the HTTP request for accepting a travel plan.
type CreateTripRequest struct {
	TravellerID   string           `json:"traveller_id" binding:"required"`
	DepartureTime time.Time        `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time        `json:"arrival_time" binding:"required"`
	Legs          []LegSpecRequest `json:"legs"`
}

// LegSpecRequest describes one leg in a trip creation request.
type LegSpecRequest struct {
	Mode          string `json:"mode" binding:"required"`
	FareInCredits int64  `json:"fare_in_credits"`
}

// TripResponse is the HTTP response for trip operations.
type TripResponse struct {
	TripID        string        `json:"trip_id"`
	TravellerID   string        `json:"traveller_id"`
	State         string        `json:"state"`
	DepartureTime time.Time     `json:"departure_time"`
	ArrivalTime   time.Time     `json:"arrival_time"`
	Legs          []LegResponse `json:"legs"`
}

// LegResponse is one leg in a trip response.
type LegResponse struct {
	LegID           string `json:"leg_id"`
	Mode            string `json:"mode"`
	BookingID       string `json:"booking_id,omitempty"`
	FareInCredits   int64  `json:"fare_in_credits,omitempty"`
	PaymentState    string `json:"payment_state,omitempty"`
	PaymentID       string `json:"payment_id,omitempty"`
	ProviderAnswer  string `json:"provider_answer,omitempty"`
	TravellerAnswer string `json:"traveller_answer,omitempty"`
}

func tripResponse(trip *domain.Trip) TripResponse {
	resp := TripResponse{
		TripID:        trip.ID,
		TravellerID:   trip.TravellerID,
		State:         string(trip.State),
		DepartureTime: trip.DepartureTime,
		ArrivalTime:   trip.ArrivalTime,
	}
	for _, leg := range trip.Legs {
		resp.Legs = append(resp.Legs, LegResponse{
			LegID:           leg.ID,
			Mode:            leg.Mode,
			BookingID:       leg.BookingID,
			FareInCredits:   leg.FareInCredits,
			PaymentState:    string(leg.PaymentState),
			PaymentID:       leg.PaymentID,
			ProviderAnswer:  string(leg.ProviderAnswer),
			TravellerAnswer: string(leg.TravellerAnswer),
		})
	}
	return resp
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidSchedule)
		return
	}

	var trip *domain.Trip
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		legs := make([]service.LegSpec, 0, len(req.Legs))
		for _, l := range req.Legs {
			legs = append(legs, service.LegSpec{Mode: l.Mode, FareInCredits: l.FareInCredits})
		}

		var err error
		trip, err = h.tripService.CreateTrip(ctx, u, service.CreateTripRequest{
			TravellerID:   req.TravellerID,
			DepartureTime: req.DepartureTime,
			ArrivalTime:   req.ArrivalTime,
			Legs:          legs,
		})
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, tripResponse(trip))
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID := c.Param("id")

	var trip *domain.Trip
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		var err error
		trip, err = h.tripService.GetTrip(ctx, u, tripID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	tripID := c.Param("id")

	var trip *domain.Trip
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		var err error
		trip, err = h.tripService.CancelTrip(ctx, u, tripID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripResponse(trip))
}

// AnswerRequest is the HTTP request for a confirmation answer.
type AnswerRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// ProviderAnswer handles POST /v1/legs/:id/provider-answer
func (h *TripHandler) ProviderAnswer(c *gin.Context) {
	h.recordAnswer(c, service.PartyProvider)
}

// TravellerAnswer handles POST /v1/legs/:id/traveller-answer
func (h *TripHandler) TravellerAnswer(c *gin.Context) {
	h.recordAnswer(c, service.PartyTraveller)
}

func (h *TripHandler) recordAnswer(c *gin.Context, party string) {
	legID := c.Param("id")

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidAnswer)
		return
	}

	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		return h.confirmation.RecordAnswer(ctx, u, service.RecordAnswerRequest{
			LegID:     legID,
			Party:     party,
			Confirmed: *req.Confirmed,
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "recorded"})
}

// RevokeRequest is the HTTP request for retracting a confirmation outcome.
type RevokeRequest struct {
	Party   string `json:"party" binding:"required"`
	Outcome string `json:"outcome" binding:"required"`
}

// RevokeConfirmation handles POST /v1/trips/:id/revoke-confirmation
func (h *TripHandler) RevokeConfirmation(c *gin.Context) {
	tripID := c.Param("id")

	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidRevocation)
		return
	}

	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		return h.confirmation.Revoke(ctx, u, service.RevokeRequest{
			TripID:  tripID,
			Party:   req.Party,
			Outcome: req.Outcome,
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "revoked"})
}
