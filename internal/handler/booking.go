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

// BookingHandler handles HTTP requests for rides and bookings.
type BookingHandler struct {
	run            service.IsolatedRunner
	bookingService *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(run service.IsolatedRunner, bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{
		run:            run,
		bookingService: bookingService,
	}
}

// CreateRideRequest is the HTTP request for publishing a ride offer.
type CreateRideRequest struct {
	DriverID      string    `json:"driver_id" binding:"required"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time `json:"arrival_time" binding:"required"`
	SeatsTotal    int       `json:"seats_total" binding:"required"`
}

// RideResponse is the HTTP response for ride operations.
type RideResponse struct {
	RideID        string    `json:"ride_id"`
	DriverID      string    `json:"driver_id"`
	State         string    `json:"state"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	SeatsTotal    int       `json:"seats_total"`
}

// CreateRide handles POST /v1/rides
func (h *BookingHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidSchedule)
		return
	}

	var ride *domain.Ride
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		var err error
		ride, err = h.bookingService.CreateRide(ctx, u, service.CreateRideRequest{
			DriverID:      req.DriverID,
			DepartureTime: req.DepartureTime,
			ArrivalTime:   req.ArrivalTime,
			SeatsTotal:    req.SeatsTotal,
		})
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, RideResponse{
		RideID:        ride.ID,
		DriverID:      ride.DriverID,
		State:         string(ride.State),
		DepartureTime: ride.DepartureTime,
		ArrivalTime:   ride.ArrivalTime,
		SeatsTotal:    ride.SeatsTotal,
	})
}

// CreateBookingRequest is the HTTP request for booking seats on a ride.
type CreateBookingRequest struct {
	RideID      string `json:"ride_id" binding:"required"`
	LegID       string `json:"leg_id" binding:"required"`
	TravellerID string `json:"traveller_id" binding:"required"`
	Seats       int    `json:"seats" binding:"required"`
	AutoConfirm *bool  `json:"auto_confirm"`
}

// BookingResponse is the HTTP response for booking operations.
type BookingResponse struct {
	BookingID    string `json:"booking_id"`
	RideID       string `json:"ride_id"`
	TravellerID  string `json:"traveller_id"`
	DriverID     string `json:"driver_id"`
	Seats        int    `json:"seats"`
	State        string `json:"state"`
	PaymentState string `json:"payment_state,omitempty"`
	PaymentID    string `json:"payment_id,omitempty"`
}

func bookingResponse(booking *domain.Booking) BookingResponse {
	return BookingResponse{
		BookingID:    booking.ID,
		RideID:       booking.RideID,
		TravellerID:  booking.TravellerID,
		DriverID:     booking.DriverID,
		Seats:        booking.Seats,
		State:        string(booking.State),
		PaymentState: string(booking.PaymentState),
		PaymentID:    booking.PaymentID,
	}
}

// CreateBooking handles POST /v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidBookingID)
		return
	}

	autoConfirm := true
	if req.AutoConfirm != nil {
		autoConfirm = *req.AutoConfirm
	}

	var booking *domain.Booking
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		var err error
		booking, err = h.bookingService.CreateBooking(ctx, u, service.CreateBookingRequest{
			RideID:      req.RideID,
			LegID:       req.LegID,
			TravellerID: req.TravellerID,
			Seats:       req.Seats,
			AutoConfirm: autoConfirm,
		})
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, bookingResponse(booking))
}

// CancelBookingRequest is the HTTP request for cancelling a booking.
type CancelBookingRequest struct {
	LegID string `json:"leg_id"`
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID := c.Param("id")

	var req CancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		return h.bookingService.CancelBooking(ctx, u, bookingID, req.LegID)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "cancelled"})
}

// GetBooking handles GET /v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID := c.Param("id")

	var booking *domain.Booking
	err := h.run.RunIsolated(c.Request.Context(), func(ctx context.Context, u *uow.UnitOfWork) error {
		var err error
		booking, err = h.bookingService.GetBooking(ctx, u, bookingID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, bookingResponse(booking))
}
