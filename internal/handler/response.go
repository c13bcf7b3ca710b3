package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voyage/internal/ledger"
	"voyage/internal/repository"
	"voyage/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidLegID),
		errors.Is(err, service.ErrInvalidBookingID),
		errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidTravellerID),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidSeats),
		errors.Is(err, service.ErrInvalidAnswer),
		errors.Is(err, service.ErrInvalidRevocation):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrTripTerminal),
		errors.Is(err, service.ErrBookingAlreadyCancelled),
		errors.Is(err, service.ErrBookingNotConfirmed),
		errors.Is(err, service.ErrPaymentPrecondition),
		errors.Is(err, service.ErrLegHasNoFare):
		return http.StatusConflict

	// Business-rule errors from the ledger
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
