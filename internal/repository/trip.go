package repository

import (
	"context"
	"time"

	"voyage/internal/domain"
)

// TripRepository defines the persistence operations for trips and their legs.
//
// Implementations are expected to provide row-level isolation so that
// two concurrent read-modify-write cycles of the same trip do not
// interleave; the lifecycle monitor relies on this guarantee and does
// not lock trips itself.
type TripRepository interface {
	// Create persists a new trip with its legs.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip with its legs, ordered by position.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// Update updates the trip row (state and validation window).
	// Legs are updated separately via UpdateLeg.
	Update(ctx context.Context, trip *domain.Trip) error

	// GetLeg retrieves a single leg by ID.
	GetLeg(ctx context.Context, legID string) (*domain.Leg, error)

	// UpdateLeg updates a leg's payment fields and confirmation answers.
	UpdateLeg(ctx context.Context, leg *domain.Leg) error

	// ListDeparting returns the IDs of non-terminal trips whose
	// departure falls at or before the given horizon. This is the
	// sweep's crash-recovery query.
	ListDeparting(ctx context.Context, until time.Time) ([]string, error)
}
