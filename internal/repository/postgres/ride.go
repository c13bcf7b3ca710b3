package postgres

import (
	"context"
	"database/sql"
	"errors"

	"voyage/internal/domain"
	"voyage/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, driver_id, state, departure_time, arrival_time, seats_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.DriverID,
		ride.State,
		ride.DepartureTime,
		ride.ArrivalTime,
		ride.SeatsTotal,
		ride.CreatedAt,
	)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `
		SELECT id, driver_id, state, departure_time, arrival_time, seats_total, created_at
		FROM rides WHERE id = $1
	`

	var ride domain.Ride
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&ride.ID,
		&ride.DriverID,
		&ride.State,
		&ride.DepartureTime,
		&ride.ArrivalTime,
		&ride.SeatsTotal,
		&ride.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &ride, nil
}

// Update updates an existing ride.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	query := `UPDATE rides SET state = $1 WHERE id = $2`

	result, err := r.q.ExecContext(ctx, query, ride.State, ride.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Ensure RideRepository implements repository.RideRepository.
var _ repository.RideRepository = (*RideRepository)(nil)
