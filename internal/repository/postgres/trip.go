package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voyage/internal/domain"
	"voyage/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
//
// Per-trip serialization is provided by SELECT ... FOR UPDATE on the
// trip row inside the caller's transaction; concurrent evaluations of
// the same trip queue on the row lock instead of interleaving.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip with its legs.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (id, traveller_id, state, departure_time, arrival_time,
			validation_expiration_time, validation_reminder_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.TravellerID,
		trip.State,
		trip.DepartureTime,
		trip.ArrivalTime,
		nullTime(trip.ValidationExpirationTime),
		nullTime(trip.ValidationReminderTime),
		trip.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, leg := range trip.Legs {
		if err := r.insertLeg(ctx, leg); err != nil {
			return err
		}
	}

	return nil
}

func (r *TripRepository) insertLeg(ctx context.Context, leg *domain.Leg) error {
	query := `
		INSERT INTO legs (id, trip_id, position, mode, booking_id, fare_in_credits,
			payment_state, payment_id, provider_answer, traveller_answer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		leg.ID,
		leg.TripID,
		leg.Position,
		leg.Mode,
		leg.BookingID,
		leg.FareInCredits,
		leg.PaymentState,
		leg.PaymentID,
		leg.ProviderAnswer,
		leg.TravellerAnswer,
	)
	return err
}

// GetByID retrieves a trip with its legs, locking the trip row for the
// duration of the enclosing transaction.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `
		SELECT id, traveller_id, state, departure_time, arrival_time,
			validation_expiration_time, validation_reminder_time, created_at
		FROM trips WHERE id = $1
		FOR UPDATE
	`

	var trip domain.Trip
	var validationExpiration sql.NullTime
	var validationReminder sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&trip.ID,
		&trip.TravellerID,
		&trip.State,
		&trip.DepartureTime,
		&trip.ArrivalTime,
		&validationExpiration,
		&validationReminder,
		&trip.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if validationExpiration.Valid {
		trip.ValidationExpirationTime = validationExpiration.Time
	}
	if validationReminder.Valid {
		trip.ValidationReminderTime = validationReminder.Time
	}

	legs, err := r.legsForTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	trip.Legs = legs

	return &trip, nil
}

func (r *TripRepository) legsForTrip(ctx context.Context, tripID string) ([]*domain.Leg, error) {
	query := `
		SELECT id, trip_id, position, mode, booking_id, fare_in_credits,
			payment_state, payment_id, provider_answer, traveller_answer
		FROM legs WHERE trip_id = $1
		ORDER BY position
	`

	rows, err := r.q.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []*domain.Leg
	for rows.Next() {
		leg, err := scanLeg(rows.Scan)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}

	return legs, rows.Err()
}

func scanLeg(scan func(...any) error) (*domain.Leg, error) {
	var leg domain.Leg
	err := scan(
		&leg.ID,
		&leg.TripID,
		&leg.Position,
		&leg.Mode,
		&leg.BookingID,
		&leg.FareInCredits,
		&leg.PaymentState,
		&leg.PaymentID,
		&leg.ProviderAnswer,
		&leg.TravellerAnswer,
	)
	if err != nil {
		return nil, err
	}
	return &leg, nil
}

// Update updates the trip row (state and validation window).
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	query := `
		UPDATE trips
		SET state = $1, departure_time = $2, arrival_time = $3,
			validation_expiration_time = $4, validation_reminder_time = $5
		WHERE id = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		trip.State,
		trip.DepartureTime,
		trip.ArrivalTime,
		nullTime(trip.ValidationExpirationTime),
		nullTime(trip.ValidationReminderTime),
		trip.ID,
	)
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

// GetLeg retrieves a single leg by ID.
func (r *TripRepository) GetLeg(ctx context.Context, legID string) (*domain.Leg, error) {
	query := `
		SELECT id, trip_id, position, mode, booking_id, fare_in_credits,
			payment_state, payment_id, provider_answer, traveller_answer
		FROM legs WHERE id = $1
	`

	leg, err := scanLeg(func(dest ...any) error {
		return r.q.QueryRowContext(ctx, query, legID).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return leg, nil
}

// UpdateLeg updates a leg's payment fields and confirmation answers.
func (r *TripRepository) UpdateLeg(ctx context.Context, leg *domain.Leg) error {
	query := `
		UPDATE legs
		SET payment_state = $1, payment_id = $2, provider_answer = $3, traveller_answer = $4
		WHERE id = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		leg.PaymentState,
		leg.PaymentID,
		leg.ProviderAnswer,
		leg.TravellerAnswer,
		leg.ID,
	)
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

// ListDeparting returns the IDs of non-terminal trips whose departure
// falls at or before the given horizon.
func (r *TripRepository) ListDeparting(ctx context.Context, until time.Time) ([]string, error) {
	query := `
		SELECT id FROM trips
		WHERE departure_time <= $1 AND state NOT IN ($2, $3)
		ORDER BY departure_time
	`

	rows, err := r.q.QueryContext(ctx, query, until, domain.TripStateCompleted, domain.TripStateCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
