package postgres

import (
	"context"
	"database/sql"
	"errors"

	"voyage/internal/domain"
	"voyage/internal/repository"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `id, ride_id, traveller_id, driver_id, seats, state,
	auto_confirm, payment_state, payment_id, created_at`

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		booking.ID,
		booking.RideID,
		booking.TravellerID,
		booking.DriverID,
		booking.Seats,
		booking.State,
		booking.AutoConfirm,
		booking.PaymentState,
		booking.PaymentID,
		booking.CreatedAt,
	)
	return err
}

// GetByID retrieves a booking by ID, locking the row for the duration
// of the enclosing transaction.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	booking, err := scanBooking(func(dest ...any) error {
		return r.q.QueryRowContext(ctx, query, id).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return booking, nil
}

func scanBooking(scan func(...any) error) (*domain.Booking, error) {
	var booking domain.Booking
	err := scan(
		&booking.ID,
		&booking.RideID,
		&booking.TravellerID,
		&booking.DriverID,
		&booking.Seats,
		&booking.State,
		&booking.AutoConfirm,
		&booking.PaymentState,
		&booking.PaymentID,
		&booking.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Update updates an existing booking.
func (r *BookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	query := `
		UPDATE bookings
		SET state = $1, payment_state = $2, payment_id = $3
		WHERE id = $4
	`

	result, err := r.q.ExecContext(ctx, query,
		booking.State,
		booking.PaymentState,
		booking.PaymentID,
		booking.ID,
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

// ListByRideID retrieves all bookings for a ride.
func (r *BookingRepository) ListByRideID(ctx context.Context, rideID string) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ride_id = $1 ORDER BY created_at`

	rows, err := r.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// Ensure BookingRepository implements repository.BookingRepository.
var _ repository.BookingRepository = (*BookingRepository)(nil)
