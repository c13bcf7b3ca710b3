package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"voyage/internal/domain"
)

// TimerStore is a PostgreSQL-backed durable timer store. Each timer is
// a row in the timers table; firing claims the row with a DELETE so a
// timer is handed to at most one dispatcher, and a crash between claim
// and evaluation is covered by the periodic sweep.
type TimerStore struct {
	db *sql.DB
}

// NewTimerStore creates a new TimerStore.
func NewTimerStore(db *sql.DB) *TimerStore {
	return &TimerStore{db: db}
}

// Arm schedules a wake-up for the entity, replacing any existing timer.
func (s *TimerStore) Arm(ctx context.Context, entityID string, deadline time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM timers WHERE entity_id = $1`, entityID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO timers (id, entity_id, deadline, armed_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), entityID, deadline, time.Now(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Cancel removes all timers for the entity.
func (s *TimerStore) Cancel(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE entity_id = $1`, entityID)
	return err
}

// ActiveTimersFor returns the timers currently armed for the entity.
func (s *TimerStore) ActiveTimersFor(ctx context.Context, entityID string) ([]*domain.Timer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, deadline, armed_at FROM timers WHERE entity_id = $1 ORDER BY deadline`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timers []*domain.Timer
	for rows.Next() {
		var timer domain.Timer
		if err := rows.Scan(&timer.ID, &timer.EntityID, &timer.Deadline, &timer.ArmedAt); err != nil {
			return nil, err
		}
		timers = append(timers, &timer)
	}

	return timers, rows.Err()
}

// ClaimDue removes and returns up to limit timers whose deadline has
// passed. Claimed timers are gone from the store; if the subsequent
// evaluation fails, the sweep rediscovers the trip.
func (s *TimerStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.Timer, error) {
	query := `
		DELETE FROM timers
		WHERE id IN (
			SELECT id FROM timers WHERE deadline <= $1
			ORDER BY deadline
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, entity_id, deadline, armed_at
	`

	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timers []*domain.Timer
	for rows.Next() {
		var timer domain.Timer
		if err := rows.Scan(&timer.ID, &timer.EntityID, &timer.Deadline, &timer.ArmedAt); err != nil {
			return nil, err
		}
		timers = append(timers, &timer)
	}

	return timers, rows.Err()
}
