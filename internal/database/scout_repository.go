package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wepublish/dorfkoenig/internal/domain"
)

const scoutColumns = `id, user_id, name, url, criteria, location, topic, frequency, is_active,
	last_run_at, consecutive_failures, notification_email, created_at, updated_at`

// ScoutRepository handles database operations for scouts.
type ScoutRepository struct {
	db *sqlx.DB
}

// NewScoutRepository creates a new scout repository.
func NewScoutRepository(db *sqlx.DB) *ScoutRepository {
	return &ScoutRepository{db: db}
}

// Create inserts scout and fills its id and timestamps.
func (r *ScoutRepository) Create(ctx context.Context, scout *domain.Scout) error {
	if scout.ID == "" {
		scout.ID = uuid.NewString()
	}

	query := `
		INSERT INTO scouts (
			id, user_id, name, url, criteria, location, topic,
			frequency, is_active, notification_email
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		scout.ID,
		scout.UserID,
		scout.Name,
		scout.URL,
		scout.Criteria,
		scout.Location,
		scout.Topic,
		scout.Frequency,
		scout.IsActive,
		scout.NotificationEmail,
	).Scan(&scout.CreatedAt, &scout.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scout: %w", err)
	}

	return nil
}

// GetByID returns the scout owned by userID.
func (r *ScoutRepository) GetByID(ctx context.Context, id, userID string) (*domain.Scout, error) {
	var scout domain.Scout
	query := `SELECT ` + scoutColumns + ` FROM scouts WHERE id = $1 AND user_id = $2`

	if err := r.db.GetContext(ctx, &scout, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scout: %w", err)
	}

	return &scout, nil
}

// List returns the user's scouts, newest first.
func (r *ScoutRepository) List(ctx context.Context, userID string) ([]domain.Scout, error) {
	scouts := []domain.Scout{}
	query := `SELECT ` + scoutColumns + ` FROM scouts WHERE user_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &scouts, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list scouts: %w", err)
	}

	return scouts, nil
}

// ListActive returns every active scout across users, least recently run
// first.
func (r *ScoutRepository) ListActive(ctx context.Context) ([]domain.Scout, error) {
	scouts := []domain.Scout{}
	query := `SELECT ` + scoutColumns + ` FROM scouts WHERE is_active = TRUE
		ORDER BY last_run_at ASC NULLS FIRST`

	if err := r.db.SelectContext(ctx, &scouts, query); err != nil {
		return nil, fmt.Errorf("failed to list active scouts: %w", err)
	}

	return scouts, nil
}

// Update writes the editable fields of scout.
func (r *ScoutRepository) Update(ctx context.Context, scout *domain.Scout) error {
	query := `
		UPDATE scouts
		SET name = $1,
		    url = $2,
		    criteria = $3,
		    location = $4,
		    topic = $5,
		    frequency = $6,
		    is_active = $7,
		    notification_email = $8,
		    updated_at = NOW()
		WHERE id = $9 AND user_id = $10
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		scout.Name,
		scout.URL,
		scout.Criteria,
		scout.Location,
		scout.Topic,
		scout.Frequency,
		scout.IsActive,
		scout.NotificationEmail,
		scout.ID,
		scout.UserID,
	).Scan(&scout.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update scout: %w", err)
	}

	return nil
}

// Delete removes a scout. Executions and units cascade.
func (r *ScoutRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scouts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete scout: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// RecordSuccess stamps last_run_at and clears the failure counter.
func (r *ScoutRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE scouts
		SET last_run_at = $1, consecutive_failures = 0, updated_at = NOW()
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to record scout success: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// RecordFailure increments the failure counter by exactly one.
func (r *ScoutRepository) RecordFailure(ctx context.Context, id string) error {
	query := `
		UPDATE scouts
		SET consecutive_failures = consecutive_failures + 1, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record scout failure: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}
