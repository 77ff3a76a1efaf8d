package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wepublish/dorfkoenig/internal/domain"
)

const executionColumns = `e.id, e.scout_id, e.user_id, e.status, e.started_at, e.completed_at,
	e.change_status, e.criteria_matched, e.summary_text, e.summary_embedding, e.is_duplicate,
	e.duplicate_similarity, e.notification_sent, e.notification_error, e.error_message,
	e.units_extracted, e.scrape_duration_ms, e.created_at, s.name AS scout_name`

// ExecutionRepository handles database operations for scout executions.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// HasRunningSince reports whether scoutID has a running execution started at
// or after since.
func (r *ExecutionRepository) HasRunningSince(ctx context.Context, scoutID string, since time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM scout_executions
			WHERE scout_id = $1 AND status = 'running' AND started_at >= $2
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, scoutID, since); err != nil {
		return false, fmt.Errorf("failed to check running execution: %w", err)
	}
	return exists, nil
}

// Start inserts a running execution and returns its id.
func (r *ExecutionRepository) Start(ctx context.Context, scoutID, userID string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO scout_executions (id, scout_id, user_id, status, started_at)
		VALUES ($1, $2, $3, 'running', $4)
	`
	if _, err := r.db.ExecContext(ctx, query, id, scoutID, userID, startedAt); err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}
	return id, nil
}

// MarkFailed moves a running execution to failed.
func (r *ExecutionRepository) MarkFailed(ctx context.Context, id, message string, completedAt time.Time) error {
	query := `
		UPDATE scout_executions
		SET status = 'failed', completed_at = $1, change_status = 'error', error_message = $2
		WHERE id = $3 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, completedAt, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// CompleteUnchanged finishes a run whose content did not change.
func (r *ExecutionRepository) CompleteUnchanged(
	ctx context.Context, id, summary string, scrapeDurationMs int64, completedAt time.Time,
) error {
	query := `
		UPDATE scout_executions
		SET status = 'completed', completed_at = $1, change_status = 'same',
		    criteria_matched = FALSE, summary_text = $2, scrape_duration_ms = $3
		WHERE id = $4 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, completedAt, summary, scrapeDurationMs, id)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// RecordAnalysis checkpoints the analysis outcome onto a running execution.
func (r *ExecutionRepository) RecordAnalysis(ctx context.Context, id string, out domain.AnalysisOutcome) error {
	var embedding any
	if len(out.SummaryEmbedding) > 0 {
		embedding = pq.Float32Array(out.SummaryEmbedding)
	}

	query := `
		UPDATE scout_executions
		SET change_status = $1, criteria_matched = $2, summary_text = $3, summary_embedding = $4,
		    is_duplicate = $5, duplicate_similarity = $6, scrape_duration_ms = $7
		WHERE id = $8 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query,
		out.ChangeStatus,
		out.CriteriaMatched,
		out.SummaryText,
		embedding,
		out.IsDuplicate,
		out.DuplicateSimilarity,
		out.ScrapeDurationMs,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// Finalize marks the execution completed with the notification outcome and
// unit count.
func (r *ExecutionRepository) Finalize(
	ctx context.Context, id string, notificationSent bool, notificationError *string, unitsExtracted int, completedAt time.Time,
) error {
	query := `
		UPDATE scout_executions
		SET status = 'completed', completed_at = $1, notification_sent = $2,
		    notification_error = $3, units_extracted = $4
		WHERE id = $5 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query, completedAt, notificationSent, notificationError, unitsExtracted, id)
	if err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// RecentSummaries returns up to limit summaries of the scout's completed
// executions, newest first.
func (r *ExecutionRepository) RecentSummaries(ctx context.Context, scoutID string, limit int) ([]string, error) {
	summaries := []string{}
	query := `
		SELECT summary_text FROM scout_executions
		WHERE scout_id = $1 AND status = 'completed' AND summary_text IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &summaries, query, scoutID, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent summaries: %w", err)
	}
	return summaries, nil
}

// SummaryEmbeddingsSince returns the summary embeddings of the scout's
// completed executions created at or after since.
func (r *ExecutionRepository) SummaryEmbeddingsSince(ctx context.Context, scoutID string, since time.Time) ([][]float32, error) {
	var rows []pq.Float32Array
	query := `
		SELECT summary_embedding FROM scout_executions
		WHERE scout_id = $1 AND status = 'completed'
		  AND summary_embedding IS NOT NULL AND created_at >= $2
	`
	if err := r.db.SelectContext(ctx, &rows, query, scoutID, since); err != nil {
		return nil, fmt.Errorf("failed to load summary embeddings: %w", err)
	}

	out := make([][]float32, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// GetByID returns an execution owned by userID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id, userID string) (*domain.Execution, error) {
	var execution domain.Execution
	query := `SELECT ` + executionColumns + `
		FROM scout_executions e JOIN scouts s ON s.id = e.scout_id
		WHERE e.id = $1 AND e.user_id = $2`

	if err := r.db.GetContext(ctx, &execution, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &execution, nil
}

// ListByScout returns a page of the scout's executions, newest first, and the
// total count.
func (r *ExecutionRepository) ListByScout(
	ctx context.Context, scoutID, userID string, limit, offset int,
) ([]domain.Execution, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM scout_executions WHERE scout_id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &total, countQuery, scoutID, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	executions := []domain.Execution{}
	query := `SELECT ` + executionColumns + `
		FROM scout_executions e JOIN scouts s ON s.id = e.scout_id
		WHERE e.scout_id = $1 AND e.user_id = $2
		ORDER BY e.created_at DESC
		LIMIT $3 OFFSET $4`
	if err := r.db.SelectContext(ctx, &executions, query, scoutID, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, total, nil
}
