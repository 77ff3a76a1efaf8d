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

const draftColumns = `id, user_id, village_id, village_name, title, body, selected_unit_ids,
	custom_system_prompt, verification_status, verification_responses, verification_sent_at,
	verification_resolved_at, verification_timeout_at, whatsapp_message_ids, created_at, updated_at`

// DraftRepository handles database operations for newsletter drafts.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Create inserts draft and fills its id, status and timestamps.
func (r *DraftRepository) Create(ctx context.Context, draft *domain.Draft) error {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.SelectedUnitIDs == nil {
		draft.SelectedUnitIDs = pq.StringArray{}
	}
	draft.VerificationStatus = domain.VerificationPending

	query := `
		INSERT INTO bajour_drafts (
			id, user_id, village_id, village_name, title, body,
			selected_unit_ids, custom_system_prompt, verification_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		draft.ID,
		draft.UserID,
		draft.VillageID,
		draft.VillageName,
		draft.Title,
		draft.Body,
		draft.SelectedUnitIDs,
		draft.CustomSystemPrompt,
		draft.VerificationStatus,
	).Scan(&draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// GetByID returns the draft owned by userID.
func (r *DraftRepository) GetByID(ctx context.Context, id, userID string) (*domain.Draft, error) {
	var draft domain.Draft
	query := `SELECT ` + draftColumns + ` FROM bajour_drafts WHERE id = $1 AND user_id = $2`

	if err := r.db.GetContext(ctx, &draft, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

// List returns the user's drafts, newest first.
func (r *DraftRepository) List(ctx context.Context, userID string) ([]domain.Draft, error) {
	drafts := []domain.Draft{}
	query := `SELECT ` + draftColumns + ` FROM bajour_drafts WHERE user_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &drafts, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return drafts, nil
}

// UpdateContent writes the user-editable fields of draft.
func (r *DraftRepository) UpdateContent(ctx context.Context, draft *domain.Draft) error {
	query := `
		UPDATE bajour_drafts
		SET village_id = $1, village_name = $2, title = $3, body = $4,
		    selected_unit_ids = $5, custom_system_prompt = $6, updated_at = NOW()
		WHERE id = $7 AND user_id = $8
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		draft.VillageID,
		draft.VillageName,
		draft.Title,
		draft.Body,
		draft.SelectedUnitIDs,
		draft.CustomSystemPrompt,
		draft.ID,
		draft.UserID,
	).Scan(&draft.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update draft: %w", err)
	}
	return nil
}

// OverrideStatus sets the status directly. resolvedAt is written only when
// non-nil.
func (r *DraftRepository) OverrideStatus(
	ctx context.Context, id, userID string, status domain.VerificationStatus, resolvedAt *time.Time,
) error {
	query := `
		UPDATE bajour_drafts
		SET verification_status = $1,
		    verification_resolved_at = COALESCE($2, verification_resolved_at),
		    updated_at = NOW()
		WHERE id = $3 AND user_id = $4
	`
	res, err := r.db.ExecContext(ctx, query, status, resolvedAt, id, userID)
	if err != nil {
		return fmt.Errorf("failed to override draft status: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// MarkSent records a verification send. It reopens the draft: status goes
// back to pending and earlier responses are cleared.
func (r *DraftRepository) MarkSent(
	ctx context.Context, id, userID string, sentAt, timeoutAt time.Time, messageIDs []string,
) error {
	query := `
		UPDATE bajour_drafts
		SET verification_status = 'pending',
		    verification_responses = '[]'::jsonb,
		    verification_sent_at = $1,
		    verification_timeout_at = $2,
		    verification_resolved_at = NULL,
		    whatsapp_message_ids = $3,
		    updated_at = NOW()
		WHERE id = $4 AND user_id = $5
	`
	res, err := r.db.ExecContext(ctx, query, sentAt, timeoutAt, pq.StringArray(messageIDs), id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark draft sent: %w", err)
	}
	return checkAffected(res, domain.ErrNotFound)
}

// FindAwaitingReply returns the most recently sent draft for one of the
// villages that is pending and unresolved.
func (r *DraftRepository) FindAwaitingReply(ctx context.Context, villageIDs []string) (*domain.Draft, error) {
	var draft domain.Draft
	query := `SELECT ` + draftColumns + ` FROM bajour_drafts
		WHERE village_id = ANY($1)
		  AND verification_status = 'pending'
		  AND verification_sent_at IS NOT NULL
		  AND verification_resolved_at IS NULL
		ORDER BY verification_sent_at DESC
		LIMIT 1`

	if err := r.db.GetContext(ctx, &draft, query, pq.Array(villageIDs)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pending draft: %w", err)
	}
	return &draft, nil
}

// AppendResponse adds resp to a pending, unresolved draft and stores the
// status resolve derives from the full list. The row is locked for the
// read-modify-write, so concurrent replies from different correspondents
// are all kept. Returns domain.ErrNotFound when the draft is no longer
// awaiting replies and domain.ErrAlreadyResponded for a repeat phone.
func (r *DraftRepository) AppendResponse(
	ctx context.Context, id string, resp domain.VerificationResponse,
	resolve func(domain.VerificationResponses) domain.VerificationStatus,
) (*domain.Draft, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin response transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var draft domain.Draft
	query := `SELECT ` + draftColumns + ` FROM bajour_drafts
		WHERE id = $1 AND verification_status = 'pending' AND verification_resolved_at IS NULL
		FOR UPDATE`
	if err = tx.GetContext(ctx, &draft, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock draft: %w", err)
	}

	if draft.VerificationResponses.Answered(resp.Phone) {
		return nil, domain.ErrAlreadyResponded
	}

	draft.VerificationResponses = append(draft.VerificationResponses, resp)
	draft.VerificationStatus = resolve(draft.VerificationResponses)
	if draft.VerificationStatus != domain.VerificationPending {
		resolvedAt := resp.RespondedAt
		draft.VerificationResolvedAt = &resolvedAt
	}

	update := `
		UPDATE bajour_drafts
		SET verification_responses = $1,
		    verification_status = $2,
		    verification_resolved_at = $3,
		    updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`
	err = tx.QueryRowxContext(ctx, update,
		draft.VerificationResponses,
		draft.VerificationStatus,
		draft.VerificationResolvedAt,
		id,
	).Scan(&draft.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record verification response: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit response transaction: %w", err)
	}
	return &draft, nil
}

// ResolveTimeouts confirms every pending draft whose timeout has passed and
// returns how many were resolved.
func (r *DraftRepository) ResolveTimeouts(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE bajour_drafts
		SET verification_status = 'confirmed', verification_resolved_at = $1, updated_at = NOW()
		WHERE verification_status = 'pending'
		  AND verification_resolved_at IS NULL
		  AND verification_timeout_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve verification timeouts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
