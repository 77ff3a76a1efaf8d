package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wepublish/dorfkoenig/internal/domain"
)

const unitColumns = `id, user_id, scout_id, execution_id, statement, unit_type, entities,
	source_url, source_domain, source_title, source_type, location, topic, event_date,
	used_in_article, used_at, created_at`

// maxSearchCandidates bounds how many embeddings a semantic search scores.
const maxSearchCandidates = 2000

// UnitRepository handles database operations for information units.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository creates a new unit repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// Insert stores unit and fills its id and created_at.
func (r *UnitRepository) Insert(ctx context.Context, unit *domain.InformationUnit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if unit.Entities == nil {
		unit.Entities = pq.StringArray{}
	}

	query := `
		INSERT INTO information_units (
			id, user_id, scout_id, execution_id, statement, unit_type, entities,
			source_url, source_domain, source_title, source_type, location, topic,
			embedding, event_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		unit.ID,
		unit.UserID,
		unit.ScoutID,
		unit.ExecutionID,
		unit.Statement,
		unit.UnitType,
		unit.Entities,
		unit.SourceURL,
		unit.SourceDomain,
		unit.SourceTitle,
		unit.SourceType,
		unit.Location,
		unit.Topic,
		unit.Embedding,
		unit.EventDate,
	).Scan(&unit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert unit: %w", err)
	}
	return nil
}

// filterClause renders the WHERE clause for f. $1 is always the user id.
func filterClause(userID string, f domain.UnitFilter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{userID}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.LocationCity != "" {
		add("location->>'city' = $%d", f.LocationCity)
	}
	if f.Topic != "" {
		add("topic ILIKE $%d", "%"+escapeLike(f.Topic)+"%")
	}
	if f.ScoutID != "" {
		add("scout_id = $%d", f.ScoutID)
	}
	if f.UnusedOnly {
		conds = append(conds, "used_in_article = FALSE")
	}

	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// List returns a filtered page of units, newest first, and the total count.
func (r *UnitRepository) List(ctx context.Context, userID string, f domain.UnitFilter) ([]domain.InformationUnit, int, error) {
	where, args := filterClause(userID, f)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM information_units WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count units: %w", err)
	}

	units := []domain.InformationUnit{}
	query := fmt.Sprintf(`SELECT %s FROM information_units WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		unitColumns, where, len(args)+1, len(args)+2)
	if err := r.db.SelectContext(ctx, &units, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list units: %w", err)
	}

	return units, total, nil
}

// SearchCandidates returns the user's units matching f together with their
// embeddings, newest first.
func (r *UnitRepository) SearchCandidates(ctx context.Context, userID string, f domain.UnitFilter) ([]domain.InformationUnit, error) {
	where, args := filterClause(userID, f)

	units := []domain.InformationUnit{}
	query := fmt.Sprintf(`SELECT %s, embedding FROM information_units
		WHERE %s AND embedding IS NOT NULL ORDER BY created_at DESC LIMIT %d`,
		unitColumns, where, maxSearchCandidates)
	if err := r.db.SelectContext(ctx, &units, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load search candidates: %w", err)
	}
	return units, nil
}

// Locations counts unused units per city, most frequent first.
func (r *UnitRepository) Locations(ctx context.Context, userID string) ([]domain.LocationCount, error) {
	counts := []domain.LocationCount{}
	query := `
		SELECT location->>'city' AS city, COUNT(*) AS count
		FROM information_units
		WHERE user_id = $1 AND used_in_article = FALSE
		  AND location IS NOT NULL AND COALESCE(location->>'city', '') <> ''
		GROUP BY location->>'city'
		ORDER BY count DESC, city ASC
	`
	if err := r.db.SelectContext(ctx, &counts, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load unit locations: %w", err)
	}
	return counts, nil
}

// ListByExecution returns the units extracted by an execution, oldest first.
func (r *UnitRepository) ListByExecution(ctx context.Context, executionID, userID string) ([]domain.InformationUnit, error) {
	units := []domain.InformationUnit{}
	query := `SELECT ` + unitColumns + ` FROM information_units
		WHERE execution_id = $1 AND user_id = $2 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &units, query, executionID, userID); err != nil {
		return nil, fmt.Errorf("failed to list execution units: %w", err)
	}
	return units, nil
}

// MarkUsed flags the user's units as used and returns how many changed.
func (r *UnitRepository) MarkUsed(ctx context.Context, userID string, ids []string) (int64, error) {
	query := `
		UPDATE information_units
		SET used_in_article = TRUE, used_at = NOW()
		WHERE user_id = $1 AND id = ANY($2)
	`
	res, err := r.db.ExecContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to mark units used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// GetByIDs returns the user's units among ids, oldest first. Unknown ids
// and ids owned by other users are skipped.
func (r *UnitRepository) GetByIDs(ctx context.Context, userID string, ids []string) ([]domain.InformationUnit, error) {
	units := []domain.InformationUnit{}
	query := `SELECT ` + unitColumns + ` FROM information_units
		WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &units, query, userID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get units: %w", err)
	}
	return units, nil
}

// ListUnusedByScout returns up to limit of the scout's unused units, most
// recent event first, then newest.
func (r *UnitRepository) ListUnusedByScout(ctx context.Context, userID, scoutID string, limit int) ([]domain.InformationUnit, error) {
	units := []domain.InformationUnit{}
	query := `SELECT ` + unitColumns + ` FROM information_units
		WHERE user_id = $1 AND scout_id = $2 AND used_in_article = FALSE
		ORDER BY event_date DESC NULLS LAST, created_at DESC
		LIMIT $3`
	if err := r.db.SelectContext(ctx, &units, query, userID, scoutID, limit); err != nil {
		return nil, fmt.Errorf("failed to list unused units: %w", err)
	}
	return units, nil
}
