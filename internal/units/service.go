// Package units serves the information unit pool: listing, semantic search,
// usage bookkeeping and manual text uploads.
package units

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/extractor"
	"github.com/wepublish/dorfkoenig/internal/similarity"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100

	DefaultSearchLimit   = 20
	MaxSearchLimit       = 50
	DefaultMinSimilarity = 0.3

	MinTextRunes = 20
	MaxTextRunes = 6000
)

// Repository reads and flags units.
type Repository interface {
	List(ctx context.Context, userID string, f domain.UnitFilter) ([]domain.InformationUnit, int, error)
	SearchCandidates(ctx context.Context, userID string, f domain.UnitFilter) ([]domain.InformationUnit, error)
	Locations(ctx context.Context, userID string) ([]domain.LocationCount, error)
	MarkUsed(ctx context.Context, userID string, ids []string) (int64, error)
}

// Embedder embeds a search query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ManualExtractor turns uploaded text into stored units.
type ManualExtractor interface {
	ExtractManual(ctx context.Context, in extractor.ManualInput) ([]string, error)
}

// Limiter meters uploads per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
	Record(ctx context.Context, userID string) error
}

// Service implements the unit operations. A nil Limiter disables the upload
// quota.
type Service struct {
	repo      Repository
	embedder  Embedder
	extractor ManualExtractor
	limiter   Limiter
	log       logger.Logger
}

// NewService creates a Service.
func NewService(repo Repository, embedder Embedder, ext ManualExtractor, limiter Limiter, log logger.Logger) *Service {
	return &Service{repo: repo, embedder: embedder, extractor: ext, limiter: limiter, log: log}
}

// ListResult is a page of units.
type ListResult struct {
	Units  []domain.InformationUnit
	Total  int
	Limit  int
	Offset int
}

// List returns a filtered page of the user's units.
func (s *Service) List(ctx context.Context, userID string, f domain.UnitFilter) (*ListResult, error) {
	f.Limit = clamp(f.Limit, DefaultListLimit, MaxListLimit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	units, total, err := s.repo.List(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Units: units, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Locations returns unused-unit counts per city.
func (s *Service) Locations(ctx context.Context, userID string) ([]domain.LocationCount, error) {
	return s.repo.Locations(ctx, userID)
}

// SearchQuery parameterizes a semantic search.
type SearchQuery struct {
	Query         string
	Filter        domain.UnitFilter
	MinSimilarity *float64
	Limit         int
}

// Search embeds the query and ranks the user's units by cosine similarity.
func (s *Service) Search(ctx context.Context, userID string, q SearchQuery) ([]domain.InformationUnit, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, domain.Invalid("q", "is required")
	}
	limit := clamp(q.Limit, DefaultSearchLimit, MaxSearchLimit)
	minSim := DefaultMinSimilarity
	if q.MinSimilarity != nil {
		minSim = *q.MinSimilarity
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.repo.SearchCandidates(ctx, userID, q.Filter)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(candidates))
	for i := range candidates {
		vectors[i] = candidates[i].Embedding
	}

	matches := similarity.Rank(vector, vectors, minSim)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]domain.InformationUnit, 0, len(matches))
	for _, m := range matches {
		unit := candidates[m.Index]
		sim := m.Similarity
		unit.Similarity = &sim
		out = append(out, unit)
	}
	return out, nil
}

// MarkUsed flags the given units as used in an article.
func (s *Service) MarkUsed(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.Invalid("unit_ids", "is required")
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, domain.Invalid("unit_ids", "must contain valid ids")
		}
	}
	return s.repo.MarkUsed(ctx, userID, ids)
}

// Upload is a manual text submission.
type Upload struct {
	Text        string           `json:"text"`
	Location    *domain.Location `json:"location"`
	Topic       string           `json:"topic"`
	SourceTitle string           `json:"source_title"`
}

// UploadResult lists the units created from an upload.
type UploadResult struct {
	UnitsCreated int      `json:"units_created"`
	UnitIDs      []string `json:"unit_ids"`
}

// Validate checks length bounds and that a location or topic is given.
func (u *Upload) Validate() error {
	trimmed := strings.TrimSpace(u.Text)
	switch {
	case trimmed == "":
		return domain.Invalid("text", "is required")
	case utf8.RuneCountInString(trimmed) < MinTextRunes:
		return domain.Invalid("text", "must be at least 20 characters")
	case utf8.RuneCountInString(u.Text) > MaxTextRunes:
		return domain.Invalid("text", "must be at most 6000 characters")
	case (u.Location == nil || u.Location.City == "") && strings.TrimSpace(u.Topic) == "":
		return domain.Invalid("location", "location or topic is required")
	}
	return nil
}

// UploadText extracts units from user text. It returns domain.ErrRateLimited
// once the user's hourly quota is spent.
func (s *Service) UploadText(ctx context.Context, userID string, in Upload) (*UploadResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			s.log.Warn("Upload rate limit check failed", logger.Error(err))
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	location := in.Location
	if location != nil && location.City == "" {
		location = nil
	}

	ids, err := s.extractor.ExtractManual(ctx, extractor.ManualInput{
		UserID:      userID,
		Text:        strings.TrimSpace(in.Text),
		Location:    location,
		Topic:       strings.TrimSpace(in.Topic),
		SourceTitle: strings.TrimSpace(in.SourceTitle),
	})
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Record(ctx, userID); err != nil {
			s.log.Warn("Upload rate limit record failed", logger.Error(err))
		}
	}

	s.log.Info("Manual upload processed",
		logger.String("user_id", userID),
		logger.Int("units_created", len(ids)),
	)
	return &UploadResult{UnitsCreated: len(ids), UnitIDs: ids}, nil
}

func clamp(v, def, maxV int) int {
	if v <= 0 {
		return def
	}
	return min(v, maxV)
}
