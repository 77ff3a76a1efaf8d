// Package compose turns stored information units into writing aids: an
// article draft with source enrichment, an editor's unit selection for a
// village newsletter and the newsletter draft itself.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/llm"
	"github.com/wepublish/dorfkoenig/internal/scrape"
)

const (
	// MaxUnits bounds the units a single draft may be built from.
	MaxUnits = 20
	// MaxSelected bounds how many units a newsletter selection returns.
	MaxSelected = 15
	// SelectionPool is how many unused units the editor model sees.
	SelectionPool = 100

	temperature        = 0.2
	draftMaxTokens     = 2500
	selectionMaxTokens = 1000
	untitled           = "Unbenannter Entwurf"
	unknownDate        = "unbekannt"
	dateLayout         = "2006-01-02"
)

// ErrMalformedOutput is returned when the model answer cannot be parsed.
var ErrMalformedOutput = errors.New("malformed compose output")

// UnitReader loads the units a draft is built from.
type UnitReader interface {
	GetByIDs(ctx context.Context, userID string, ids []string) ([]domain.InformationUnit, error)
	ListUnusedByScout(ctx context.Context, userID, scoutID string, limit int) ([]domain.InformationUnit, error)
}

// Deps are the collaborators of a Service. Sources may be nil, which
// disables source enrichment.
type Deps struct {
	Chat    llm.ChatCompleter
	Units   UnitReader
	Sources scrape.Scraper
	Logger  logger.Logger
	Now     func() time.Time
}

// Service composes drafts.
type Service struct {
	chat    llm.ChatCompleter
	units   UnitReader
	sources scrape.Scraper
	log     logger.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{chat: d.Chat, units: d.Units, sources: d.Sources, log: d.Logger, now: now}
}

// normalizeIDs trims, drops blanks and duplicates, and enforces MaxUnits.
func normalizeIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, domain.Invalid("unit_ids", "is required")
	}
	if len(out) > MaxUnits {
		return nil, domain.Invalid("unit_ids", fmt.Sprintf("at most %d units allowed", MaxUnits))
	}
	return out, nil
}

func (s *Service) loadUnits(ctx context.Context, userID string, ids []string) ([]domain.InformationUnit, error) {
	units, err := s.units.GetByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		return nil, domain.ErrNotFound
	}
	return units, nil
}

// unitDate is the event date, else the creation day.
func unitDate(u domain.InformationUnit) string {
	if u.EventDate != nil {
		return u.EventDate.Format(dateLayout)
	}
	if !u.CreatedAt.IsZero() {
		return u.CreatedAt.Format(dateLayout)
	}
	return unknownDate
}

var typeSections = []struct {
	unitType domain.UnitType
	heading  string
}{
	{domain.UnitFact, "FAKTEN:"},
	{domain.UnitEvent, "EREIGNISSE:"},
	{domain.UnitEntityUpdate, "AKTUALISIERUNGEN:"},
}

// formatByType lists units under a heading per type, skipping empty groups.
func formatByType(units []domain.InformationUnit, line func(domain.InformationUnit) string) string {
	var b strings.Builder
	for _, sec := range typeSections {
		header := false
		for _, u := range units {
			if domain.ParseUnitType(string(u.UnitType)) != sec.unitType {
				continue
			}
			if !header {
				b.WriteString(sec.heading + "\n")
				header = true
			}
			b.WriteString(line(u) + "\n")
		}
		if header {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (s *Service) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	text, err := s.chat.Complete(ctx, llm.ChatRequest{
		System:      system,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSON:        true,
	})
	if err != nil {
		return "", fmt.Errorf("compose completion: %w", err)
	}
	return text, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
