package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/llm"
)

// SelectRequest names the village and the scout whose units are candidates.
type SelectRequest struct {
	VillageID string `json:"village_id"`
	ScoutID   string `json:"scout_id"`
}

// Validate checks the required fields.
func (r SelectRequest) Validate() error {
	if strings.TrimSpace(r.VillageID) == "" {
		return domain.Invalid("village_id", "is required")
	}
	if strings.TrimSpace(r.ScoutID) == "" {
		return domain.Invalid("scout_id", "is required")
	}
	return nil
}

type selectionOutput struct {
	SelectedUnitIDs []string `json:"selected_unit_ids"`
}

// SelectUnits asks the model to pick the units for the next newsletter
// issue from the scout's most recent unused units. Ids the model invents are
// dropped; at most MaxSelected are returned.
func (s *Service) SelectUnits(ctx context.Context, userID string, req SelectRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	units, err := s.units.ListUnusedByScout(ctx, userID, req.ScoutID, SelectionPool)
	if err != nil {
		return nil, fmt.Errorf("load candidate units: %w", err)
	}
	if len(units) == 0 {
		return []string{}, nil
	}

	var b strings.Builder
	b.WriteString("Hier sind die verfügbaren Informationseinheiten:\n\n")
	valid := make(map[string]struct{}, len(units))
	for i, u := range units {
		valid[u.ID] = struct{}{}
		fmt.Fprintf(&b, "[%d] ID: %s | Datum: %s | Typ: %s | %s\n", i+1, u.ID, unitDate(u), u.UnitType, u.Statement)
	}
	b.WriteString("\nWähle die relevantesten Einheiten für den Newsletter aus.")

	text, err := s.complete(ctx, selectionPrompt(s.now().Format(dateLayout)), b.String(), selectionMaxTokens)
	if err != nil {
		return nil, err
	}

	parsed := llm.ParseJSON[selectionOutput](text)
	if !parsed.OK() {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, parsed.Err)
	}

	selected := make([]string, 0, MaxSelected)
	for _, id := range parsed.Value.SelectedUnitIDs {
		if _, ok := valid[id]; !ok {
			continue
		}
		delete(valid, id)
		selected = append(selected, id)
		if len(selected) == MaxSelected {
			break
		}
	}
	if dropped := len(parsed.Value.SelectedUnitIDs) - len(selected); dropped > 0 {
		s.log.Debug("Dropped unit selections",
			logger.String("village_id", req.VillageID),
			logger.Int("dropped", dropped),
		)
	}
	return selected, nil
}

// NewsletterRequest selects the units of a village newsletter.
type NewsletterRequest struct {
	VillageID          string   `json:"village_id"`
	VillageName        string   `json:"village_name"`
	UnitIDs            []string `json:"unit_ids"`
	CustomSystemPrompt string   `json:"custom_system_prompt"`
}

// Normalize trims and validates the request.
func (r *NewsletterRequest) Normalize() error {
	r.VillageName = strings.TrimSpace(r.VillageName)
	if r.VillageName == "" {
		return domain.Invalid("village_name", "is required")
	}
	ids, err := normalizeIDs(r.UnitIDs)
	if err != nil {
		return err
	}
	r.UnitIDs = ids
	return nil
}

// NewsletterSection is one item of the newsletter.
type NewsletterSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Newsletter is a generated village newsletter. Body is the markdown
// rendering, ready to be stored as a draft.
type Newsletter struct {
	Title     string              `json:"title"`
	Greeting  string              `json:"greeting"`
	Sections  []NewsletterSection `json:"sections"`
	Outlook   string              `json:"outlook"`
	SignOff   string              `json:"sign_off"`
	Body      string              `json:"body"`
	UnitsUsed int                 `json:"units_used"`
}

type newsletterOutput struct {
	Title    string              `json:"title"`
	Greeting string              `json:"greeting"`
	Sections []NewsletterSection `json:"sections"`
	Outlook  string              `json:"outlook"`
	SignOff  string              `json:"sign_off"`
}

// Newsletter writes the newsletter for a village from the chosen units.
func (s *Service) Newsletter(ctx context.Context, userID string, req NewsletterRequest) (*Newsletter, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	units, err := s.loadUnits(ctx, userID, req.UnitIDs)
	if err != nil {
		return nil, err
	}

	user := "Hier sind die Informationseinheiten für den Newsletter:\n\n" +
		formatByType(units, func(u domain.InformationUnit) string {
			return fmt.Sprintf("- [%s] %s [%s]", unitDate(u), u.Statement, u.SourceDomain)
		}) +
		"Erstelle den Newsletter basierend auf diesen Informationen."

	system := layered(newsletterGrounding(req.VillageName), newsletterGuidelines, req.CustomSystemPrompt, newsletterFormat)
	text, err := s.complete(ctx, system, user, draftMaxTokens)
	if err != nil {
		return nil, err
	}

	parsed := llm.ParseJSON[newsletterOutput](text)
	if !parsed.OK() {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, parsed.Err)
	}
	out := parsed.Value

	n := &Newsletter{
		Title:     orDefault(out.Title, untitled),
		Greeting:  out.Greeting,
		Sections:  nonNil(out.Sections),
		Outlook:   out.Outlook,
		SignOff:   out.SignOff,
		UnitsUsed: len(units),
	}
	n.Body = n.Markdown()
	return n, nil
}

// Markdown renders the newsletter without its title.
func (n *Newsletter) Markdown() string {
	var parts []string
	if g := strings.TrimSpace(n.Greeting); g != "" {
		parts = append(parts, g)
	}
	for _, sec := range n.Sections {
		block := strings.TrimSpace(sec.Body)
		if h := strings.TrimSpace(sec.Heading); h != "" {
			block = "## " + h + "\n\n" + block
		}
		parts = append(parts, block)
	}
	if o := strings.TrimSpace(n.Outlook); o != "" {
		parts = append(parts, "## Ausblick\n\n"+o)
	}
	if s := strings.TrimSpace(n.SignOff); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
