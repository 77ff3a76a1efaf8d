package verification

import (
	"context"
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/signature"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/notify"
	"github.com/wepublish/dorfkoenig/internal/telemetry"
)

const (
	// Timeout is how long correspondents have before silence counts as
	// approval.
	Timeout = 2 * time.Hour
	// TemplateName is the approved WhatsApp template carrying the
	// confirm/reject buttons.
	TemplateName     = "bajour_draft_verification"
	templateLanguage = "de"
)

// DraftStore persists drafts.
type DraftStore interface {
	Create(ctx context.Context, draft *domain.Draft) error
	GetByID(ctx context.Context, id, userID string) (*domain.Draft, error)
	List(ctx context.Context, userID string) ([]domain.Draft, error)
	UpdateContent(ctx context.Context, draft *domain.Draft) error
	OverrideStatus(ctx context.Context, id, userID string, status domain.VerificationStatus, resolvedAt *time.Time) error
	MarkSent(ctx context.Context, id, userID string, sentAt, timeoutAt time.Time, messageIDs []string) error
	FindAwaitingReply(ctx context.Context, villageIDs []string) (*domain.Draft, error)
	AppendResponse(ctx context.Context, id string, resp domain.VerificationResponse,
		resolve func(domain.VerificationResponses) domain.VerificationStatus) (*domain.Draft, error)
	ResolveTimeouts(ctx context.Context, now time.Time) (int64, error)
}

// Messenger delivers a WhatsApp message and returns its id.
type Messenger interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Drafts      DraftStore
	Messenger   Messenger
	Directory   Directory
	Signer      *signature.Signer
	VerifyToken string
	Telemetry   *telemetry.Provider
	Logger      logger.Logger
	Now         func() time.Time
}

// Service owns the draft lifecycle.
type Service struct {
	drafts      DraftStore
	messenger   Messenger
	directory   Directory
	signer      *signature.Signer
	verifyToken string
	telemetry   *telemetry.Provider
	log         logger.Logger
	now         func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	dir := d.Directory
	if dir == nil {
		dir = Directory{}
	}
	return &Service{
		drafts:      d.Drafts,
		messenger:   d.Messenger,
		directory:   dir,
		signer:      d.Signer,
		verifyToken: d.VerifyToken,
		telemetry:   d.Telemetry,
		log:         d.Logger,
		now:         now,
	}
}

// Create stores a new pending draft.
func (s *Service) Create(ctx context.Context, userID string, in domain.DraftCreate) (*domain.Draft, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}

	draft := &domain.Draft{
		UserID:             userID,
		VillageID:          in.VillageID,
		VillageName:        in.VillageName,
		Title:              optional(in.Title),
		Body:               in.Body,
		SelectedUnitIDs:    *in.SelectedUnitIDs,
		CustomSystemPrompt: optional(in.CustomSystemPrompt),
	}
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}
	return s.display(draft), nil
}

// Get returns one draft with its display status.
func (s *Service) Get(ctx context.Context, id, userID string) (*domain.Draft, error) {
	draft, err := s.drafts.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.display(draft), nil
}

// List returns the user's drafts, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Draft, error) {
	drafts, err := s.drafts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		s.display(&drafts[i])
	}
	return drafts, nil
}

// Update edits content fields and optionally forces the verification
// status. Moving off pending stamps resolved_at.
func (s *Service) Update(ctx context.Context, id, userID string, in domain.DraftUpdate) (*domain.Draft, error) {
	var (
		status   domain.VerificationStatus
		override bool
	)
	// unknown status values are ignored
	if in.VerificationStatus != nil {
		status, override = domain.ParseVerificationStatus(*in.VerificationStatus)
	}
	if !in.HasContentChanges() && !override {
		return nil, domain.Invalid("", "no fields to update")
	}

	draft, err := s.drafts.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if in.HasContentChanges() {
		if err := applyUpdate(draft, in); err != nil {
			return nil, err
		}
		if err := s.drafts.UpdateContent(ctx, draft); err != nil {
			return nil, err
		}
	}

	if override {
		var resolvedAt *time.Time
		if status != domain.VerificationPending {
			now := s.now()
			resolvedAt = &now
		}
		if err := s.drafts.OverrideStatus(ctx, id, userID, status, resolvedAt); err != nil {
			return nil, err
		}
		draft.VerificationStatus = status
		if resolvedAt != nil {
			draft.VerificationResolvedAt = resolvedAt
		}
	}

	return s.display(draft), nil
}

// Sweep confirms every pending draft whose timeout has passed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.drafts.ResolveTimeouts(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Resolved timed out verifications", logger.Int64("count", n))
	}
	s.telemetry.RecordTimeouts(n)
	return n, nil
}

func (s *Service) display(d *domain.Draft) *domain.Draft {
	d.DisplayStatus = d.EffectiveStatus(s.now())
	return d
}

func applyUpdate(d *domain.Draft, in domain.DraftUpdate) error {
	if in.Title != nil {
		d.Title = optional(in.Title)
	}
	if in.Body != nil {
		body := strings.TrimSpace(*in.Body)
		if body == "" {
			return domain.Invalid("body", "must not be empty")
		}
		d.Body = body
	}
	if in.VillageID != nil {
		village := strings.TrimSpace(*in.VillageID)
		if village == "" {
			return domain.Invalid("village_id", "must not be empty")
		}
		d.VillageID = village
	}
	if in.VillageName != nil {
		name := strings.TrimSpace(*in.VillageName)
		if name == "" {
			return domain.Invalid("village_name", "must not be empty")
		}
		d.VillageName = name
	}
	if in.SelectedUnitIDs != nil {
		d.SelectedUnitIDs = *in.SelectedUnitIDs
	}
	if in.CustomSystemPrompt != nil {
		d.CustomSystemPrompt = optional(in.CustomSystemPrompt)
	}
	return nil
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
