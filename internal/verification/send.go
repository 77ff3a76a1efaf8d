package verification

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/notify"
)

// ErrSendInFlight is returned when the draft was already sent and is still
// waiting for replies.
var ErrSendInFlight = fmt.Errorf("%w: verification already in progress", domain.ErrValidation)

// SendResult reports a completed send.
type SendResult struct {
	SentCount int       `json:"sent_count"`
	TimeoutAt time.Time `json:"verification_timeout_at"`
}

// Send delivers the draft to every correspondent of its village: the full
// text followed by the confirm/reject template. Any failed message fails the
// whole send and leaves the draft untouched.
func (s *Service) Send(ctx context.Context, id, userID string) (*SendResult, error) {
	draft, err := s.drafts.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if awaitingReply(draft, now) {
		return nil, ErrSendInFlight
	}

	people := s.directory.ForVillage(draft.VillageID)
	if len(people) == 0 {
		return nil, domain.Invalid("village_id",
			fmt.Sprintf("no correspondents found for village %q", draft.VillageID))
	}

	ctx, span := s.telemetry.StartSpan(ctx, "verification.send",
		attribute.String("draft_id", draft.ID),
		attribute.String("village_id", draft.VillageID),
		attribute.Int("correspondents", len(people)),
	)
	defer span.End()

	messageIDs := make([]string, 0, 2*len(people))
	for _, c := range people {
		for _, msg := range []notify.Message{
			notify.TextMessage(c.Phone, draft.Body),
			notify.TemplateMessage(c.Phone, TemplateName, templateLanguage, draft.VillageName),
		} {
			msgID, sendErr := s.messenger.Send(ctx, msg)
			if sendErr != nil {
				span.RecordError(sendErr)
				span.SetStatus(codes.Error, "send failed")
				s.log.Error("Verification send failed",
					logger.String("draft_id", draft.ID),
					logger.String("phone", MaskPhone(NormalizePhone(c.Phone))),
					logger.Error(sendErr),
				)
				return nil, fmt.Errorf("send verification to %s: %w", c.Name, sendErr)
			}
			messageIDs = append(messageIDs, msgID)
		}
	}

	timeoutAt := now.Add(Timeout)
	if err := s.drafts.MarkSent(ctx, draft.ID, userID, now, timeoutAt, messageIDs); err != nil {
		return nil, err
	}

	s.log.Info("Verification sent",
		logger.String("draft_id", draft.ID),
		logger.String("village_id", draft.VillageID),
		logger.Int("correspondents", len(people)),
	)
	return &SendResult{SentCount: len(people), TimeoutAt: timeoutAt}, nil
}

// awaitingReply reports whether an earlier send is still collecting replies.
func awaitingReply(d *domain.Draft, now time.Time) bool {
	return d.VerificationSentAt != nil &&
		d.VerificationResolvedAt == nil &&
		d.VerificationStatus == domain.VerificationPending &&
		d.VerificationTimeoutAt != nil &&
		d.VerificationTimeoutAt.After(now)
}
