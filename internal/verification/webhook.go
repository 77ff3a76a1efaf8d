package verification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	infracontext "github.com/wepublish/dorfkoenig/infrastructure/context"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
)

// WebhookStatus is the outcome of one inbound delivery. The HTTP response is
// always 200; the status travels in the body.
type WebhookStatus string

const (
	StatusInvalidSignature WebhookStatus = "invalid_signature"
	StatusNoMessage        WebhookStatus = "no_message"
	StatusIgnored          WebhookStatus = "ignored"
	StatusUnknownResponse  WebhookStatus = "unknown_response"
	StatusUnknownPhone     WebhookStatus = "unknown_phone"
	StatusAlreadyResponded WebhookStatus = "already_responded"
	StatusNoPendingDraft   WebhookStatus = "no_pending_draft"
	StatusProcessed        WebhookStatus = "processed"
	StatusDBError          WebhookStatus = "db_error"
	StatusUpdateError      WebhookStatus = "update_error"
	StatusError            WebhookStatus = "error"
)

const (
	modeSubscribe  = "subscribe"
	webhookTimeout = 30 * time.Second
)

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From        string `json:"from"`
	Type        string `json:"type"`
	Interactive *struct {
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
	// Template quick-reply buttons arrive in this shape.
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
}

func (p *webhookPayload) firstMessage() (*inboundMessage, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return nil, false
	}
	return &msgs[0], true
}

func (m *inboundMessage) buttonTitle() (string, bool) {
	switch {
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title, true
	case m.Button != nil:
		return m.Button.Text, true
	default:
		return "", false
	}
}

// ParseReply maps a button title to a response. Only confirm and reject are
// accepted.
func ParseReply(title string) (domain.VerificationStatus, bool) {
	status, ok := domain.ParseVerificationStatus(title)
	if !ok || status == domain.VerificationPending {
		return "", false
	}
	return status, true
}

// VerifySubscription answers the provider's subscription handshake. It
// returns the challenge to echo and whether the request is authorized.
func (s *Service) VerifySubscription(mode, token, challenge string) (string, bool) {
	if mode != modeSubscribe || s.verifyToken == "" || token != s.verifyToken {
		return "", false
	}
	return challenge, true
}

// HandleWebhook processes one signed delivery. Expected outcomes are
// reported through the returned status; nothing is mutated unless the
// signature verifies.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) (status WebhookStatus) {
	ctx, cancel := infracontext.Detached(ctx, webhookTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Webhook handler panicked", logger.Any("panic", r))
			status = StatusError
		}
		s.telemetry.RecordWebhook(string(status))
	}()

	if s.signer == nil || !s.signer.Verify(body, signatureHeader) {
		s.log.Warn("Webhook signature rejected")
		return StatusInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.log.Warn("Webhook payload malformed", logger.Error(err))
		return StatusError
	}

	msg, ok := payload.firstMessage()
	if !ok {
		return StatusNoMessage
	}

	title, ok := msg.buttonTitle()
	if !ok {
		return StatusIgnored
	}

	reply, ok := ParseReply(title)
	if !ok {
		s.log.Info("Webhook reply not recognized", logger.String("title", title))
		return StatusUnknownResponse
	}

	phone := NormalizePhone(msg.From)
	match, ok := s.directory.FindByPhone(phone)
	if !ok {
		s.log.Warn("Webhook reply from unknown phone", logger.String("phone", MaskPhone(phone)))
		return StatusUnknownPhone
	}

	draft, err := s.drafts.FindAwaitingReply(ctx, match.VillageIDs)
	if errors.Is(err, domain.ErrNotFound) {
		return StatusNoPendingDraft
	}
	if err != nil {
		s.log.Error("Pending draft lookup failed", logger.Error(err))
		return StatusDBError
	}

	log := s.log.With(logger.String("draft_id", draft.ID), logger.String("phone", MaskPhone(phone)))

	if draft.VerificationResponses.Answered(phone) {
		log.Info("Correspondent already responded")
		return StatusAlreadyResponded
	}

	total := len(s.directory.ForVillage(draft.VillageID))
	updated, err := s.drafts.AppendResponse(ctx, draft.ID, domain.VerificationResponse{
		Name:        match.Correspondent.Name,
		Phone:       phone,
		Response:    reply,
		RespondedAt: s.now(),
	}, func(responses domain.VerificationResponses) domain.VerificationStatus {
		return Resolve(responses, total)
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyResponded):
		log.Info("Correspondent already responded")
		return StatusAlreadyResponded
	case errors.Is(err, domain.ErrNotFound):
		log.Info("Draft resolved before the reply was recorded")
		return StatusNoPendingDraft
	case err != nil:
		log.Error("Recording verification response failed", logger.Error(err))
		return StatusUpdateError
	}

	log.Info("Verification response recorded",
		logger.String("response", string(reply)),
		logger.String("status", string(updated.VerificationStatus)),
		logger.Int("responses", len(updated.VerificationResponses)),
		logger.Int("correspondents", total),
	)

	if _, err := s.Sweep(ctx); err != nil {
		log.Warn("Timeout sweep failed", logger.Error(err))
	}

	return StatusProcessed
}
