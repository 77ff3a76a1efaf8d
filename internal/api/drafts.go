package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/verification"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBody  = 1 << 20
)

// DraftService owns drafts and their verification.
type DraftService interface {
	Create(ctx context.Context, userID string, in domain.DraftCreate) (*domain.Draft, error)
	Get(ctx context.Context, id, userID string) (*domain.Draft, error)
	List(ctx context.Context, userID string) ([]domain.Draft, error)
	Update(ctx context.Context, id, userID string, in domain.DraftUpdate) (*domain.Draft, error)
	Send(ctx context.Context, id, userID string) (*verification.SendResult, error)
	HandleWebhook(ctx context.Context, body []byte, signatureHeader string) verification.WebhookStatus
	VerifySubscription(mode, token, challenge string) (string, bool)
}

// DraftHandler serves drafts and the WhatsApp webhook.
type DraftHandler struct {
	drafts DraftService
}

// NewDraftHandler creates a DraftHandler.
func NewDraftHandler(svc DraftService) *DraftHandler {
	return &DraftHandler{drafts: svc}
}

// Create handles POST /api/v1/drafts.
func (h *DraftHandler) Create(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var in domain.DraftCreate
	if !bindJSON(c, &in) {
		return
	}

	draft, err := h.drafts.Create(c.Request.Context(), user, in)
	if err != nil {
		respondError(c, err, "failed to create draft")
		return
	}
	respondData(c, http.StatusCreated, draft)
}

// List handles GET /api/v1/drafts.
func (h *DraftHandler) List(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	drafts, err := h.drafts.List(c.Request.Context(), user)
	if err != nil {
		respondError(c, err, "failed to list drafts")
		return
	}
	respondData(c, http.StatusOK, drafts)
}

// Get handles GET /api/v1/drafts/:id.
func (h *DraftHandler) Get(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	draft, err := h.drafts.Get(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, err, "failed to load draft")
		return
	}
	respondData(c, http.StatusOK, draft)
}

// Update handles PATCH /api/v1/drafts/:id.
func (h *DraftHandler) Update(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var in domain.DraftUpdate
	if !bindJSON(c, &in) {
		return
	}

	draft, err := h.drafts.Update(c.Request.Context(), c.Param("id"), user, in)
	if err != nil {
		respondError(c, err, "failed to update draft")
		return
	}
	respondData(c, http.StatusOK, draft)
}

// SendVerification handles POST /api/v1/drafts/:id/send-verification.
func (h *DraftHandler) SendVerification(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	res, err := h.drafts.Send(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, err, "failed to send verification")
		return
	}
	respondData(c, http.StatusOK, res)
}

// VerifyWebhook answers the subscription handshake.
// VerifyWebhook handles the GET /api/v1/webhooks/whatsapp subscription challenge.
func (h *DraftHandler) VerifyWebhook(c *gin.Context) {
	challenge, ok := h.drafts.VerifySubscription(
		c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if !ok {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook always answers 200 so the provider does not redeliver; the
// outcome is reported in the body.
// ReceiveWebhook handles POST /api/v1/webhooks/whatsapp. The body must carry a
// valid X-Hub-Signature-256.
func (h *DraftHandler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": verification.StatusError})
		return
	}
	status := h.drafts.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader))
	c.JSON(http.StatusOK, gin.H{"status": status})
}
