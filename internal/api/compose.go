package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/internal/compose"
)

// ComposeService drafts articles and newsletters from units.
type ComposeService interface {
	Article(ctx context.Context, userID string, req compose.ArticleRequest) (*compose.Article, error)
	SelectUnits(ctx context.Context, userID string, req compose.SelectRequest) ([]string, error)
	Newsletter(ctx context.Context, userID string, req compose.NewsletterRequest) (*compose.Newsletter, error)
}

// ComposeHandler serves the drafting endpoints.
type ComposeHandler struct {
	compose ComposeService
}

// NewComposeHandler creates a ComposeHandler.
func NewComposeHandler(svc ComposeService) *ComposeHandler {
	return &ComposeHandler{compose: svc}
}

// Article handles POST /api/v1/compose/generate.
func (h *ComposeHandler) Article(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req compose.ArticleRequest
	if !bindJSON(c, &req) {
		return
	}

	article, err := h.compose.Article(c.Request.Context(), user, req)
	if err != nil {
		respondComposeError(c, err, "failed to generate article draft")
		return
	}
	respondData(c, http.StatusOK, article)
}

// SelectUnits handles POST /api/v1/compose/select-units.
func (h *ComposeHandler) SelectUnits(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req compose.SelectRequest
	if !bindJSON(c, &req) {
		return
	}

	ids, err := h.compose.SelectUnits(c.Request.Context(), user, req)
	if err != nil {
		respondComposeError(c, err, "failed to select units")
		return
	}
	respondData(c, http.StatusOK, gin.H{"selected_unit_ids": ids})
}

// Newsletter handles POST /api/v1/compose/newsletter.
func (h *ComposeHandler) Newsletter(c *gin.Context) {
	user, ok := userID(c)
	if !ok {
		return
	}
	var req compose.NewsletterRequest
	if !bindJSON(c, &req) {
		return
	}

	newsletter, err := h.compose.Newsletter(c.Request.Context(), user, req)
	if err != nil {
		respondComposeError(c, err, "failed to generate newsletter draft")
		return
	}
	respondData(c, http.StatusOK, newsletter)
}

// respondComposeError reports unusable model output as a bad gateway.
func respondComposeError(c *gin.Context, err error, message string) {
	if errors.Is(err, compose.ErrMalformedOutput) {
		_ = c.Error(err)
		respondMessage(c, http.StatusBadGateway, CodeUpstream, message)
		return
	}
	respondError(c, err, message)
}
