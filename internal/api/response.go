// Package api exposes the dorfkoenig services over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wepublish/dorfkoenig/infrastructure/jwt"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
)

const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeExecutionRunning = "EXECUTION_RUNNING"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorBody is the error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a message and a machine-readable code.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func respondMessage(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Message: message, Code: code}})
}

// respondError maps service errors onto status codes. Unexpected errors are
// logged and reported with the generic message.
func respondError(c *gin.Context, err error, message string) {
	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondMessage(c, http.StatusNotFound, CodeNotFound, "not found")
	case errors.As(err, &vErr):
		respondMessage(c, http.StatusBadRequest, CodeValidation, vErr.Error())
	case errors.Is(err, domain.ErrValidation):
		respondMessage(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrExecutionRunning):
		respondMessage(c, http.StatusConflict, CodeExecutionRunning, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		respondMessage(c, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	default:
		logger.FromContext(c.Request.Context()).Error(message,
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
		_ = c.Error(err)
		respondMessage(c, http.StatusInternalServerError, CodeInternal, message)
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondMessage(c, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// userID returns the authenticated subject. Routes mounted without the JWT
// middleware fall back to the X-User-ID header.
func userID(c *gin.Context) (string, bool) {
	if id := jwt.UserID(c); id != "" {
		return id, true
	}
	if id := c.GetHeader(userHeader); id != "" {
		return id, true
	}
	respondMessage(c, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	return "", false
}

const userHeader = "X-User-ID"

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func queryBool(c *gin.Context, key string, def bool) bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
