// Package errors turns non-2xx responses from remote collaborators into typed
// errors the callers can inspect.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// HTTPError is a failed response from a remote API.
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error: %d - %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %d", e.Service, e.StatusCode)
}

// Retryable reports whether the status suggests a transient failure.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ParseHTTPError reads resp and returns an *HTTPError for statuses >= 400, nil
// otherwise. The message is taken from common JSON shapes ("error",
// "message", "error.message") before falling back to the raw body.
func ParseHTTPError(service string, resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return &HTTPError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read error body: %v", readErr),
		}
	}

	body := strings.TrimSpace(string(raw))
	return &HTTPError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       body,
		Message:    extractMessage(raw, body),
	}
}

func extractMessage(raw []byte, fallback string) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return fallback
	}

	if payload.Message != "" {
		return payload.Message
	}

	if len(payload.Error) > 0 {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}

	return fallback
}

// StatusCode returns the status carried by err if it wraps an *HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// IsRetryable reports whether err wraps a retryable *HTTPError.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Retryable()
}
