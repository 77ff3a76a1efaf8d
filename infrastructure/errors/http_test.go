package errors_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/wepublish/dorfkoenig/infrastructure/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantNil     bool
		wantMessage string
		retryable   bool
	}{
		{name: "success is nil", status: http.StatusOK, body: "{}", wantNil: true},
		{name: "message field", status: http.StatusBadRequest, body: `{"message":"bad email"}`, wantMessage: "bad email"},
		{name: "string error field", status: http.StatusUnauthorized, body: `{"error":"invalid key"}`, wantMessage: "invalid key"},
		{name: "nested error object", status: http.StatusBadRequest, body: `{"error":{"message":"(#100) param"}}`, wantMessage: "(#100) param"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", wantMessage: "upstream down", retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "", retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := infraerrors.ParseHTTPError("Resend", response(tt.status, tt.body))
			if tt.wantNil {
				require.NoError(t, err)
				return
			}

			var httpErr *infraerrors.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantMessage, httpErr.Message)
			assert.Equal(t, tt.retryable, infraerrors.IsRetryable(fmt.Errorf("wrapped: %w", err)))

			code, ok := infraerrors.StatusCode(err)
			assert.True(t, ok)
			assert.Equal(t, tt.status, code)
		})
	}
}
