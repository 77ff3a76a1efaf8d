// Package notify delivers scout alerts by email (Resend) and verification
// requests by WhatsApp (Meta Cloud API).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/circuitbreaker"
	infraerrors "github.com/wepublish/dorfkoenig/infrastructure/errors"
	infrahttp "github.com/wepublish/dorfkoenig/infrastructure/http"
	"github.com/wepublish/dorfkoenig/infrastructure/retry"
)

const (
	DefaultResendBaseURL = "https://api.resend.com"
	DefaultSender        = "Dorfkönig <noreply@labs.wepublish.cloud>"
)

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// ResendConfig configures the Resend client.
type ResendConfig struct {
	APIKey  string
	From    string
	BaseURL string
	Retry   retry.Config
}

// Resend sends email through the Resend REST API.
type Resend struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	retry   retry.Config
	breaker *circuitbreaker.Breaker
}

// NewResend builds a client.
func NewResend(cfg ResendConfig) *Resend {
	if cfg.From == "" {
		cfg.From = DefaultSender
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultResendBaseURL
	}

	return &Resend{
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		baseURL: base,
		client:  infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: 20 * time.Second}),
		retry:   cfg.Retry,
		breaker: circuitbreaker.New(circuitbreaker.Config{Name: "resend", FailureThreshold: 5, OpenTimeout: time.Minute}),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers msg and returns the Resend message id.
func (r *Resend) Send(ctx context.Context, msg Email) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", errors.New("recipient is required")
	}

	payload, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	var id string
	err = r.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, r.retry, func(ctx context.Context) error {
			var sendErr error
			id, sendErr = r.post(ctx, payload)
			return sendErr
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Resend) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError("Resend", resp); httpErr != nil {
		return "", httpErr
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode resend response: %w", err)
	}
	return decoded.ID, nil
}
