package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/circuitbreaker"
	infraerrors "github.com/wepublish/dorfkoenig/infrastructure/errors"
	infrahttp "github.com/wepublish/dorfkoenig/infrastructure/http"
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v21.0"
	unknownMessageID    = "unknown"
)

// Message is a WhatsApp Cloud API message body without messaging_product.
type Message map[string]any

// TextMessage builds a plain text message.
func TextMessage(to, body string) Message {
	return Message{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": body},
	}
}

// TemplateMessage builds a template message with positional body parameters.
func TemplateMessage(to, name, language string, bodyParams ...string) Message {
	params := make([]map[string]any, len(bodyParams))
	for i, p := range bodyParams {
		params[i] = map[string]any{"type": "text", "text": p}
	}

	return Message{
		"to":   to,
		"type": "template",
		"template": map[string]any{
			"name":     name,
			"language": map[string]any{"code": language},
			"components": []map[string]any{
				{"type": "body", "parameters": params},
			},
		},
	}
}

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	PhoneNumberID string
	APIToken      string
	APIVersion    string
	BaseURL       string
}

// WhatsApp sends messages from one business phone number.
type WhatsApp struct {
	endpoint string
	token    string
	client   *http.Client
	breaker  *circuitbreaker.Breaker
}

// NewWhatsApp builds a client.
func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultGraphBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultGraphVersion
	}

	return &WhatsApp{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", base, version, cfg.PhoneNumberID),
		token:    cfg.APIToken,
		client:   infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: 20 * time.Second}),
		breaker:  circuitbreaker.New(circuitbreaker.Config{Name: "whatsapp", FailureThreshold: 5, OpenTimeout: time.Minute}),
	}
}

// Send posts msg and returns the first message id, or "unknown" if the
// response carries none. Non-2xx responses are errors.
func (w *WhatsApp) Send(ctx context.Context, msg Message) (string, error) {
	body := make(map[string]any, len(msg)+1)
	for k, v := range msg {
		body[k] = v
	}
	body["messaging_product"] = "whatsapp"

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp message: %w", err)
	}

	var id string
	err = w.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = w.post(ctx, payload)
		return sendErr
	})
	return id, err
}

func (w *WhatsApp) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError("WhatsApp", resp); httpErr != nil {
		return "", httpErr
	}

	var decoded struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}

	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return unknownMessageID, nil
	}
	return decoded.Messages[0].ID, nil
}
