package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/retry"
	"github.com/wepublish/dorfkoenig/internal/notify"
)

func TestScoutAlert_Subject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Scout-Alarm: Gemeinderat", notify.ScoutAlert{ScoutName: "Gemeinderat"}.Subject())
	assert.Equal(t, "Scout-Alarm: Gemeinderat (Arlesheim)",
		notify.ScoutAlert{ScoutName: "Gemeinderat", LocationCity: "Arlesheim"}.Subject())
}

func TestRenderAlert(t *testing.T) {
	t.Parallel()

	html, err := notify.RenderAlert(notify.ScoutAlert{
		ScoutName:    "Gemeinderat <Ost>",
		Summary:      `Neue <script>alert(1)</script>Baubewilligung`,
		KeyFindings:  []string{"Punkt <b>eins</b>", ""},
		SourceURL:    "https://gemeinde.ch/news?a=1&b=2",
		LocationCity: "Arlesheim",
	})
	require.NoError(t, err)

	assert.Contains(t, html, `<html lang="de">`)
	assert.Contains(t, html, "Gemeinderat &lt;Ost&gt; (Arlesheim)")
	assert.Contains(t, html, "Neue Baubewilligung")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "<li>Punkt eins</li>")
	assert.Contains(t, html, "Kernpunkte")
	assert.Contains(t, html, `href="https://gemeinde.ch/news?a=1&amp;b=2"`)
	assert.Contains(t, html, "Quelle ansehen")
	assert.Contains(t, html, "Diese E-Mail wurde automatisch von Dorfkönig gesendet.")
}

func TestRenderAlert_NoFindings(t *testing.T) {
	t.Parallel()

	html, err := notify.RenderAlert(notify.ScoutAlert{ScoutName: "x", Summary: "y", SourceURL: "https://a.ch"})
	require.NoError(t, err)
	assert.NotContains(t, html, "Kernpunkte")
	assert.Contains(t, html, `<p class="subtitle">x</p>`)
}

func TestResend_Send(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	t.Cleanup(srv.Close)

	mailer := notify.NewResend(notify.ResendConfig{APIKey: "re-key", BaseURL: srv.URL})
	id, err := mailer.Send(context.Background(), notify.Email{To: "a@b.ch", Subject: "s", HTML: "<p>h</p>"})
	require.NoError(t, err)

	assert.Equal(t, "email-1", id)
	assert.Equal(t, notify.DefaultSender, got["from"])
	assert.Equal(t, []any{"a@b.ch"}, got["to"])
	assert.Equal(t, "s", got["subject"])
}

func TestResend_SendError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid to"}`))
	}))
	t.Cleanup(srv.Close)

	mailer := notify.NewResend(notify.ResendConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 1},
	})
	_, err := mailer.Send(context.Background(), notify.Email{To: "a@b.ch", Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Resend API error: 422 - invalid to")
}

func TestResend_RequiresRecipient(t *testing.T) {
	t.Parallel()

	_, err := notify.NewResend(notify.ResendConfig{}).Send(context.Background(), notify.Email{})
	assert.Error(t, err)
}

func TestWhatsApp_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantID  string
		wantErr string
	}{
		{name: "message id", status: http.StatusOK, body: `{"messages":[{"id":"wamid.1"}]}`, wantID: "wamid.1"},
		{name: "no messages", status: http.StatusOK, body: `{}`, wantID: "unknown"},
		{name: "api error", status: http.StatusBadRequest, body: `{"error":{"message":"bad number"}}`, wantErr: "WhatsApp API error: 400 - bad number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v21.0/phone-1/messages", r.URL.Path)
				assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			wa := notify.NewWhatsApp(notify.WhatsAppConfig{PhoneNumberID: "phone-1", APIToken: "wa-token", BaseURL: srv.URL})
			id, err := wa.Send(context.Background(), notify.TextMessage("41790000000", "Hallo"))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, "whatsapp", got["messaging_product"])
			assert.Equal(t, "text", got["type"])
			assert.Equal(t, map[string]any{"body": "Hallo"}, got["text"])
		})
	}
}

func TestTemplateMessage(t *testing.T) {
	t.Parallel()

	msg := notify.TemplateMessage("4179", "bajour_draft_verification", "de", "Arlesheim")
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"to": "4179",
		"type": "template",
		"template": {
			"name": "bajour_draft_verification",
			"language": {"code": "de"},
			"components": [{"type": "body", "parameters": [{"type": "text", "text": "Arlesheim"}]}]
		}
	}`, string(raw))
}
