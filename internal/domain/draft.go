package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// VerificationStatus of a draft. Only correspondents, the timeout sweep or a
// manual override move it off pending.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationRejected  VerificationStatus = "rejected"
)

// ParseVerificationStatus accepts the stored English values and the German
// labels used in the newsroom UI.
func ParseVerificationStatus(s string) (VerificationStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "ausstehend":
		return VerificationPending, true
	case "confirmed", "bestätigt":
		return VerificationConfirmed, true
	case "rejected", "abgelehnt":
		return VerificationRejected, true
	default:
		return "", false
	}
}

// VerificationResponse is one correspondent's answer.
type VerificationResponse struct {
	Name        string             `json:"name"`
	Phone       string             `json:"phone"`
	Response    VerificationStatus `json:"response"`
	RespondedAt time.Time          `json:"responded_at"`
}

// VerificationResponses is stored as a JSONB array.
type VerificationResponses []VerificationResponse

// Value implements driver.Valuer.
func (r VerificationResponses) Value() (driver.Value, error) {
	if r == nil {
		r = VerificationResponses{}
	}
	b, err := json.Marshal([]VerificationResponse(r))
	if err != nil {
		return nil, fmt.Errorf("marshal verification responses: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (r *VerificationResponses) Scan(src any) error {
	return scanJSON(src, (*[]VerificationResponse)(r))
}

// Answered reports whether phone already responded.
func (r VerificationResponses) Answered(phone string) bool {
	for _, resp := range r {
		if resp.Phone == phone {
			return true
		}
	}
	return false
}

// Draft is a per-village newsletter awaiting verification.
type Draft struct {
	ID                     string                `db:"id"                       json:"id"`
	UserID                 string                `db:"user_id"                  json:"-"`
	VillageID              string                `db:"village_id"               json:"village_id"`
	VillageName            string                `db:"village_name"             json:"village_name"`
	Title                  *string               `db:"title"                    json:"title"`
	Body                   string                `db:"body"                     json:"body"`
	SelectedUnitIDs        pq.StringArray        `db:"selected_unit_ids"        json:"selected_unit_ids"`
	CustomSystemPrompt     *string               `db:"custom_system_prompt"     json:"custom_system_prompt"`
	VerificationStatus     VerificationStatus    `db:"verification_status"      json:"verification_status"`
	VerificationResponses  VerificationResponses `db:"verification_responses"   json:"verification_responses"`
	VerificationSentAt     *time.Time            `db:"verification_sent_at"     json:"verification_sent_at"`
	VerificationResolvedAt *time.Time            `db:"verification_resolved_at" json:"verification_resolved_at"`
	VerificationTimeoutAt  *time.Time            `db:"verification_timeout_at"  json:"verification_timeout_at"`
	WhatsappMessageIDs     pq.StringArray        `db:"whatsapp_message_ids"     json:"whatsapp_message_ids"`
	CreatedAt              time.Time             `db:"created_at"               json:"created_at"`
	UpdatedAt              time.Time             `db:"updated_at"               json:"updated_at"`

	DisplayStatus VerificationStatus `db:"-" json:"display_status"`
}

// EffectiveStatus applies the client display rule: a pending draft whose
// timeout has passed shows as confirmed until the sweep catches up.
func (d *Draft) EffectiveStatus(now time.Time) VerificationStatus {
	if d.VerificationStatus == VerificationPending && d.VerificationTimeoutAt != nil &&
		d.VerificationTimeoutAt.Before(now) {
		return VerificationConfirmed
	}
	return d.VerificationStatus
}

// DraftCreate is the create payload.
type DraftCreate struct {
	VillageID          string    `json:"village_id"`
	VillageName        string    `json:"village_name"`
	Title              *string   `json:"title"`
	Body               string    `json:"body"`
	SelectedUnitIDs    *[]string `json:"selected_unit_ids"`
	CustomSystemPrompt *string   `json:"custom_system_prompt"`
}

// Normalize trims and validates the payload.
func (in *DraftCreate) Normalize() error {
	in.VillageID = strings.TrimSpace(in.VillageID)
	in.VillageName = strings.TrimSpace(in.VillageName)
	in.Body = strings.TrimSpace(in.Body)

	switch {
	case in.VillageID == "":
		return Invalid("village_id", "is required")
	case in.VillageName == "":
		return Invalid("village_name", "is required")
	case in.Body == "":
		return Invalid("body", "is required")
	case in.SelectedUnitIDs == nil:
		return Invalid("selected_unit_ids", "is required")
	}
	return nil
}

// DraftUpdate is the patch payload. VerificationStatus triggers a manual
// override.
type DraftUpdate struct {
	Title              *string   `json:"title"`
	Body               *string   `json:"body"`
	VillageID          *string   `json:"village_id"`
	VillageName        *string   `json:"village_name"`
	SelectedUnitIDs    *[]string `json:"selected_unit_ids"`
	CustomSystemPrompt *string   `json:"custom_system_prompt"`
	VerificationStatus *string   `json:"verification_status"`
}

// HasContentChanges reports whether any editable content field is set.
func (in *DraftUpdate) HasContentChanges() bool {
	return in.Title != nil || in.Body != nil || in.VillageID != nil || in.VillageName != nil ||
		in.SelectedUnitIDs != nil || in.CustomSystemPrompt != nil
}
