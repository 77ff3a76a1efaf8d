// Package domain holds the entities shared by the pipeline, the verification
// workflow and the HTTP API.
package domain

import (
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/netguard"
)

// Frequency is a scout's run cadence.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Scout is a monitored URL. An empty Criteria means every change matches.
type Scout struct {
	ID                  string     `db:"id"                   json:"id"`
	UserID              string     `db:"user_id"              json:"user_id"`
	Name                string     `db:"name"                 json:"name"`
	URL                 string     `db:"url"                  json:"url"`
	Criteria            string     `db:"criteria"             json:"criteria"`
	Location            *Location  `db:"location"             json:"location"`
	Topic               *string    `db:"topic"                json:"topic"`
	Frequency           Frequency  `db:"frequency"            json:"frequency"`
	IsActive            bool       `db:"is_active"            json:"is_active"`
	LastRunAt           *time.Time `db:"last_run_at"          json:"last_run_at"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	NotificationEmail   *string    `db:"notification_email"   json:"notification_email"`
	CreatedAt           time.Time  `db:"created_at"           json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"           json:"updated_at"`
}

// HasAnchor reports whether the scout has a location or a topic. Units are
// only extracted for anchored scouts.
func (s *Scout) HasAnchor() bool {
	return s.Location != nil || (s.Topic != nil && *s.Topic != "")
}

// Email returns the notification address or "".
func (s *Scout) Email() string {
	if s.NotificationEmail == nil {
		return ""
	}
	return strings.TrimSpace(*s.NotificationEmail)
}

// TopicOrEmpty returns the topic or "".
func (s *Scout) TopicOrEmpty() string {
	if s.Topic == nil {
		return ""
	}
	return *s.Topic
}

// ScoutInput is the create/update payload. Nil fields are left untouched on
// update.
type ScoutInput struct {
	Name              *string    `json:"name"`
	URL               *string    `json:"url"`
	Criteria          *string    `json:"criteria"`
	Location          *Location  `json:"location"`
	Topic             *string    `json:"topic"`
	Frequency         *Frequency `json:"frequency"`
	NotificationEmail *string    `json:"notification_email"`
	IsActive          *bool      `json:"is_active"`
}

// Empty reports whether no field is set.
func (in *ScoutInput) Empty() bool {
	return in.Name == nil && in.URL == nil && in.Criteria == nil && in.Location == nil &&
		in.Topic == nil && in.Frequency == nil && in.NotificationEmail == nil && in.IsActive == nil
}

// Validate checks the fields that are set. creating additionally requires
// name and url.
func (in *ScoutInput) Validate(creating bool) error {
	if creating {
		if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
			return Invalid("name", "is required")
		}
		if in.URL == nil {
			return Invalid("url", "is required")
		}
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if in.URL != nil && !ValidHTTPURL(*in.URL) {
		return Invalid("url", "must be a public http(s) URL")
	}
	if in.Frequency != nil && !in.Frequency.Valid() {
		return Invalid("frequency", "must be one of daily, weekly, biweekly, monthly")
	}
	if in.Location != nil && strings.TrimSpace(in.Location.City) == "" {
		return Invalid("location.city", "is required when location is set")
	}
	return nil
}

// ValidHTTPURL reports whether raw is an absolute http or https URL whose host
// is not loopback, private or link-local.
func ValidHTTPURL(raw string) bool {
	return netguard.ValidateURL(raw) == nil
}
