package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Location anchors a scout or unit geographically. Stored as JSONB.
type Location struct {
	City      string   `json:"city"`
	State     string   `json:"state,omitempty"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Value implements driver.Valuer. A nil *Location is written as NULL.
func (l Location) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (l *Location) Scan(src any) error {
	return scanJSON(src, l)
}

// City returns the city of loc, or "" when loc is nil.
func City(loc *Location) string {
	if loc == nil {
		return ""
	}
	return loc.City
}

func scanJSON(src, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan json: unsupported type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("scan json: %w", err)
	}
	return nil
}
