package domain

import (
	"time"

	"github.com/lib/pq"
)

// UnitType tags an information unit.
type UnitType string

const (
	UnitFact         UnitType = "fact"
	UnitEvent        UnitType = "event"
	UnitEntityUpdate UnitType = "entity_update"
)

// ParseUnitType maps model output onto a known type, defaulting to fact.
func ParseUnitType(s string) UnitType {
	switch UnitType(s) {
	case UnitEvent, UnitEntityUpdate:
		return UnitType(s)
	default:
		return UnitFact
	}
}

// SourceType records where a unit came from.
type SourceType string

const (
	SourceScout      SourceType = "scout"
	SourceManualText SourceType = "manual_text"
)

// InformationUnit is one atomic statement. ScoutID and ExecutionID are nil
// for manual uploads.
type InformationUnit struct {
	ID            string          `db:"id"              json:"id"`
	UserID        string          `db:"user_id"         json:"-"`
	ScoutID       *string         `db:"scout_id"        json:"scout_id"`
	ExecutionID   *string         `db:"execution_id"    json:"execution_id"`
	Statement     string          `db:"statement"       json:"statement"`
	UnitType      UnitType        `db:"unit_type"       json:"unit_type"`
	Entities      pq.StringArray  `db:"entities"        json:"entities"`
	SourceURL     string          `db:"source_url"      json:"source_url"`
	SourceDomain  string          `db:"source_domain"   json:"source_domain"`
	SourceTitle   *string         `db:"source_title"    json:"source_title"`
	SourceType    SourceType      `db:"source_type"     json:"source_type"`
	Location      *Location       `db:"location"        json:"location"`
	Topic         *string         `db:"topic"           json:"topic"`
	Embedding     pq.Float32Array `db:"embedding"       json:"-"`
	EventDate     *time.Time      `db:"event_date"      json:"event_date"`
	UsedInArticle bool            `db:"used_in_article" json:"used_in_article"`
	UsedAt        *time.Time      `db:"used_at"         json:"used_at"`
	CreatedAt     time.Time       `db:"created_at"      json:"created_at"`

	Similarity *float64 `db:"-" json:"similarity,omitempty"`
}

// UnitFilter narrows unit listings. Limit and Offset are already clamped.
type UnitFilter struct {
	LocationCity string
	Topic        string
	ScoutID      string
	UnusedOnly   bool
	Limit        int
	Offset       int
}

// LocationCount is one row of the unused-unit city histogram.
type LocationCount struct {
	City  string `db:"city"  json:"city"`
	Count int    `db:"count" json:"count"`
}
