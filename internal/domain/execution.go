package domain

import (
	"time"

	"github.com/lib/pq"
)

// ExecutionStatus is the lifecycle of one pipeline run. Completed and failed
// are terminal.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ChangeStatus classifies the scraped content against the previous visit.
type ChangeStatus string

const (
	ChangeFirstRun ChangeStatus = "first_run"
	ChangeSame     ChangeStatus = "same"
	ChangeChanged  ChangeStatus = "changed"
	ChangeError    ChangeStatus = "error"
)

// Execution is one run of the pipeline for a scout.
type Execution struct {
	ID                  string          `db:"id"                   json:"id"`
	ScoutID             string          `db:"scout_id"             json:"scout_id"`
	UserID              string          `db:"user_id"              json:"-"`
	Status              ExecutionStatus `db:"status"               json:"status"`
	StartedAt           time.Time       `db:"started_at"           json:"started_at"`
	CompletedAt         *time.Time      `db:"completed_at"         json:"completed_at"`
	ChangeStatus        *ChangeStatus   `db:"change_status"        json:"change_status"`
	CriteriaMatched     *bool           `db:"criteria_matched"     json:"criteria_matched"`
	SummaryText         *string         `db:"summary_text"         json:"summary_text"`
	SummaryEmbedding    pq.Float32Array `db:"summary_embedding"    json:"-"`
	IsDuplicate         bool            `db:"is_duplicate"         json:"is_duplicate"`
	DuplicateSimilarity *float64        `db:"duplicate_similarity" json:"duplicate_similarity"`
	NotificationSent    bool            `db:"notification_sent"    json:"notification_sent"`
	NotificationError   *string         `db:"notification_error"   json:"notification_error"`
	ErrorMessage        *string         `db:"error_message"        json:"error_message"`
	UnitsExtracted      int             `db:"units_extracted"      json:"units_extracted"`
	ScrapeDurationMs    *int64          `db:"scrape_duration_ms"   json:"scrape_duration_ms"`
	CreatedAt           time.Time       `db:"created_at"           json:"created_at"`

	ScoutName string            `db:"scout_name" json:"scout_name,omitempty"`
	Units     []InformationUnit `db:"-"          json:"units,omitempty"`
}

// AnalysisOutcome is written onto an execution once analysis and the
// duplicate check are done.
type AnalysisOutcome struct {
	ChangeStatus        ChangeStatus
	CriteriaMatched     bool
	SummaryText         string
	SummaryEmbedding    []float32
	IsDuplicate         bool
	DuplicateSimilarity *float64
	ScrapeDurationMs    int64
}

// DuplicateCheck is the result of comparing a summary embedding with a
// scout's recent history.
type DuplicateCheck struct {
	IsDuplicate   bool
	MaxSimilarity *float64
}
