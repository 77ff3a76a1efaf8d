// Package scout runs the scout execution pipeline: scrape, change check,
// criteria analysis, duplicate check, unit extraction, notification and
// bookkeeping.
package scout

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	infracontext "github.com/wepublish/dorfkoenig/infrastructure/context"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/analyzer"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/notify"
	"github.com/wepublish/dorfkoenig/internal/scrape"
	"github.com/wepublish/dorfkoenig/internal/similarity"
	"github.com/wepublish/dorfkoenig/internal/telemetry"
)

const (
	// RunningWindow is how far back the advisory running check looks.
	RunningWindow = 10 * time.Minute
	// DuplicateLookback bounds the history a summary is compared against.
	DuplicateLookback = 30 * 24 * time.Hour
	// RecentSummaryCount is how many prior summaries the analyzer sees.
	RecentSummaryCount = 5
	// UnchangedSummary is recorded when the page did not change.
	UnchangedSummary = "Keine Änderungen erkannt"

	runTimeout = 5 * time.Minute
)

// ScoutStore reads scouts and updates their bookkeeping.
type ScoutStore interface {
	GetByID(ctx context.Context, id, userID string) (*domain.Scout, error)
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string) error
}

// ExecutionStore persists execution state transitions.
type ExecutionStore interface {
	HasRunningSince(ctx context.Context, scoutID string, since time.Time) (bool, error)
	Start(ctx context.Context, scoutID, userID string, startedAt time.Time) (string, error)
	GetByID(ctx context.Context, id, userID string) (*domain.Execution, error)
	MarkFailed(ctx context.Context, id, message string, completedAt time.Time) error
	CompleteUnchanged(ctx context.Context, id, summary string, scrapeDurationMs int64, completedAt time.Time) error
	RecordAnalysis(ctx context.Context, id string, out domain.AnalysisOutcome) error
	Finalize(ctx context.Context, id string, notificationSent bool, notificationError *string, unitsExtracted int, completedAt time.Time) error
	RecentSummaries(ctx context.Context, scoutID string, limit int) ([]string, error)
	SummaryEmbeddingsSince(ctx context.Context, scoutID string, since time.Time) ([][]float32, error)
}

// Analyzer judges content against criteria.
type Analyzer interface {
	Analyze(ctx context.Context, content, criteria string, recentSummaries []string) (analyzer.Analysis, error)
}

// Embedder embeds a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// UnitExtractor stores the units found in scraped content.
type UnitExtractor interface {
	ExtractForScout(ctx context.Context, content string, scout *domain.Scout, executionID string) (int, error)
}

// Mailer sends an email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg notify.Email) (string, error)
}

// Options tune a single run.
type Options struct {
	// ExecutionID reuses an execution the caller already started.
	ExecutionID      string
	SkipNotification bool
	ExtractUnits     bool
}

// Result summarizes a run. Status is failed when the scrape failed; the
// caller must inspect it rather than rely on the transport status.
type Result struct {
	ExecutionID      string                 `json:"execution_id"`
	Status           domain.ExecutionStatus `json:"status"`
	ChangeStatus     domain.ChangeStatus    `json:"change_status,omitempty"`
	CriteriaMatched  bool                   `json:"criteria_matched"`
	IsDuplicate      bool                   `json:"is_duplicate"`
	NotificationSent bool                   `json:"notification_sent"`
	UnitsExtracted   int                    `json:"units_extracted"`
	DurationMs       int64                  `json:"duration_ms"`
	Summary          string                 `json:"summary,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// Deps are the collaborators of an Executor.
type Deps struct {
	Scouts     ScoutStore
	Executions ExecutionStore
	Scraper    scrape.Scraper
	Analyzer   Analyzer
	Embedder   Embedder
	Extractor  UnitExtractor
	Mailer     Mailer
	Telemetry  *telemetry.Provider
	Logger     logger.Logger
	Now        func() time.Time
}

// Executor runs the pipeline.
type Executor struct {
	scouts     ScoutStore
	executions ExecutionStore
	scraper    scrape.Scraper
	analyzer   Analyzer
	embedder   Embedder
	extractor  UnitExtractor
	mailer     Mailer
	telemetry  *telemetry.Provider
	log        logger.Logger
	now        func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(d Deps) *Executor {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		scouts:     d.Scouts,
		executions: d.Executions,
		scraper:    d.Scraper,
		analyzer:   d.Analyzer,
		embedder:   d.Embedder,
		extractor:  d.Extractor,
		mailer:     d.Mailer,
		telemetry:  d.Telemetry,
		log:        d.Logger,
		now:        now,
	}
}

// ChangeStatusOf maps a scraper change signal. Anything other than new or
// same counts as changed.
func ChangeStatusOf(signal scrape.ChangeSignal) domain.ChangeStatus {
	switch signal {
	case scrape.ChangeNew:
		return domain.ChangeFirstRun
	case scrape.ChangeSame:
		return domain.ChangeSame
	default:
		return domain.ChangeChanged
	}
}

// Execute runs the pipeline for one of userID's scouts. It returns
// domain.ErrNotFound for unknown scouts and domain.ErrExecutionRunning when
// a run started within RunningWindow is still in progress. A failed scrape
// is reported through Result.Status, not as an error.
//
// The run is detached from ctx's cancellation so an abandoned request cannot
// leave the execution half-written.
func (e *Executor) Execute(ctx context.Context, scoutID, userID string, opts Options) (*Result, error) {
	ctx, cancel := infracontext.Detached(ctx, runTimeout)
	defer cancel()

	started := e.now()

	scout, err := e.scouts.GetByID(ctx, scoutID, userID)
	if err != nil {
		return nil, err
	}

	executionID, err := e.begin(ctx, scout, opts.ExecutionID, started)
	if err != nil {
		return nil, err
	}

	ctx, span := e.telemetry.StartSpan(ctx, "scout.execute",
		attribute.String("scout_id", scout.ID),
		attribute.String("execution_id", executionID),
	)
	defer span.End()

	r := &run{
		Executor: e,
		scout:    scout,
		id:       executionID,
		opts:     opts,
		started:  started,
		span:     span,
		log:      e.log.With(logger.String("execution_id", executionID), logger.String("scout_id", scout.ID)),
	}

	result, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.telemetry.RecordExecution(string(result.Status), string(result.ChangeStatus),
		time.Duration(result.DurationMs)*time.Millisecond, result.UnitsExtracted)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	return result, nil
}

func (e *Executor) begin(ctx context.Context, scout *domain.Scout, executionID string, now time.Time) (string, error) {
	if executionID != "" {
		exec, err := e.executions.GetByID(ctx, executionID, scout.UserID)
		if err != nil {
			return "", err
		}
		if exec.ScoutID != scout.ID {
			return "", domain.ErrNotFound
		}
		if exec.Status != domain.ExecutionRunning {
			return "", domain.Invalid("execution_id", "execution is not running")
		}
		return executionID, nil
	}

	running, err := e.executions.HasRunningSince(ctx, scout.ID, now.Add(-RunningWindow))
	if err != nil {
		return "", err
	}
	if running {
		return "", domain.ErrExecutionRunning
	}

	return e.executions.Start(ctx, scout.ID, scout.UserID, now)
}

// run carries the state of one execution through the steps.
type run struct {
	*Executor
	scout   *domain.Scout
	id      string
	opts    Options
	started time.Time
	span    trace.Span
	log     logger.Logger
}

func (r *run) step(name string) {
	r.span.AddEvent(name)
	r.log.Info("Pipeline step", logger.String("step", name))
}

func (r *run) elapsedMs() int64 {
	return r.now().Sub(r.started).Milliseconds()
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.step("scrape")
	scrapeStart := r.now()
	page, err := r.scraper.Scrape(ctx, scrape.Request{URL: r.scout.URL, Tag: scrape.Tag(r.scout.ID)})
	scrapeMs := r.now().Sub(scrapeStart).Milliseconds()
	if err != nil {
		return r.fail(ctx, err)
	}

	r.step("change_check")
	change := ChangeStatusOf(page.Change)
	if change == domain.ChangeSame {
		return r.unchanged(ctx, scrapeMs)
	}

	r.step("analyze")
	recent, err := r.executions.RecentSummaries(ctx, r.scout.ID, RecentSummaryCount)
	if err != nil {
		r.log.Warn("Failed to load recent summaries", logger.Error(err))
		recent = nil
	}

	analysis, err := r.analyzer.Analyze(ctx, page.Markdown, r.scout.Criteria, recent)
	if err != nil {
		r.log.Warn("Criteria analysis failed", logger.Error(err))
	}
	r.log.Info("Criteria analyzed", logger.Bool("matches", analysis.Matches))

	r.step("duplicate_check")
	outcome := domain.AnalysisOutcome{
		ChangeStatus:     change,
		CriteriaMatched:  analysis.Matches,
		SummaryText:      analysis.Summary,
		ScrapeDurationMs: scrapeMs,
	}
	if analysis.Matches && analysis.Summary != "" {
		r.checkDuplicate(ctx, analysis.Summary, &outcome)
	}

	r.step("store_analysis")
	if err := r.executions.RecordAnalysis(ctx, r.id, outcome); err != nil {
		return nil, r.abandon(ctx, "store analysis", err)
	}

	units := 0
	if r.opts.ExtractUnits && analysis.Matches && r.scout.HasAnchor() {
		r.step("extract_units")
		n, extractErr := r.extractor.ExtractForScout(ctx, page.Markdown, r.scout, r.id)
		if extractErr != nil {
			r.log.Warn("Unit extraction failed", logger.Error(extractErr))
		} else {
			units = n
		}
	}

	var (
		notificationSent  bool
		notificationError *string
	)
	if analysis.Matches && !outcome.IsDuplicate && !r.opts.SkipNotification && r.scout.Email() != "" {
		r.step("notify")
		notificationSent, notificationError = r.notify(ctx, analysis)
	}

	r.step("update_scout")
	if err := r.scouts.RecordSuccess(ctx, r.scout.ID, r.now()); err != nil {
		r.log.Error("Failed to update scout", logger.Error(err))
	}

	r.step("finalize")
	if err := r.executions.Finalize(ctx, r.id, notificationSent, notificationError, units, r.now()); err != nil {
		return nil, r.abandon(ctx, "finalize execution", err)
	}

	return &Result{
		ExecutionID:      r.id,
		Status:           domain.ExecutionCompleted,
		ChangeStatus:     change,
		CriteriaMatched:  analysis.Matches,
		IsDuplicate:      outcome.IsDuplicate,
		NotificationSent: notificationSent,
		UnitsExtracted:   units,
		DurationMs:       r.elapsedMs(),
		Summary:          analysis.Summary,
	}, nil
}

func (r *run) fail(ctx context.Context, scrapeErr error) (*Result, error) {
	message := scrapeErr.Error()
	r.log.Warn("Scrape failed", logger.Error(scrapeErr))
	r.telemetry.RecordCollaboratorError("scraper", scrapeErr)
	r.span.RecordError(scrapeErr)

	if err := r.executions.MarkFailed(ctx, r.id, message, r.now()); err != nil {
		r.log.Error("Execution left running", logger.String("stage", "mark failed"), logger.Error(err))
		return nil, fmt.Errorf("mark execution failed: %w", err)
	}
	if err := r.scouts.RecordFailure(ctx, r.scout.ID); err != nil {
		r.log.Error("Failed to count scout failure", logger.Error(err))
	}

	return &Result{
		ExecutionID:  r.id,
		Status:       domain.ExecutionFailed,
		ChangeStatus: domain.ChangeError,
		DurationMs:   r.elapsedMs(),
		Error:        message,
	}, nil
}

func (r *run) unchanged(ctx context.Context, scrapeMs int64) (*Result, error) {
	if err := r.executions.CompleteUnchanged(ctx, r.id, UnchangedSummary, scrapeMs, r.now()); err != nil {
		return nil, r.abandon(ctx, "complete unchanged execution", err)
	}
	if err := r.scouts.RecordSuccess(ctx, r.scout.ID, r.now()); err != nil {
		r.log.Error("Failed to update scout", logger.Error(err))
	}

	return &Result{
		ExecutionID:  r.id,
		Status:       domain.ExecutionCompleted,
		ChangeStatus: domain.ChangeSame,
		DurationMs:   r.elapsedMs(),
		Summary:      UnchangedSummary,
	}, nil
}

// abandon handles a bookkeeping write that failed mid-run. It tries to mark
// the execution failed; if that also fails the row stays running and blocks
// the scout until RunningWindow has passed.
func (r *run) abandon(ctx context.Context, stage string, cause error) error {
	message := fmt.Sprintf("%s: %v", stage, cause)
	if err := r.executions.MarkFailed(ctx, r.id, message, r.now()); err != nil {
		r.log.Error("Execution left running",
			logger.String("stage", stage),
			logger.Duration("blocked_for", RunningWindow),
			logger.Error(cause),
			logger.String("mark_failed_error", err.Error()),
		)
	} else {
		r.log.Error("Execution marked failed after bookkeeping error",
			logger.String("stage", stage),
			logger.Error(cause),
		)
	}
	return fmt.Errorf("%s: %w", stage, cause)
}

// checkDuplicate embeds the summary and compares it with the scout's recent
// history. Failures leave the run marked as not duplicate.
func (r *run) checkDuplicate(ctx context.Context, summary string, out *domain.AnalysisOutcome) {
	embedding, err := r.embedder.Embed(ctx, summary)
	if err != nil {
		r.log.Warn("Summary embedding failed", logger.Error(err))
		return
	}
	out.SummaryEmbedding = embedding

	history, err := r.executions.SummaryEmbeddingsSince(ctx, r.scout.ID, r.now().Add(-DuplicateLookback))
	if err != nil {
		r.log.Warn("Failed to load summary history", logger.Error(err))
		return
	}

	maxSim, exceeds, ok := similarity.MaxSimilarity(embedding, history, similarity.DuplicateThreshold)
	if !ok {
		return
	}
	out.IsDuplicate = exceeds
	out.DuplicateSimilarity = &maxSim
	r.log.Info("Duplicate check",
		logger.Bool("is_duplicate", exceeds),
		logger.Float64("similarity", maxSim),
	)
}

func (r *run) notify(ctx context.Context, analysis analyzer.Analysis) (bool, *string) {
	alert := notify.ScoutAlert{
		ScoutName:    r.scout.Name,
		Summary:      analysis.Summary,
		KeyFindings:  analysis.KeyFindings,
		SourceURL:    r.scout.URL,
		LocationCity: domain.City(r.scout.Location),
	}

	html, err := notify.RenderAlert(alert)
	if err == nil {
		_, err = r.mailer.Send(ctx, notify.Email{To: r.scout.Email(), Subject: alert.Subject(), HTML: html})
	}
	if err != nil {
		r.log.Warn("Notification failed", logger.Error(err))
		r.telemetry.RecordCollaboratorError("resend", err)
		msg := err.Error()
		return false, &msg
	}
	return true, nil
}
