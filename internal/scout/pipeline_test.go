package scout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/analyzer"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/notify"
	"github.com/wepublish/dorfkoenig/internal/scout"
	"github.com/wepublish/dorfkoenig/internal/scrape"
	"github.com/wepublish/dorfkoenig/internal/telemetry"
)

type fakeScouts struct {
	scout     *domain.Scout
	successes int
	failures  int
}

func (f *fakeScouts) GetByID(_ context.Context, id, userID string) (*domain.Scout, error) {
	if f.scout == nil || f.scout.ID != id || f.scout.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return f.scout, nil
}

func (f *fakeScouts) RecordSuccess(context.Context, string, time.Time) error {
	f.successes++
	return nil
}

func (f *fakeScouts) RecordFailure(context.Context, string) error {
	f.failures++
	return nil
}

type fakeExecutions struct {
	running   bool
	started   int
	existing  *domain.Execution
	failedMsg string
	unchanged bool
	analysis  *domain.AnalysisOutcome
	finalized bool
	notified  bool
	notifyErr *string
	units     int
	history   [][]float32

	analysisErr   error
	finalizeErr   error
	markFailedErr error
}

func (f *fakeExecutions) HasRunningSince(context.Context, string, time.Time) (bool, error) {
	return f.running, nil
}

func (f *fakeExecutions) Start(context.Context, string, string, time.Time) (string, error) {
	f.started++
	return "exec-1", nil
}

func (f *fakeExecutions) GetByID(_ context.Context, id, _ string) (*domain.Execution, error) {
	if f.existing == nil || f.existing.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.existing, nil
}

func (f *fakeExecutions) MarkFailed(_ context.Context, _, message string, _ time.Time) error {
	if f.markFailedErr != nil {
		return f.markFailedErr
	}
	f.failedMsg = message
	return nil
}

func (f *fakeExecutions) CompleteUnchanged(context.Context, string, string, int64, time.Time) error {
	f.unchanged = true
	return nil
}

func (f *fakeExecutions) RecordAnalysis(_ context.Context, _ string, out domain.AnalysisOutcome) error {
	if f.analysisErr != nil {
		return f.analysisErr
	}
	f.analysis = &out
	return nil
}

func (f *fakeExecutions) Finalize(_ context.Context, _ string, sent bool, notifyErr *string, units int, _ time.Time) error {
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = true
	f.notified = sent
	f.notifyErr = notifyErr
	f.units = units
	return nil
}

func (f *fakeExecutions) RecentSummaries(context.Context, string, int) ([]string, error) {
	return []string{"alt"}, nil
}

func (f *fakeExecutions) SummaryEmbeddingsSince(context.Context, string, time.Time) ([][]float32, error) {
	return f.history, nil
}

type fakeScraper struct {
	page *scrape.Page
	err  error
	req  scrape.Request
}

func (f *fakeScraper) Scrape(_ context.Context, req scrape.Request) (*scrape.Page, error) {
	f.req = req
	return f.page, f.err
}

type fakeAnalyzer struct {
	result analyzer.Analysis
	calls  int
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string, []string) (analyzer.Analysis, error) {
	f.calls++
	return f.result, nil
}

type fakeEmbedder struct{ vector []float32 }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

type fakeExtractor struct {
	units int
	err   error
	calls int
}

func (f *fakeExtractor) ExtractForScout(context.Context, string, *domain.Scout, string) (int, error) {
	f.calls++
	return f.units, f.err
}

type fakeMailer struct {
	sent []notify.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg notify.Email) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "email-1", nil
}

type fixture struct {
	scouts     *fakeScouts
	executions *fakeExecutions
	scraper    *fakeScraper
	analyzer   *fakeAnalyzer
	extractor  *fakeExtractor
	mailer     *fakeMailer
	executor   *scout.Executor
}

func newFixture(s *domain.Scout) *fixture {
	return newLoggedFixture(s, logger.NewNop())
}

func newLoggedFixture(s *domain.Scout, log logger.Logger) *fixture {
	f := &fixture{
		scouts:     &fakeScouts{scout: s},
		executions: &fakeExecutions{},
		scraper:    &fakeScraper{page: &scrape.Page{Markdown: "# Neu", Change: scrape.ChangeNew}},
		analyzer: &fakeAnalyzer{result: analyzer.Analysis{
			Matches: true, Summary: "X", KeyFindings: []string{"Y"},
		}},
		extractor: &fakeExtractor{units: 2},
		mailer:    &fakeMailer{},
	}
	f.executor = scout.NewExecutor(scout.Deps{
		Scouts:     f.scouts,
		Executions: f.executions,
		Scraper:    f.scraper,
		Analyzer:   f.analyzer,
		Embedder:   &fakeEmbedder{vector: []float32{1, 0}},
		Extractor:  f.extractor,
		Mailer:     f.mailer,
		Telemetry:  telemetry.NewProvider(prometheus.NewRegistry()),
		Logger:     log,
	})
	return f
}

func observedLogger() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return logger.NewFromZap(zap.New(core)), logs
}

func zurichScout() *domain.Scout {
	return &domain.Scout{
		ID:       "scout-1",
		UserID:   "user-1",
		Name:     "Gemeinderat",
		URL:      "https://zuerich.ch/news",
		Criteria: "",
		Location: &domain.Location{City: "Zurich"},
	}
}

func run(t *testing.T, f *fixture, opts scout.Options) *scout.Result {
	t.Helper()
	res, err := f.executor.Execute(context.Background(), "scout-1", "user-1", opts)
	require.NoError(t, err)
	return res
}

func TestExecute_FirstRunMatch(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	res := run(t, f, scout.Options{ExtractUnits: true})

	assert.Equal(t, "exec-1", res.ExecutionID)
	assert.Equal(t, domain.ExecutionCompleted, res.Status)
	assert.Equal(t, domain.ChangeFirstRun, res.ChangeStatus)
	assert.True(t, res.CriteriaMatched)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, 2, res.UnitsExtracted)
	assert.Equal(t, "X", res.Summary)
	assert.False(t, res.NotificationSent)

	assert.Equal(t, "scout-scout-1", f.scraper.req.Tag)
	require.NotNil(t, f.executions.analysis)
	assert.Equal(t, domain.ChangeFirstRun, f.executions.analysis.ChangeStatus)
	assert.Equal(t, []float32{1, 0}, f.executions.analysis.SummaryEmbedding)
	assert.Nil(t, f.executions.analysis.DuplicateSimilarity)
	assert.True(t, f.executions.finalized)
	assert.Equal(t, 2, f.executions.units)
	assert.Equal(t, 1, f.scouts.successes)
}

func TestExecute_SameContentShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.scraper.page.Change = scrape.ChangeSame

	res := run(t, f, scout.Options{ExtractUnits: true})

	assert.Equal(t, domain.ExecutionCompleted, res.Status)
	assert.Equal(t, domain.ChangeSame, res.ChangeStatus)
	assert.False(t, res.CriteriaMatched)
	assert.Zero(t, res.UnitsExtracted)
	assert.Equal(t, scout.UnchangedSummary, res.Summary)
	assert.Zero(t, f.analyzer.calls)
	assert.Zero(t, f.extractor.calls)
	assert.True(t, f.executions.unchanged)
	assert.False(t, f.executions.finalized)
	assert.Equal(t, 1, f.scouts.successes)
}

func TestExecute_ScrapeFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.scraper.err = errors.New("Firecrawl API error: 500")

	res := run(t, f, scout.Options{ExtractUnits: true})

	assert.Equal(t, domain.ExecutionFailed, res.Status)
	assert.Equal(t, "Firecrawl API error: 500", res.Error)
	assert.Zero(t, res.UnitsExtracted)
	assert.Equal(t, "Firecrawl API error: 500", f.executions.failedMsg)
	assert.Equal(t, 1, f.scouts.failures)
	assert.Zero(t, f.scouts.successes)
	assert.Zero(t, f.analyzer.calls)
}

func TestExecute_NoAnchorSkipsExtraction(t *testing.T) {
	t.Parallel()

	s := zurichScout()
	s.Location = nil
	f := newFixture(s)

	res := run(t, f, scout.Options{ExtractUnits: true})

	assert.True(t, res.CriteriaMatched)
	assert.Zero(t, res.UnitsExtracted)
	assert.Zero(t, f.extractor.calls)
}

func TestExecute_ExtractionErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.extractor.err = errors.New("gemini down")

	res := run(t, f, scout.Options{ExtractUnits: true})

	assert.Equal(t, domain.ExecutionCompleted, res.Status)
	assert.Zero(t, res.UnitsExtracted)
}

func TestExecute_Duplicate(t *testing.T) {
	t.Parallel()

	s := zurichScout()
	email := "redaktion@example.ch"
	s.NotificationEmail = &email
	f := newFixture(s)
	f.executions.history = [][]float32{{0, 1}, {0.99, 0.05}}

	res := run(t, f, scout.Options{})

	assert.True(t, res.IsDuplicate)
	assert.False(t, res.NotificationSent)
	assert.Empty(t, f.mailer.sent)
	require.NotNil(t, f.executions.analysis.DuplicateSimilarity)
	assert.Greater(t, *f.executions.analysis.DuplicateSimilarity, 0.85)
}

func TestExecute_Notification(t *testing.T) {
	t.Parallel()

	s := zurichScout()
	email := "redaktion@example.ch"
	s.NotificationEmail = &email
	f := newFixture(s)
	f.executions.history = [][]float32{{0, 1}}

	res := run(t, f, scout.Options{})

	assert.True(t, res.NotificationSent)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Scout-Alarm: Gemeinderat (Zurich)", f.mailer.sent[0].Subject)
	assert.Equal(t, email, f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].HTML, "<li>Y</li>")
	require.NotNil(t, f.executions.analysis.DuplicateSimilarity)
	assert.False(t, f.executions.analysis.IsDuplicate)
}

func TestExecute_NotificationFailureIsRecorded(t *testing.T) {
	t.Parallel()

	s := zurichScout()
	email := "redaktion@example.ch"
	s.NotificationEmail = &email
	f := newFixture(s)
	f.mailer.err = errors.New("Resend API error: 422 - invalid to")

	res := run(t, f, scout.Options{})

	assert.Equal(t, domain.ExecutionCompleted, res.Status)
	assert.False(t, res.NotificationSent)
	require.NotNil(t, f.executions.notifyErr)
	assert.Equal(t, "Resend API error: 422 - invalid to", *f.executions.notifyErr)
}

func TestExecute_SkipNotification(t *testing.T) {
	t.Parallel()

	s := zurichScout()
	email := "redaktion@example.ch"
	s.NotificationEmail = &email
	f := newFixture(s)

	res := run(t, f, scout.Options{SkipNotification: true})
	assert.False(t, res.NotificationSent)
	assert.Empty(t, f.mailer.sent)
}

func TestExecute_RunningConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.executions.running = true

	_, err := f.executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{})
	require.ErrorIs(t, err, domain.ErrExecutionRunning)
	assert.Zero(t, f.executions.started)
}

func TestExecute_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	_, err := f.executor.Execute(context.Background(), "scout-1", "someone-else", scout.Options{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecute_SuppliedExecutionID(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.executions.existing = &domain.Execution{ID: "exec-9", ScoutID: "scout-1", Status: domain.ExecutionRunning}

	res := run(t, f, scout.Options{ExecutionID: "exec-9"})
	assert.Equal(t, "exec-9", res.ExecutionID)
	assert.Zero(t, f.executions.started)

	f.executions.existing = &domain.Execution{ID: "exec-9", ScoutID: "other", Status: domain.ExecutionRunning}
	_, err := f.executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{ExecutionID: "exec-9"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.executions.existing = &domain.Execution{ID: "exec-9", ScoutID: "scout-1", Status: domain.ExecutionCompleted}
	_, err = f.executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{ExecutionID: "exec-9"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExecute_FinalizeFailureMarksExecutionFailed(t *testing.T) {
	t.Parallel()

	log, logs := observedLogger()
	f := newLoggedFixture(zurichScout(), log)
	f.executions.finalizeErr = errors.New("connection reset")

	_, err := f.executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{})
	require.Error(t, err)
	assert.Contains(t, f.executions.failedMsg, "finalize execution")

	entries := logs.FilterMessage("Execution marked failed after bookkeeping error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "exec-1", entries[0].ContextMap()["execution_id"])
}

func TestExecute_StuckExecutionIsLogged(t *testing.T) {
	t.Parallel()

	log, logs := observedLogger()
	f := newLoggedFixture(zurichScout(), log)
	f.executions.analysisErr = errors.New("connection reset")
	f.executions.markFailedErr = errors.New("connection reset")

	_, err := f.executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{})
	require.Error(t, err)
	assert.False(t, f.executions.finalized)

	entries := logs.FilterMessage("Execution left running").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "exec-1", fields["execution_id"])
	assert.Equal(t, "store analysis", fields["stage"])
}

func TestChangeStatusOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.ChangeFirstRun, scout.ChangeStatusOf(scrape.ChangeNew))
	assert.Equal(t, domain.ChangeSame, scout.ChangeStatusOf(scrape.ChangeSame))
	assert.Equal(t, domain.ChangeChanged, scout.ChangeStatusOf(scrape.ChangeChanged))
	assert.Equal(t, domain.ChangeChanged, scout.ChangeStatusOf(scrape.ChangeUnknown))
	assert.Equal(t, domain.ChangeChanged, scout.ChangeStatusOf(""))
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.scraper.page = &scrape.Page{Markdown: "eins zwei drei", Title: "News"}

	res, err := f.executor.DryRun(context.Background(), "scout-1", "user-1")
	require.NoError(t, err)

	assert.True(t, res.ScrapeResult.Success)
	assert.Equal(t, 3, res.ScrapeResult.WordCount)
	assert.Equal(t, "News", res.ScrapeResult.Title)
	require.NotNil(t, res.CriteriaAnalysis)
	assert.True(t, res.WouldExtractUnits)
	assert.False(t, res.WouldNotify)
	assert.Empty(t, f.scraper.req.Tag)
	assert.Zero(t, f.executions.started)
	assert.Nil(t, f.executions.analysis)
}

func TestDryRun_ScrapeFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(zurichScout())
	f.scraper.err = errors.New("timeout")

	res, err := f.executor.DryRun(context.Background(), "scout-1", "user-1")
	require.NoError(t, err)
	assert.False(t, res.ScrapeResult.Success)
	assert.Equal(t, "timeout", res.ScrapeResult.Error)
	assert.Nil(t, res.CriteriaAnalysis)
	assert.Zero(t, f.analyzer.calls)
}
