package scout

import (
	"context"
	"strings"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/analyzer"
	"github.com/wepublish/dorfkoenig/internal/scrape"
)

const previewRunes = 500

// ScrapePreview describes the scrape half of a test run.
type ScrapePreview struct {
	Success        bool   `json:"success"`
	Title          string `json:"title,omitempty"`
	ContentPreview string `json:"content_preview,omitempty"`
	WordCount      int    `json:"word_count"`
	Error          string `json:"error,omitempty"`
}

// TestResult is the outcome of a dry run.
type TestResult struct {
	ScrapeResult      ScrapePreview      `json:"scrape_result"`
	CriteriaAnalysis  *analyzer.Analysis `json:"criteria_analysis"`
	WouldNotify       bool               `json:"would_notify"`
	WouldExtractUnits bool               `json:"would_extract_units"`
}

// DryRun scrapes and analyzes one of userID's scouts without persisting
// anything. Change tracking is not touched.
func (e *Executor) DryRun(ctx context.Context, scoutID, userID string) (*TestResult, error) {
	scout, err := e.scouts.GetByID(ctx, scoutID, userID)
	if err != nil {
		return nil, err
	}

	page, err := e.scraper.Scrape(ctx, scrape.Request{URL: scout.URL})
	if err != nil {
		e.log.Info("Test scrape failed", logger.String("scout_id", scout.ID), logger.Error(err))
		return &TestResult{ScrapeResult: ScrapePreview{Success: false, Error: err.Error()}}, nil
	}

	recent, err := e.executions.RecentSummaries(ctx, scout.ID, RecentSummaryCount)
	if err != nil {
		e.log.Warn("Failed to load recent summaries", logger.String("scout_id", scout.ID), logger.Error(err))
	}

	analysis, err := e.analyzer.Analyze(ctx, page.Markdown, scout.Criteria, recent)
	if err != nil {
		e.log.Warn("Test analysis failed", logger.String("scout_id", scout.ID), logger.Error(err))
	}

	return &TestResult{
		ScrapeResult: ScrapePreview{
			Success:        true,
			Title:          page.Title,
			ContentPreview: analyzer.Truncate(page.Markdown, previewRunes),
			WordCount:      len(strings.Fields(page.Markdown)),
		},
		CriteriaAnalysis:  &analysis,
		WouldNotify:       analysis.Matches && scout.Email() != "",
		WouldExtractUnits: analysis.Matches && scout.HasAnchor(),
	}, nil
}
