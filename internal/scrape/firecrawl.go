package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wepublish/dorfkoenig/infrastructure/circuitbreaker"
	infraerrors "github.com/wepublish/dorfkoenig/infrastructure/errors"
	infrahttp "github.com/wepublish/dorfkoenig/infrastructure/http"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
)

// DefaultFirecrawlBaseURL is the hosted API.
const DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"

// ErrScrapeTimeout is returned when the page did not load in time.
var ErrScrapeTimeout = errors.New("scraping timed out")

// FirecrawlConfig configures the Firecrawl client.
type FirecrawlConfig struct {
	APIKey  string
	BaseURL string
}

// Firecrawl scrapes through the Firecrawl v2 API, which also tracks changes
// per tag on its side.
type Firecrawl struct {
	apiKey  string
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	log     logger.Logger
}

// NewFirecrawl builds a client.
func NewFirecrawl(cfg FirecrawlConfig, log logger.Logger) *Firecrawl {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultFirecrawlBaseURL
	}

	return &Firecrawl{
		apiKey:  cfg.APIKey,
		baseURL: base,
		// per-request deadlines come from the context
		client: infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: 2 * DefaultTimeout}),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "firecrawl",
			FailureThreshold: 5,
			OpenTimeout:      2 * time.Minute,
		}),
		log: log,
	}
}

type firecrawlRequest struct {
	URL     string `json:"url"`
	Formats []any  `json:"formats"`
	Timeout int64  `json:"timeout,omitempty"`
}

type changeTrackingFormat struct {
	Type  string   `json:"type"`
	Modes []string `json:"modes,omitempty"`
	Tag   string   `json:"tag,omitempty"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    *struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
		ChangeTracking *struct {
			ChangeStatus  string `json:"changeStatus"`
			IsFirstScrape *bool  `json:"isFirstScrape"`
			HasChanged    *bool  `json:"hasChanged"`
		} `json:"changeTracking"`
	} `json:"data"`
}

// Scrape implements Scraper.
func (f *Firecrawl) Scrape(ctx context.Context, req Request) (*Page, error) {
	timeout := timeoutOf(req)

	body := firecrawlRequest{
		URL:     req.URL,
		Formats: []any{"markdown"},
		Timeout: timeout.Milliseconds(),
	}
	if req.Tag != "" {
		body.Formats = append(body.Formats, changeTrackingFormat{Type: "changeTracking", Tag: req.Tag})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var page *Page
	err = f.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		page, callErr = f.do(ctx, payload)
		return callErr
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrScrapeTimeout
	}
	if err != nil {
		return nil, err
	}

	f.log.Debug("Firecrawl scrape",
		logger.String("url", req.URL),
		logger.String("change", string(page.Change)),
		logger.Int("markdown_len", len(page.Markdown)),
	)
	return page, nil
}

func (f *Firecrawl) do(ctx context.Context, payload []byte) (*Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v2/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firecrawl request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError("Firecrawl", resp); httpErr != nil {
		return nil, httpErr
	}

	var decoded firecrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode firecrawl response: %w", err)
	}

	if !decoded.Success || decoded.Data == nil {
		msg := decoded.Error
		if msg == "" {
			msg = "unknown scraping error"
		}
		return nil, errors.New(msg)
	}

	page := &Page{
		Markdown: decoded.Data.Markdown,
		Title:    decoded.Data.Metadata.Title,
		Change:   ChangeUnknown,
	}

	if ct := decoded.Data.ChangeTracking; ct != nil {
		switch {
		case ct.ChangeStatus != "":
			page.Change = normalizeChange(ct.ChangeStatus)
		case ct.IsFirstScrape != nil && *ct.IsFirstScrape:
			page.Change = ChangeNew
		case ct.HasChanged != nil && !*ct.HasChanged:
			page.Change = ChangeSame
		case ct.HasChanged != nil:
			page.Change = ChangeChanged
		}
	}

	return page, nil
}

func normalizeChange(s string) ChangeSignal {
	switch ChangeSignal(s) {
	case ChangeNew, ChangeSame, ChangeChanged:
		return ChangeSignal(s)
	default:
		return ChangeUnknown
	}
}
