// Package scrape fetches scout pages as markdown together with a change
// signal relative to the previous visit.
package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// ChangeSignal classifies a page against the previous scrape with the same tag.
type ChangeSignal string

const (
	ChangeNew     ChangeSignal = "new"
	ChangeSame    ChangeSignal = "same"
	ChangeChanged ChangeSignal = "changed"
	ChangeUnknown ChangeSignal = "unknown"
)

// DefaultTimeout bounds a single scrape.
const DefaultTimeout = 60 * time.Second

// Request describes one scrape. Tag scopes change tracking, typically
// "scout-<id>". An empty Tag disables tracking.
type Request struct {
	URL     string
	Tag     string
	Timeout time.Duration
}

// Page is a successful scrape.
type Page struct {
	Markdown string
	Title    string
	Change   ChangeSignal
}

// Scraper fetches a page. Any failure is returned as an error; callers decide
// how to degrade.
type Scraper interface {
	Scrape(ctx context.Context, req Request) (*Page, error)
}

// Tag returns the change-tracking tag for a scout.
func Tag(scoutID string) string {
	return "scout-" + scoutID
}

// Domain returns the host of rawURL without a leading "www.". Unparseable
// input is returned unchanged.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func timeoutOf(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return DefaultTimeout
}
