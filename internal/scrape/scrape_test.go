package scrape_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/netguard"
	"github.com/wepublish/dorfkoenig/internal/scrape"
)

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gemeinde.ch", scrape.Domain("https://www.gemeinde.ch/news?id=1"))
	assert.Equal(t, "sub.gemeinde.ch", scrape.Domain("http://sub.gemeinde.ch"))
	assert.Equal(t, "not a url", scrape.Domain("not a url"))
	assert.Equal(t, "scout-abc", scrape.Tag("abc"))
}

func firecrawlServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFirecrawl_Scrape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		want    scrape.ChangeSignal
		wantErr string
	}{
		{
			name:   "change status same",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"markdown":"# Titel","metadata":{"title":"Gemeinde"},"changeTracking":{"changeStatus":"same"}}}`,
			want:   scrape.ChangeSame,
		},
		{
			name:   "legacy first scrape",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"markdown":"x","changeTracking":{"isFirstScrape":true,"hasChanged":false}}}`,
			want:   scrape.ChangeNew,
		},
		{
			name:   "legacy unchanged",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"markdown":"x","changeTracking":{"isFirstScrape":false,"hasChanged":false}}}`,
			want:   scrape.ChangeSame,
		},
		{
			name:   "removed is unknown",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"markdown":"x","changeTracking":{"changeStatus":"removed"}}}`,
			want:   scrape.ChangeUnknown,
		},
		{
			name:   "no tracking is unknown",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"markdown":"x"}}`,
			want:   scrape.ChangeUnknown,
		},
		{
			name:    "unsuccessful body",
			status:  http.StatusOK,
			body:    `{"success":false,"error":"blocked"}`,
			wantErr: "blocked",
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `{"error":"upstream"}`,
			wantErr: "Firecrawl API error: 502 - upstream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := firecrawlServer(t, tt.status, tt.body, nil)
			fc := scrape.NewFirecrawl(scrape.FirecrawlConfig{APIKey: "fc-key", BaseURL: srv.URL}, logger.NewNop())

			page, err := fc.Scrape(t.Context(), scrape.Request{URL: "https://example.ch", Tag: "scout-1"})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Change)
		})
	}
}

func TestFirecrawl_RequestShape(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := firecrawlServer(t, http.StatusOK, `{"success":true,"data":{"markdown":"x"}}`, &captured)
	fc := scrape.NewFirecrawl(scrape.FirecrawlConfig{APIKey: "fc-key", BaseURL: srv.URL}, logger.NewNop())

	_, err := fc.Scrape(t.Context(), scrape.Request{URL: "https://example.ch", Tag: "scout-42"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.ch", captured["url"])
	formats, ok := captured["formats"].([]any)
	require.True(t, ok)
	require.Len(t, formats, 2)
	assert.Equal(t, "markdown", formats[0])
	tracking, ok := formats[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "changeTracking", tracking["type"])
	assert.Equal(t, "scout-42", tracking["tag"])
	assert.InDelta(t, 60000, captured["timeout"], 0)
}

func TestFirecrawl_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	fc := scrape.NewFirecrawl(scrape.FirecrawlConfig{APIKey: "fc-key", BaseURL: srv.URL}, logger.NewNop())
	_, err := fc.Scrape(t.Context(), scrape.Request{URL: "https://example.ch", Timeout: 50 * time.Millisecond})
	require.ErrorIs(t, err, scrape.ErrScrapeTimeout)
}

func TestDirect_ChangeTracking(t *testing.T) {
	t.Parallel()

	var content atomic.Value
	content.Store("Erste Meldung")
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Gemeinde News</title><script>var x=1;</script></head>
<body><nav>Menu</nav><main><h1>News</h1><p>%s</p></main><footer>Impressum</footer></body></html>`, content.Load())
	}))
	t.Cleanup(page.Close)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	direct := scrape.NewLocalDirect(rdb, logger.NewNop())
	req := scrape.Request{URL: page.URL, Tag: "scout-7"}

	first, err := direct.Scrape(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, scrape.ChangeNew, first.Change)
	assert.Equal(t, "Gemeinde News", first.Title)
	assert.Contains(t, first.Markdown, "# News")
	assert.Contains(t, first.Markdown, "Erste Meldung")
	assert.NotContains(t, first.Markdown, "Menu")
	assert.NotContains(t, first.Markdown, "var x")

	second, err := direct.Scrape(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, scrape.ChangeSame, second.Change)

	content.Store("Zweite Meldung")
	third, err := direct.Scrape(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, scrape.ChangeChanged, third.Change)
}

func TestDirect_WithoutRedis(t *testing.T) {
	t.Parallel()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Hallo</p></body></html>`))
	}))
	t.Cleanup(page.Close)

	got, err := scrape.NewLocalDirect(nil, logger.NewNop()).Scrape(t.Context(), scrape.Request{URL: page.URL, Tag: "scout-1"})
	require.NoError(t, err)
	assert.Equal(t, scrape.ChangeUnknown, got.Change)
}

func TestDirect_HTTPError(t *testing.T) {
	t.Parallel()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	t.Cleanup(page.Close)

	_, err := scrape.NewLocalDirect(nil, logger.NewNop()).Scrape(t.Context(), scrape.Request{URL: page.URL})
	require.Error(t, err)
}

func TestDirect_RefusesPrivateHosts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html><body><p>internal admin</p></body></html>`))
	}))
	t.Cleanup(page.Close)

	direct := scrape.NewDirect(nil, logger.NewNop())

	for _, target := range []string{
		page.URL,
		"http://localhost/",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/",
	} {
		got, err := direct.Scrape(t.Context(), scrape.Request{URL: target})
		require.ErrorIs(t, err, netguard.ErrPrivateAddress, target)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(0), hits.Load())
}

type stubScraper struct {
	page  *scrape.Page
	err   error
	calls int
}

func (s *stubScraper) Scrape(context.Context, scrape.Request) (*scrape.Page, error) {
	s.calls++
	return s.page, s.err
}

func TestFallback(t *testing.T) {
	t.Parallel()

	primary := &stubScraper{err: errors.New("firecrawl down")}
	secondary := &stubScraper{page: &scrape.Page{Markdown: "ok", Change: scrape.ChangeUnknown}}
	fb := &scrape.Fallback{Primary: primary, Secondary: secondary, Log: logger.NewNop()}

	page, err := fb.Scrape(t.Context(), scrape.Request{URL: "https://example.ch"})
	require.NoError(t, err)
	assert.Equal(t, "ok", page.Markdown)
	assert.Equal(t, 1, secondary.calls)

	secondary.err = errors.New("also down")
	secondary.page = nil
	_, err = fb.Scrape(t.Context(), scrape.Request{URL: "https://example.ch"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firecrawl down")
	assert.Contains(t, err.Error(), "also down")

	ok := &stubScraper{page: &scrape.Page{Markdown: "primary"}}
	fb = &scrape.Fallback{Primary: ok, Secondary: secondary, Log: logger.NewNop()}
	page, err = fb.Scrape(t.Context(), scrape.Request{})
	require.NoError(t, err)
	assert.Equal(t, "primary", page.Markdown)
}
