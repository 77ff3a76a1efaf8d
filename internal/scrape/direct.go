package scrape

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/redis/go-redis/v9"

	infraerrors "github.com/wepublish/dorfkoenig/infrastructure/errors"
	infrahttp "github.com/wepublish/dorfkoenig/infrastructure/http"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/netguard"
)

const (
	maxPageBytes     = 5 << 20
	hashKeyPrefix    = "dorfkoenig:scrape:"
	hashTTL          = 120 * 24 * time.Hour
	directUserAgent  = "Dorfkoenig-Scout/1.0 (+https://labs.wepublish.cloud)"
	nonContentSelect = "script, style, noscript, nav, header, footer, iframe, svg, form"
)

// Direct fetches pages itself and converts them to markdown. Change tracking
// compares a content hash stored in Redis under the request tag; without
// Redis every scrape reports ChangeUnknown. Private and loopback hosts are
// refused both before the request and at dial time.
type Direct struct {
	client    *http.Client
	checkURL  func(string) error
	converter *converter.Converter
	redis     *redis.Client
	log       logger.Logger
}

// NewDirect builds a Direct scraper. rdb may be nil.
func NewDirect(rdb *redis.Client, log logger.Logger) *Direct {
	return &Direct{
		client: infrahttp.NewClient(&infrahttp.ClientConfig{
			Timeout:     DefaultTimeout,
			DialControl: netguard.DialControl,
		}),
		checkURL: netguard.ValidateURL,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		redis: rdb,
		log:   log,
	}
}

// Scrape implements Scraper.
func (d *Direct) Scrape(ctx context.Context, req Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOf(req))
	defer cancel()

	if err := d.checkURL(req.URL); err != nil {
		return nil, fmt.Errorf("scrape %s: %w", req.URL, err)
	}

	raw, err := d.fetch(ctx, req.URL)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrScrapeTimeout
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title, _ = doc.Find("meta[property='og:title']").Attr("content")
		title = strings.TrimSpace(title)
	}

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	root.Find(nonContentSelect).Remove()

	html, err := root.Html()
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	markdown, err := d.converter.ConvertString(html, converter.WithDomain(req.URL))
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	return &Page{
		Markdown: markdown,
		Title:    title,
		Change:   d.track(ctx, req.Tag, markdown),
	}, nil
}

func (d *Direct) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", directUserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError(Domain(pageURL), resp); httpErr != nil {
		return nil, httpErr
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}

func (d *Direct) track(ctx context.Context, tag, markdown string) ChangeSignal {
	if d.redis == nil || tag == "" {
		return ChangeUnknown
	}

	sum := sha256.Sum256([]byte(markdown))
	hash := hex.EncodeToString(sum[:])
	key := hashKeyPrefix + tag

	prev, err := d.redis.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		prev = ""
	case err != nil:
		d.log.Warn("Read content hash failed", logger.String("tag", tag), logger.Error(err))
		return ChangeUnknown
	}

	if setErr := d.redis.Set(ctx, key, hash, hashTTL).Err(); setErr != nil {
		d.log.Warn("Store content hash failed", logger.String("tag", tag), logger.Error(setErr))
	}

	switch prev {
	case "":
		return ChangeNew
	case hash:
		return ChangeSame
	default:
		return ChangeChanged
	}
}
