package compose

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/netguard"
	"github.com/wepublish/dorfkoenig/internal/analyzer"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/llm"
	"github.com/wepublish/dorfkoenig/internal/scrape"
)

// Article styles.
const (
	StyleNews     = "news"
	StyleSummary  = "summary"
	StyleAnalysis = "analysis"
)

const (
	// MaxSources bounds how many source pages are fetched per article.
	MaxSources = 10

	sourceTimeout     = 5 * time.Second
	sourceRunes       = 8000
	sourceBudgetRunes = 30000
	maxArticleWords   = 3000
)

// ArticleRequest selects the units and shapes the article draft.
type ArticleRequest struct {
	UnitIDs            []string `json:"unit_ids"`
	Style              string   `json:"style"`
	MaxWords           int      `json:"max_words"`
	IncludeSources     *bool    `json:"include_sources"`
	CustomSystemPrompt string   `json:"custom_system_prompt"`
}

// Normalize applies defaults and validates the request.
func (r *ArticleRequest) Normalize() error {
	ids, err := normalizeIDs(r.UnitIDs)
	if err != nil {
		return err
	}
	r.UnitIDs = ids

	r.Style = strings.TrimSpace(r.Style)
	if r.Style == "" {
		r.Style = StyleNews
	}
	if _, ok := styleInstructions[r.Style]; !ok {
		return domain.Invalid("style", "must be one of news, summary, analysis")
	}
	if r.MaxWords < 0 || r.MaxWords > maxArticleWords {
		return domain.Invalid("max_words", fmt.Sprintf("must be between 0 and %d", maxArticleWords))
	}
	if r.IncludeSources == nil {
		include := true
		r.IncludeSources = &include
	}
	return nil
}

// ArticleSection is one headed block of the draft.
type ArticleSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Source is a page the units were extracted from.
type Source struct {
	Title  *string `json:"title"`
	URL    string  `json:"url"`
	Domain string  `json:"domain"`
}

// Article is a working draft for a journalist.
type Article struct {
	Title     string           `json:"title"`
	Headline  string           `json:"headline"`
	Sections  []ArticleSection `json:"sections"`
	Gaps      []string         `json:"gaps"`
	Sources   []Source         `json:"sources"`
	WordCount int              `json:"word_count"`
	UnitsUsed int              `json:"units_used"`
}

type articleOutput struct {
	Title    string           `json:"title"`
	Headline string           `json:"headline"`
	Sections []ArticleSection `json:"sections"`
	Gaps     []string         `json:"gaps"`
}

// Article drafts an article from the user's units. Source pages of public
// http(s) URLs are fetched for extra context; fetch failures only reduce
// that context.
func (s *Service) Article(ctx context.Context, userID string, req ArticleRequest) (*Article, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	units, err := s.loadUnits(ctx, userID, req.UnitIDs)
	if err != nil {
		return nil, err
	}

	sources := collectSources(units)
	urls := make([]string, 0, len(sources))
	for _, src := range sources {
		urls = append(urls, src.URL)
	}

	user := formatByType(units, func(u domain.InformationUnit) string {
		return fmt.Sprintf("- %s [%s]", u.Statement, u.SourceDomain)
	})
	if entities := frequentEntities(units); len(entities) > 0 {
		user += "\nHÄUFIG GENANNTE ENTITÄTEN: " + strings.Join(entities, ", ") + "\n"
	}
	if section := sourceSection(s.fetchSources(ctx, urls)); section != "" {
		user += "\nQUELLENINHALT (für zusätzlichen Kontext, verwende ihn um Lücken in den Einheiten zu füllen):\n" + section + "\n"
	}
	user += "\n" + styleInstructions[req.Style]
	if req.MaxWords > 0 {
		user += fmt.Sprintf(" Umfang: höchstens %d Wörter.", req.MaxWords)
	}
	user += "\n\nErstelle einen Artikelentwurf basierend auf diesen Informationen. Gruppiere verwandte Fakten zusammen. " +
		"Verwende die Quellinhalte für zusätzliche Details (Zitate, Daten, Kontext), die in den atomaren Einheiten fehlen könnten."

	system := layered(articleGrounding, articleGuidelines, req.CustomSystemPrompt, articleFormat)
	text, err := s.complete(ctx, system, user, draftMaxTokens)
	if err != nil {
		return nil, err
	}

	parsed := llm.ParseJSON[articleOutput](text)
	if !parsed.OK() {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, parsed.Err)
	}
	out := parsed.Value

	article := &Article{
		Title:     orDefault(out.Title, untitled),
		Headline:  out.Headline,
		Sections:  nonNil(out.Sections),
		Gaps:      nonNil(out.Gaps),
		Sources:   []Source{},
		UnitsUsed: len(units),
	}
	if *req.IncludeSources {
		article.Sources = sources
	}
	article.WordCount = countWords(article.Headline)
	for _, sec := range article.Sections {
		article.WordCount += countWords(sec.Content)
	}
	return article, nil
}

// collectSources lists distinct source URLs in unit order.
func collectSources(units []domain.InformationUnit) []Source {
	seen := make(map[string]struct{}, len(units))
	out := make([]Source, 0, len(units))
	for _, u := range units {
		if u.SourceURL == "" {
			continue
		}
		if _, ok := seen[u.SourceURL]; ok {
			continue
		}
		seen[u.SourceURL] = struct{}{}
		out = append(out, Source{Title: u.SourceTitle, URL: u.SourceURL, Domain: u.SourceDomain})
	}
	return out
}

// frequentEntities returns entities named by at least two units, in first
// appearance order.
func frequentEntities(units []domain.InformationUnit) []string {
	counts := map[string]int{}
	var order []string
	for _, u := range units {
		for _, e := range u.Entities {
			if counts[e] == 0 {
				order = append(order, e)
			}
			counts[e]++
		}
	}
	return slices.DeleteFunc(order, func(e string) bool { return counts[e] < 2 })
}

type sourceContent struct {
	url      string
	markdown string
}

// fetchSources scrapes up to MaxSources public URLs concurrently. Private or
// non-http URLs are skipped before any request is made.
func (s *Service) fetchSources(ctx context.Context, urls []string) []sourceContent {
	if s.sources == nil {
		return nil
	}

	safe := make([]string, 0, len(urls))
	for _, u := range urls {
		if err := netguard.ValidateURL(u); err != nil {
			s.log.Debug("Skipping source", logger.String("url", u), logger.Error(err))
			continue
		}
		safe = append(safe, u)
		if len(safe) == MaxSources {
			break
		}
	}

	results := make([]sourceContent, len(safe))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range safe {
		g.Go(func() error {
			page, err := s.sources.Scrape(gctx, scrape.Request{URL: u, Timeout: sourceTimeout})
			if err != nil {
				s.log.Warn("Source fetch failed", logger.String("url", u), logger.Error(err))
				return nil
			}
			results[i] = sourceContent{url: u, markdown: analyzer.Truncate(page.Markdown, sourceRunes)}
			return nil
		})
	}
	_ = g.Wait()

	return slices.DeleteFunc(results, func(c sourceContent) bool { return strings.TrimSpace(c.markdown) == "" })
}

func sourceSection(contents []sourceContent) string {
	if len(contents) == 0 {
		return ""
	}
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		parts = append(parts, fmt.Sprintf("[Quelle: %s]\n%s", scrape.Domain(c.url), c.markdown))
	}
	return analyzer.Truncate(strings.Join(parts, "\n\n---\n\n"), sourceBudgetRunes)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
