package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/progress"
)

// Default crawl tuning for the origin's catalog layout.
const (
	// DefaultPageSize is the number of rows on one listing page.
	DefaultPageSize = 17

	// DefaultDeepCrawlThreshold is the issue total below which the first
	// issue page is assumed to hold every row.
	DefaultDeepCrawlThreshold = 12
)

// Progress stage names reported by the crawler.
const (
	StageShallow    = "shallow_crawl"
	StageCountCheck = "count_check"
	StageDeepCrawl  = "deep_crawl"
)

// Result is the output of one crawl.
type Result struct {
	// Listings are the distinct listing records in discovery order.
	Listings []model.ListingRecord

	// Categories is the final per-category state keyed by id.
	Categories map[int]model.Category

	// Short lists categories still incomplete after the deep pass.
	Short []int

	// PagesFetched counts successful page fetches.
	PagesFetched int

	// PagesFailed counts page fetches that failed and were skipped.
	PagesFailed int
}

// Crawler runs the completeness-driven crawl of the catalog.
//
// Design decision: A failed page fetch is logged and skipped rather than
// aborting the crawl. The catalog is large and the origin is unreliable,
// so the count check and one deep pass recover most gaps, and whatever is
// left is reported in Result.Short.
type Crawler struct {
	fetcher        PageFetcher
	languages      []string
	pageSize       int
	deepThreshold  int
	logger         *slog.Logger
	progress       progress.Reporter
	tracker        *Tracker
	listings       *ListingSet
	pagesFetched   int
	pagesFailed    int
	languageLabels map[string]string
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLanguages sets the catalog languages to crawl, in order.
func WithLanguages(languages ...string) Option {
	return func(c *Crawler) {
		if len(languages) > 0 {
			c.languages = append([]string{}, languages...)
		}
	}
}

// WithPageSize sets the number of rows per listing page.
func WithPageSize(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithDeepCrawlThreshold sets the issue total at or above which issue
// pages beyond the first are fetched.
func WithDeepCrawlThreshold(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.deepThreshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress sets the progress reporter.
func WithProgress(r progress.Reporter) Option {
	return func(c *Crawler) {
		if r != nil {
			c.progress = r
		}
	}
}

// New creates a crawler that retrieves pages through fetcher.
func New(fetcher PageFetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:        fetcher,
		languages:      []string{"en", "ko"},
		pageSize:       DefaultPageSize,
		deepThreshold:  DefaultDeepCrawlThreshold,
		logger:         slog.Default(),
		progress:       progress.Nop(),
		languageLabels: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tracker = NewTracker(c.logger)
	c.listings = NewListingSet()
	return c
}

// Crawl runs ShallowCrawl and CountCheck for every language, then a single
// DeepCrawl pass over the categories that are still short.
//
// Crawl returns a partial Result together with the context error when ctx
// is cancelled.
func (c *Crawler) Crawl(ctx context.Context) (*Result, error) {
	if len(c.languages) == 0 {
		return nil, ErrNoLanguages
	}

	for i, lang := range c.languages {
		c.logger.Info("crawling catalog", "language", lang, "name", c.label(lang))

		if err := c.shallowCrawl(ctx, lang); err != nil {
			return c.result(), err
		}
		c.tracker.Recount(c.listings.Records())

		if err := c.countCheck(ctx, lang); err != nil {
			return c.result(), err
		}
		c.tracker.Recount(c.listings.Records())

		c.progress.Update(StageCountCheck, i+1, len(c.languages))
	}

	incomplete := c.tracker.Incomplete()
	if len(incomplete) == 0 {
		c.logger.Info("every category complete after count check", "listings", c.listings.Len())
		return c.result(), nil
	}

	c.logger.Info("deep crawling incomplete categories", "count", len(incomplete))
	for i, id := range incomplete {
		if err := c.deepCrawl(ctx, id); err != nil {
			return c.result(), err
		}
		c.tracker.Recount(c.listings.Records())
		c.progress.Update(StageDeepCrawl, i+1, len(incomplete))
	}

	result := c.result()
	if len(result.Short) > 0 {
		c.logger.Warn("categories still short after deep crawl", "count", len(result.Short), "ids", result.Short)
	}
	return result, nil
}

// shallowCrawl walks the paginated category index of one language.
func (c *Crawler) shallowCrawl(ctx context.Context, lang string) error {
	first, err := c.fetch(ctx, PageRequest{Language: lang, Page: 1})
	if err != nil {
		return interrupted(ctx)
	}
	if !first.HasTotal {
		c.logger.Info("category index has no count marker, skipping language",
			"language", lang, "reason", model.ErrContentNotYetPublished)
		return nil
	}

	batch := NewListingSet()
	batch.Add(first.Rows...)
	for _, link := range first.CategoryLinks {
		c.tracker.Observe(link.ID, link.Name, lang)
	}

	pages := pageCount(first.Total, c.pageSize)
	c.progress.Update(StageShallow+":"+lang, 1, max(pages, 1))
	for n := 2; n <= pages; n++ {
		page, err := c.fetch(ctx, PageRequest{Language: lang, Page: n})
		if err != nil {
			if ctxErr := interrupted(ctx); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		batch.Add(page.Rows...)
		for _, link := range page.CategoryLinks {
			c.tracker.Observe(link.ID, link.Name, lang)
		}
		c.progress.Update(StageShallow+":"+lang, n, pages)
	}

	added := c.listings.Add(batch.Records()...)
	c.logger.Info("shallow crawl finished", "language", lang, "pages", max(pages, 1), "new_listings", added)
	return nil
}

// countCheck fetches each not yet counted category page of one language
// once to learn its expected count and publication years.
func (c *Crawler) countCheck(ctx context.Context, lang string) error {
	pending := c.tracker.Pending(lang)
	for i, id := range pending {
		page, err := c.fetch(ctx, PageRequest{Language: lang, CategoryID: id, Page: 1})
		if err != nil {
			if ctxErr := interrupted(ctx); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		c.tracker.Observe(id, "", lang)
		c.listings.Add(page.Rows...)
		c.tracker.SetYears(id, page.Years)

		if page.HasTotal {
			c.tracker.SetExpected(id, page.Total)
		} else {
			c.logger.Debug("category has no count marker",
				"category", id, "reason", model.ErrContentNotYetPublished)
			c.tracker.MarkUnpublished(id)
		}
		c.progress.Update(StageCountCheck+":"+lang, i+1, len(pending))
	}
	return nil
}

// deepCrawl descends year -> issue -> page for one category. The year list
// comes from the count check, so the category page is not fetched again.
func (c *Crawler) deepCrawl(ctx context.Context, id int) error {
	category, ok := c.tracker.Category(id)
	if !ok {
		return nil
	}
	if len(category.Years) == 0 {
		c.logger.Warn("incomplete category has no publication years", "category", id)
		return nil
	}

	before := c.listings.Len()
	for _, year := range category.Years {
		yearPage, err := c.fetch(ctx, PageRequest{Language: category.Language, CategoryID: id, Year: year, Page: 1})
		if err != nil {
			if ctxErr := interrupted(ctx); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		c.listings.Add(yearPage.Rows...)

		for _, issue := range yearPage.Issues {
			if err := c.crawlIssue(ctx, category.Language, id, year, issue); err != nil {
				return err
			}
		}
	}

	c.logger.Info("deep crawl finished", "category", id, "new_listings", c.listings.Len()-before)
	return nil
}

// crawlIssue collects every row of one issue. Issues below the deep crawl
// threshold fit on the first page.
func (c *Crawler) crawlIssue(ctx context.Context, lang string, id, year, issue int) error {
	req := PageRequest{Language: lang, CategoryID: id, Year: year, Issue: issue, Page: 1}
	first, err := c.fetch(ctx, req)
	if err != nil {
		return interrupted(ctx)
	}
	c.listings.Add(first.Rows...)

	if !first.HasTotal || first.Total < c.deepThreshold {
		return nil
	}

	pages := pageCount(first.Total, c.pageSize)
	for n := 2; n <= pages; n++ {
		req.Page = n
		page, err := c.fetch(ctx, req)
		if err != nil {
			if ctxErr := interrupted(ctx); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		c.listings.Add(page.Rows...)
	}
	return nil
}

// fetch retrieves one page and keeps the fetch counters.
func (c *Crawler) fetch(ctx context.Context, req PageRequest) (*Page, error) {
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	page, err := c.fetcher.FetchPage(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			c.pagesFailed++
			c.logger.Warn("page fetch failed",
				"path", req.Path(),
				"kind", model.Classify(err).String(),
				"error", err)
		}
		return nil, err
	}
	c.pagesFetched++
	return page, nil
}

// interrupted returns a non-nil error once ctx is done. Per-page failures
// while ctx is live are skipped by the caller.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}
	return nil
}

func (c *Crawler) result() *Result {
	return &Result{
		Listings:     c.listings.Records(),
		Categories:   c.tracker.Snapshot(),
		Short:        c.tracker.Incomplete(),
		PagesFetched: c.pagesFetched,
		PagesFailed:  c.pagesFailed,
	}
}

// label returns the English display name of a language tag for logs.
func (c *Crawler) label(lang string) string {
	if name, ok := c.languageLabels[lang]; ok {
		return name
	}
	name := lang
	if tag, err := language.Parse(lang); err == nil {
		if n := display.English.Languages().Name(tag); n != "" {
			name = n
		}
	}
	c.languageLabels[lang] = name
	return name
}
