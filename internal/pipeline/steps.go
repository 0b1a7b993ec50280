package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/harvest/internal/crawler"
	"github.com/nao1215/harvest/internal/model"
)

// Step names.
const (
	StepCrawl       = "crawl"
	StepSaveCatalog = "save_catalog"
	StepEnrich      = "enrich"
	StepSaveLookup  = "save_lookup"
)

// ErrNoListings is returned by SaveCatalogStep when nothing was crawled.
var ErrNoListings = errors.New("no listings to save")

// Crawler runs one catalog crawl.
type Crawler interface {
	Crawl(ctx context.Context) (*crawler.Result, error)
}

// CatalogStore persists crawl results.
type CatalogStore interface {
	SaveCategories(ctx context.Context, categories map[int]model.Category) error
	InsertListings(ctx context.Context, records []model.ListingRecord) (int, error)
}

// OutcomeStore persists lookup outcomes.
type OutcomeStore interface {
	SaveOutcomes(ctx context.Context, outcomes []model.Outcome) error
}

// LookupRunner drives the lookup pipeline over a key set.
type LookupRunner interface {
	Run(ctx context.Context, keys []model.LookupKey) (*model.LookupSummary, error)
}

// KeySource supplies the lookup keys of a run.
type KeySource func() ([]model.LookupKey, error)

// CrawlStep crawls the catalog and records categories and listings.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(c Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{crawler: c, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string { return StepCrawl }

// Do runs the crawl. A partial result from an interrupted crawl is still
// recorded in the report.
func (s *CrawlStep) Do(ctx context.Context, report *model.RunReport) error {
	result, err := s.crawler.Crawl(ctx)
	if result != nil {
		report.Categories = result.Categories
		report.Listings = result.Listings
		report.ListingCount = len(result.Listings)
		report.SetShort(result.Short)

		s.logger.Info("crawl results",
			"listings", report.ListingCount,
			"categories", len(report.Categories),
			"complete", report.CompleteCategories(),
			"short", len(report.ShortCategories),
			"pages_failed", result.PagesFailed,
		)
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

// SaveCatalogStep writes the crawled categories and listings to the store.
type SaveCatalogStep struct {
	store  CatalogStore
	logger *slog.Logger
}

// NewSaveCatalogStep creates a catalog save step.
func NewSaveCatalogStep(store CatalogStore, logger *slog.Logger) *SaveCatalogStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveCatalogStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveCatalogStep) Name() string { return StepSaveCatalog }

// Do saves the catalog.
func (s *SaveCatalogStep) Do(ctx context.Context, report *model.RunReport) error {
	if len(report.Listings) == 0 && len(report.Categories) == 0 {
		return ErrNoListings
	}
	if err := s.store.SaveCategories(ctx, report.Categories); err != nil {
		return fmt.Errorf("failed to save categories: %w", err)
	}
	inserted, err := s.store.InsertListings(ctx, report.Listings)
	if err != nil {
		return fmt.Errorf("failed to save listings: %w", err)
	}
	s.logger.Info("catalog saved", "new_listings", inserted, "listings", len(report.Listings))
	return nil
}

// EnrichStep loads the lookup keys and runs them to convergence.
type EnrichStep struct {
	keys   KeySource
	runner LookupRunner
	logger *slog.Logger
}

// NewEnrichStep creates an enrichment step.
func NewEnrichStep(keys KeySource, runner LookupRunner, logger *slog.Logger) *EnrichStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichStep{keys: keys, runner: runner, logger: logger}
}

// Name returns the step name.
func (s *EnrichStep) Name() string { return StepEnrich }

// Do runs the lookup pipeline and records its summary in the report.
func (s *EnrichStep) Do(ctx context.Context, report *model.RunReport) error {
	keys, err := s.keys()
	if err != nil {
		return fmt.Errorf("%w: failed to load lookup keys: %w", model.ErrConfiguration, err)
	}

	summary, err := s.runner.Run(ctx, keys)
	if summary != nil {
		report.Lookup = summary
		s.logger.Info("lookup results",
			"total", summary.Total,
			"fetched", len(summary.Fetched),
			"quarantined", len(summary.Quarantined),
			"residual", len(summary.Residual),
			"rounds", summary.Rounds,
		)
	}
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	return nil
}

// SaveLookupStep writes the lookup outcomes to the store.
type SaveLookupStep struct {
	store  OutcomeStore
	logger *slog.Logger
}

// NewSaveLookupStep creates a lookup save step.
func NewSaveLookupStep(store OutcomeStore, logger *slog.Logger) *SaveLookupStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveLookupStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveLookupStep) Name() string { return StepSaveLookup }

// Do saves fetched, quarantined and residual outcomes. It is a no-op when
// the lookup did not run.
func (s *SaveLookupStep) Do(ctx context.Context, report *model.RunReport) error {
	if report.Lookup == nil {
		s.logger.Debug("no lookup results to save")
		return nil
	}
	outcomes := make([]model.Outcome, 0, len(report.Lookup.Fetched)+len(report.Lookup.Quarantined)+len(report.Lookup.Residual))
	outcomes = append(outcomes, report.Lookup.Fetched...)
	outcomes = append(outcomes, report.Lookup.Quarantined...)
	outcomes = append(outcomes, report.Lookup.Residual...)

	if err := s.store.SaveOutcomes(ctx, outcomes); err != nil {
		return fmt.Errorf("failed to save lookup results: %w", err)
	}
	s.logger.Info("lookup results saved", "outcomes", len(outcomes))
	return nil
}
