package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/harvest/internal/checkpoint"
	"github.com/nao1215/harvest/internal/config"
	"github.com/nao1215/harvest/internal/crawler"
	"github.com/nao1215/harvest/internal/database"
	"github.com/nao1215/harvest/internal/log"
	"github.com/nao1215/harvest/internal/lookup"
	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/pipeline"
	"github.com/nao1215/harvest/internal/progress"
	"github.com/nao1215/harvest/internal/ratelimit"
	"github.com/nao1215/harvest/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the origin catalog into the database",
		Long: `Crawl mirrors the origin's listing catalog.

Every category is crawled page by page in each configured language. The
number of listings found is then compared with the count the origin
publishes, and categories that are still short are crawled again issue by
issue. Listings are deduplicated by title, authors and path.

Examples:
  # Crawl with the defaults
  harvest crawl

  # Crawl only the English catalog through Tor
  harvest crawl -l en -p 127.0.0.1:9050

  # Write a Markdown report
  harvest crawl -m -o reports/crawl.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStageCmd(cmd, model.RunKindCrawl)
		},
	}
	addStorageFlags(cmd)
	addStageReportFlags(cmd)
	addTransportFlags(cmd)
	addCrawlFlags(cmd)
	return cmd
}

// NewEnrichCmd creates the enrich command.
func NewEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Look up listing citations through the scraping gateway",
		Long: `Enrich looks up every citation of the references bank through the
scraping gateway.

The citations are split into work intervals which are spread over the
credentials. Lookups that lose their connection are retried in later waves
until every item is fetched or the retry budget runs out. Malformed responses
are quarantined and never retried.

Checkpoint files are written per interval, so an interrupted run resumes
where it stopped.

Examples:
  # Enrich with two credentials from the environment
  HARVEST_CREDENTIALS=key1,key2 harvest enrich -k references.json

  # Smaller intervals and a gentler rate
  harvest enrich -k references.json --credential key1 --interval-size 50 --rate 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStageCmd(cmd, model.RunKindEnrich)
		},
	}
	addStorageFlags(cmd)
	addStageReportFlags(cmd)
	addTransportFlags(cmd)
	addLookupFlags(cmd)
	return cmd
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl the catalog, then enrich it",
		Long: `Run performs a crawl followed by an enrichment in one pipeline.

Use --continue-on-error to enrich even when the crawl failed.

Examples:
  harvest run -k references.json --credential key1 --credential key2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStageCmd(cmd, model.RunKindFull)
		},
	}
	addStorageFlags(cmd)
	addStageReportFlags(cmd)
	addTransportFlags(cmd)
	addCrawlFlags(cmd)
	addLookupFlags(cmd)
	return cmd
}

// runStageCmd builds and validates the configuration, then runs the
// pipeline for kind until it finishes or a signal arrives.
func runStageCmd(cmd *cobra.Command, kind model.RunKind) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg, kind); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return err
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runHarvest(ctx, cfg, kind, logger, reportOptions{out: cmd.OutOrStdout(), full: full})
}

// validateConfig checks the settings the stages of kind need.
func validateConfig(cfg *config.Config, kind model.RunKind) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if kind == model.RunKindCrawl {
		return nil
	}
	return cfg.ValidateLookup()
}

// runHarvest wires the components for kind, executes the pipeline, stores
// the run and writes the report. The pipeline error is returned after the
// report is written, so an interrupted run is still recorded.
func runHarvest(ctx context.Context, cfg *config.Config, kind model.RunKind, logger *slog.Logger, ro reportOptions) error {
	if cfg.EmbeddedTor {
		daemon, err := startTorDaemon(ctx, cfg, logger, ro.out)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := daemon.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		cfg.ProxyAddress = daemon.SocksAddr()
	}

	if cfg.ProxyAddress != "" {
		if status := transport.CheckProxy(ctx, cfg.ProxyAddress); status != transport.ProxyStatusOK {
			return fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s): %w",
				status, cfg.ProxyAddress, status.Err())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close() //nolint:errcheck // closing after the run is best effort
	}()
	logger.Info("database opened", "path", db.Path())

	p, err := buildPipeline(cfg, kind, db, logger)
	if err != nil {
		return err
	}

	runReport := model.NewRunReport(uuid.NewString(), kind)
	logger.Info("starting run",
		"run", runReport.RunID,
		"kind", kind,
		"steps", p.StepNames(),
	)

	runErr := p.Execute(ctx, runReport)
	elapsed := time.Since(runReport.StartedAt)

	// The run is recorded even when ctx was cancelled by a signal.
	if err := db.SaveRun(context.WithoutCancel(ctx), runReport); err != nil {
		logger.Error("failed to save run", "run", runReport.RunID, "error", err)
	}

	if err := outputReport(cfg, runReport, ro); err != nil {
		logger.Error("report failed", "run", runReport.RunID, "error", err)
	}

	logger.Info("run finished",
		"run", runReport.RunID,
		"elapsed", elapsed.Round(time.Millisecond),
		"succeeded", runReport.Succeeded(),
	)
	return runErr
}

// startTorDaemon starts the embedded Tor daemon used as the SOCKS5 proxy.
func startTorDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*transport.TorDaemon, error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	daemon := transport.NewTorDaemon(transport.WithDaemonStartupTimeout(cfg.TorStartupTimeout))
	if err := daemon.Start(ctx); err != nil {
		return nil, err
	}
	logger.Info("embedded Tor daemon started", "socks_addr", daemon.SocksAddr())
	return daemon, nil
}

// buildPipeline creates the steps for kind.
func buildPipeline(cfg *config.Config, kind model.RunKind, db *database.CatalogDB, logger *slog.Logger) (*pipeline.Pipeline, error) {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(cfg.ContinueOnError),
	)
	reporter := progress.NewLogReporter(logger)

	if kind == model.RunKindCrawl || kind == model.RunKindFull {
		c, err := newCrawler(cfg, logger, reporter)
		if err != nil {
			return nil, err
		}
		p.AddSteps(
			pipeline.NewCrawlStep(c, logger),
			pipeline.NewSaveCatalogStep(db, logger),
		)
	}

	if kind == model.RunKindEnrich || kind == model.RunKindFull {
		coordinator, err := newCoordinator(cfg, logger, reporter)
		if err != nil {
			return nil, err
		}
		keysFile := cfg.KeysFile
		p.AddSteps(
			pipeline.NewEnrichStep(func() ([]model.LookupKey, error) {
				return lookup.LoadKeys(keysFile)
			}, coordinator, logger),
			pipeline.NewSaveLookupStep(db, logger),
		)
	}

	return p, nil
}

// newCrawler creates the catalog crawler. Origin headers such as the
// cookie are only sent to the origin.
func newCrawler(cfg *config.Config, logger *slog.Logger, reporter progress.Reporter) (*crawler.Crawler, error) {
	client, err := transport.NewHTTPClient(transport.Options{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.ProxyAddress,
		Headers:      cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create origin client: %w", err)
	}

	fetcher, err := crawler.NewHTTPFetcher(client, cfg.BaseURL,
		crawler.WithGate(ratelimit.NewFixedInterval(cfg.CrawlDelay)),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
	)
	if err != nil {
		return nil, err
	}

	return crawler.New(fetcher,
		crawler.WithLanguages(cfg.Languages...),
		crawler.WithPageSize(cfg.PageSize),
		crawler.WithDeepCrawlThreshold(cfg.DeepCrawlThreshold),
		crawler.WithLogger(logger),
		crawler.WithProgress(reporter),
	), nil
}

// newCoordinator creates the lookup client, worker, dispatcher and retry
// coordinator.
func newCoordinator(cfg *config.Config, logger *slog.Logger, reporter progress.Reporter) (*pipeline.Coordinator, error) {
	client, err := transport.NewHTTPClient(transport.Options{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.ProxyAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	lookupClient, err := newLookupClient(client, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.Open(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}
	logger.Info("checkpoint directory", "dir", store.Dir())

	worker := pipeline.NewFetchWorker(lookupClient, store,
		pipeline.WithLookupConcurrency(cfg.LookupConcurrency),
		pipeline.WithWorkerLogger(logger),
	)
	dispatcher := pipeline.NewDispatcher(worker,
		pipeline.WithUnitConcurrency(cfg.UnitConcurrency),
		pipeline.WithDispatchLogger(logger),
	)
	return pipeline.NewCoordinator(dispatcher, store, cfg.Credentials,
		pipeline.WithIntervalSize(cfg.IntervalSize),
		pipeline.WithMaxRetries(cfg.MaxRetries),
		pipeline.WithCoordinatorLogger(logger),
		pipeline.WithCoordinatorProgress(reporter),
	), nil
}

// newLookupClient creates the gateway client from cfg.
func newLookupClient(httpClient *http.Client, cfg *config.Config, logger *slog.Logger) (*lookup.Client, error) {
	opts := []lookup.Option{
		lookup.WithGatewayURL(cfg.GatewayURL),
		lookup.WithSearchURLTemplate(cfg.SearchURLTemplate),
		lookup.WithLogger(logger),
	}
	if cfg.SkipMarkers != nil {
		opts = append(opts, lookup.WithSkipMarkers(cfg.SkipMarkers...))
	}
	if rate := cfg.RatePerCredential; rate > 0 {
		opts = append(opts, lookup.WithRateLimit(func() ratelimit.Gate {
			return ratelimit.NewPerSecond(rate)
		}))
	}
	return lookup.NewClient(httpClient, opts...)
}

// reportOptions selects where and how much of the report is written.
type reportOptions struct {
	out  io.Writer
	full bool
}
