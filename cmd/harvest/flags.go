package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/harvest/internal/config"
)

// credentialsEnv holds a comma separated list of gateway credentials.
// It keeps API keys out of shell history and process listings.
const credentialsEnv = "HARVEST_CREDENTIALS"

// addStorageFlags registers the config file and database flags.
func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .harvest.yaml in current or home directory)")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")
}

// addReportFlags registers the report format and destination flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// addStageReportFlags registers the report flags of the run commands.
func addStageReportFlags(cmd *cobra.Command) {
	addReportFlags(cmd)
	cmd.Flags().Bool("full", false,
		"Include lookup payloads in the JSON report")
}

// addTransportFlags registers the HTTP transport flags.
func addTransportFlags(cmd *cobra.Command) {
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().StringP("proxy", "p", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().Bool("continue-on-error", false,
		"Run the remaining steps after a step fails")
}

// addCrawlFlags registers the origin crawl flags.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", config.DefaultBaseURL,
		"Origin catalog site")
	cmd.Flags().StringSliceP("languages", "l", config.DefaultLanguages,
		"Catalog languages to crawl, in order")
	cmd.Flags().Duration("crawl-delay", config.DefaultCrawlDelay,
		"Delay between origin requests")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent to the origin")
	cmd.Flags().String("cookie", "",
		"Cookie sent with every origin request")
}

// addLookupFlags registers the enrichment flags.
func addLookupFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("keys", "k", "",
		"References bank of citations to look up")
	cmd.Flags().StringArray("credential", nil,
		"Gateway API key (repeatable; also read from "+credentialsEnv+")")
	cmd.Flags().String("gateway-url", config.DefaultGatewayURL,
		"Scraping gateway endpoint")
	cmd.Flags().Int("interval-size", config.DefaultIntervalSize,
		"Citations per work interval")
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries,
		"Retry rounds after the first wave")
	cmd.Flags().Int("rate", 0,
		"Lookups per second per credential (0 = unlimited)")
	cmd.Flags().Int("lookup-concurrency", config.DefaultLookupConcurrency,
		"Concurrent lookups inside one work unit")
	cmd.Flags().Int("unit-concurrency", config.DefaultUnitConcurrency,
		"Concurrently running work units")
	cmd.Flags().String("checkpoint-dir", "",
		"Checkpoint directory (default: refs in the XDG data directory)")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// changed reports whether the flag is registered on cmd and was set on
// the command line.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// buildConfig creates a Config from defaults, the configuration file, the
// environment and the command flags, in increasing precedence.
//
// Design decision: Flags override the file only when set explicitly.
// Otherwise every flag default would silently mask the file's values.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if flags.Lookup("config") != nil {
		if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
			return nil, err
		}
	}
	if _, err := config.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if env := os.Getenv(credentialsEnv); env != "" {
		cfg.Credentials = splitCredentials(env)
	}

	if err := applyStorageFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyTransportFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyLookupFlags(cmd, cfg); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

func applyStorageFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if changed(cmd, "db-dir") {
		if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
			return err
		}
	}
	return nil
}

func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("json") == nil {
		return nil
	}

	var err error
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	return nil
}

func applyTransportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if changed(cmd, "timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if changed(cmd, "proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if changed(cmd, "tor") {
		if cfg.EmbeddedTor, err = flags.GetBool("tor"); err != nil {
			return err
		}
	}
	if changed(cmd, "tor-timeout") {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return err
		}
	}
	if changed(cmd, "continue-on-error") {
		if cfg.ContinueOnError, err = flags.GetBool("continue-on-error"); err != nil {
			return err
		}
	}
	return nil
}

func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if changed(cmd, "base-url") {
		if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
			return err
		}
	}
	if changed(cmd, "languages") {
		if cfg.Languages, err = flags.GetStringSlice("languages"); err != nil {
			return err
		}
	}
	if changed(cmd, "crawl-delay") {
		if cfg.CrawlDelay, err = flags.GetDuration("crawl-delay"); err != nil {
			return err
		}
	}
	if changed(cmd, "user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	if changed(cmd, "cookie") {
		cookie, err := flags.GetString("cookie")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers["Cookie"] = cookie
	}
	return nil
}

func applyLookupFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if changed(cmd, "keys") {
		if cfg.KeysFile, err = flags.GetString("keys"); err != nil {
			return err
		}
	}
	if changed(cmd, "credential") {
		if cfg.Credentials, err = flags.GetStringArray("credential"); err != nil {
			return err
		}
	}
	if changed(cmd, "gateway-url") {
		if cfg.GatewayURL, err = flags.GetString("gateway-url"); err != nil {
			return err
		}
	}
	if changed(cmd, "interval-size") {
		if cfg.IntervalSize, err = flags.GetInt("interval-size"); err != nil {
			return err
		}
	}
	if changed(cmd, "max-retries") {
		if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
			return err
		}
	}
	if changed(cmd, "rate") {
		if cfg.RatePerCredential, err = flags.GetInt("rate"); err != nil {
			return err
		}
	}
	if changed(cmd, "lookup-concurrency") {
		if cfg.LookupConcurrency, err = flags.GetInt("lookup-concurrency"); err != nil {
			return err
		}
	}
	if changed(cmd, "unit-concurrency") {
		if cfg.UnitConcurrency, err = flags.GetInt("unit-concurrency"); err != nil {
			return err
		}
	}
	if changed(cmd, "checkpoint-dir") {
		if cfg.CheckpointDir, err = flags.GetString("checkpoint-dir"); err != nil {
			return err
		}
	}
	return nil
}

// splitCredentials splits a comma separated credential list, dropping
// blanks.
func splitCredentials(s string) []string {
	parts := strings.Split(s, ",")
	creds := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			creds = append(creds, p)
		}
	}
	return creds
}
