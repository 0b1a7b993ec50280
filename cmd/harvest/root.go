// Package main provides the entry point for the harvest CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for harvest.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Catalog crawler and citation enrichment pipeline",
		Long: `harvest mirrors the listing catalog of a slow origin site and enriches
every listing's citations through a rate-limited scraping gateway.

The crawl is completeness driven: each category's listing count is compared
with the count the origin publishes, and short categories are crawled again
issue by issue. Enrichment splits the citations into work intervals, spreads
them over the available API credentials, and retries lost lookups in waves
until they converge or the retry budget runs out.

Results are stored in a SQLite database in the XDG data directory.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewEnrichCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
