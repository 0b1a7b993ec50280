package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/harvest/internal/config"
	"github.com/nao1215/harvest/internal/database"
	"github.com/nao1215/harvest/internal/model"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// ErrRunNotFound is returned when no stored run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs or show one run's report",
		Long: `History reads the run records kept in the database.

Without arguments, the most recent runs are listed, newest first. With a run
id, that run's report is printed in the requested format.

Examples:
  # List the last 20 runs
  harvest history

  # List every run as JSON
  harvest history -n 0 -j

  # Show one run as Markdown
  harvest history 2f1c8e8a-6f0e-4c59-9d59-1f7f3b1c2a10 -m`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to list (0 = all)")
	addStorageFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close() //nolint:errcheck // read-only use
	}()

	if len(args) == 1 {
		return showRun(ctx, cfg, db, args[0], cmd.OutOrStdout())
	}
	return listRuns(ctx, cfg, db, limit, cmd.OutOrStdout())
}

// showRun prints the stored report of one run.
func showRun(ctx context.Context, cfg *config.Config, db *database.CatalogDB, id string, out io.Writer) error {
	runReport, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if runReport == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return outputSimpleReport(cfg, model.NewSimpleReport(runReport), out)
}

// runEntry is the JSON form of one listed run.
type runEntry struct {
	ID         string        `json:"id"`
	Kind       model.RunKind `json:"kind"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Succeeded  bool          `json:"succeeded"`
}

// listRuns prints the run history.
func listRuns(ctx context.Context, cfg *config.Config, db *database.CatalogDB, limit int, out io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if cfg.JSONReport {
		entries := make([]runEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, runEntry(r))
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-6s  %-20s  %-10s  %s\n", "RUN", "KIND", "STARTED", "DURATION", "STATUS")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		status := "failed"
		if r.Succeeded {
			status = "ok"
		}
		fmt.Fprintf(out, "%-36s  %-6s  %-20s  %-10s  %s\n",
			r.ID, r.Kind, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, status)
	}
	return nil
}
