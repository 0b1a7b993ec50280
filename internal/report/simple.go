package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/harvest/internal/model"
)

// SimpleWriter outputs human-readable text reports.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it works in all terminals and is easy to pipe to
// files or other tools.
type SimpleWriter struct {
	baseWriter

	// showAll lists every category instead of only the short ones.
	showAll bool

	// verbose adds failure details to the item lists.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowAll configures the writer to list complete categories too.
func WithShowAll(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showAll = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	return w.WriteSimple(model.NewSimpleReport(report))
}

// WriteSimple outputs the simple report in human-readable format.
func (w *SimpleWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCatalog(&sb, report)
	w.writeLookup(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SimpleReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          HARVEST REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run:       %s (%s)\n", report.RunID, report.Kind)
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if report.Duration > 0 {
		fmt.Fprintf(sb, "Duration:  %s\n", report.Duration.Round(time.Second))
	}

	switch report.Status() {
	case model.StatusInterrupted:
		sb.WriteString("Status:    INTERRUPTED (partial results)\n")
	case model.StatusFailed:
		fmt.Fprintf(sb, "Status:    ERROR - %s\n", report.Error)
	default:
		sb.WriteString("Status:    Complete\n")
	}
	sb.WriteString("\n")
}

// writeCatalog writes the crawl summary and the category table.
func (w *SimpleWriter) writeCatalog(sb *strings.Builder, report *model.SimpleReport) {
	if report.CategoryCount == 0 && report.ListingCount == 0 {
		return
	}

	section(sb, "CATALOG")

	fmt.Fprintf(sb, "  Listings:   %d\n", report.ListingCount)
	fmt.Fprintf(sb, "  Categories: %d (%d complete, %d short)\n\n",
		report.CategoryCount, report.CompleteCount, len(report.Short))

	rows := report.Short
	if w.showAll {
		rows = report.Categories
	}
	if len(rows) == 0 {
		sb.WriteString("  All categories complete\n\n")
		return
	}

	fmt.Fprintf(sb, "  %-8s %-30s %9s %9s %8s\n", "ID", "NAME", "COLLECTED", "EXPECTED", "MISSING")
	for _, c := range rows {
		name := c.Name
		if c.Unpublished {
			name += " (unpublished)"
		}
		fmt.Fprintf(sb, "  %-8d %-30s %9d %9d %8d\n",
			c.ID, truncateString(name, 30), c.Current, c.Expected, c.Missing)
	}
	sb.WriteString("\n")
}

// writeLookup writes the enrichment summary and the unresolved items.
func (w *SimpleWriter) writeLookup(sb *strings.Builder, report *model.SimpleReport) {
	stats := report.Lookup
	if stats == nil {
		return
	}

	section(sb, "LOOKUP")

	fmt.Fprintf(sb, "  Keys:        %d\n", stats.Total)
	fmt.Fprintf(sb, "  Rounds:      %d\n", stats.Rounds)
	for _, kind := range model.OutcomeKinds {
		fmt.Fprintf(sb, "  %-12s %d\n", label(kind.String())+":", stats.Counts()[kind])
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(sb, "  Skipped:     %d (counted as fetched)\n", stats.Skipped)
	}
	if pending := stats.Pending(); pending > 0 {
		fmt.Fprintf(sb, "  Pending:     %d (resume to continue)\n", pending)
	}
	sb.WriteString("\n")

	w.writeItems(sb, "[!] Quarantined (never retried)", stats.QuarantinedItems)
	w.writeItems(sb, "[-] Residual (retry budget exhausted)", stats.ResidualItems)

	if len(stats.FailedUnits) > 0 {
		sb.WriteString("[!!] Failed units\n")
		for _, u := range stats.FailedUnits {
			fmt.Fprintf(sb, "  * %s\n", u)
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeItems(sb *strings.Builder, title string, items []model.ItemStatus) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(sb, "  * %s  %s\n", item.Hash, truncateString(item.Citation, 60))
		if w.verbose && item.Detail != "" {
			fmt.Fprintf(sb, "    Detail: %s\n", item.Detail)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by harvest\n")
	sb.WriteString("https://github.com/nao1215/harvest\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
