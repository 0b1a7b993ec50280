package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/harvest/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, GitHub alerts and mermaid charts
// without hand-written escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	return w.WriteSimple(model.NewSimpleReport(report))
}

// WriteSimple outputs the simple report in Markdown format.
func (w *MarkdownWriter) WriteSimple(report *model.SimpleReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeCatalog(md, report)
	w.writeLookup(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SimpleReport) {
	md.H1("Harvest Report")
	md.PlainText("")

	rows := [][]string{
		{"Run", "`" + report.RunID + "`"},
		{"Kind", string(report.Kind)},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if report.Duration > 0 {
		rows = append(rows, []string{"Duration", report.Duration.Round(time.Second).String()})
	}
	rows = append(rows, []string{"Status", w.getStatusText(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.SimpleReport) string {
	switch report.Status() {
	case model.StatusInterrupted:
		return "⚠️ Interrupted (partial results)"
	case model.StatusFailed:
		return "❌ Error - " + report.Error
	default:
		return "✅ Complete"
	}
}

// writeCatalog writes the completeness table.
func (w *MarkdownWriter) writeCatalog(md *markdown.Markdown, report *model.SimpleReport) {
	if report.CategoryCount == 0 && report.ListingCount == 0 {
		return
	}

	md.H2("Catalog")
	md.PlainText("")
	md.PlainTextf("%d listings in %d categories, %d complete.",
		report.ListingCount, report.CategoryCount, report.CompleteCount)
	md.PlainText("")

	if report.HasShortCategories() {
		md.Warningf("%d categories are still short of their expected count.", len(report.Short))
	} else {
		md.Tip("Every category is complete.")
	}
	md.PlainText("")

	rows := make([][]string, 0, len(report.Categories))
	for _, c := range report.Categories {
		status := "✅"
		switch {
		case c.Unpublished:
			status = "⏳ unpublished"
		case !c.Complete():
			status = "⚠️ short " + strconv.Itoa(c.Missing)
		}
		name := c.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(c.ID),
			truncateString(name, 40),
			c.Language,
			strconv.Itoa(c.Current),
			strconv.Itoa(c.Expected),
			status,
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Name", "Language", "Collected", "Expected", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeLookup writes the enrichment summary, the outcome chart and the
// unresolved items.
func (w *MarkdownWriter) writeLookup(md *markdown.Markdown, report *model.SimpleReport) {
	stats := report.Lookup
	if stats == nil {
		return
	}

	md.H2("Lookup")
	md.PlainText("")

	counts := stats.Counts()
	rows := [][]string{{"Keys", strconv.Itoa(stats.Total)}, {"Rounds", strconv.Itoa(stats.Rounds)}}
	for _, kind := range model.OutcomeKinds {
		rows = append(rows, []string{label(kind.String()), strconv.Itoa(counts[kind])})
	}
	if stats.Skipped > 0 {
		rows = append(rows, []string{"Skipped", strconv.Itoa(stats.Skipped)})
	}
	if pending := stats.Pending(); pending > 0 {
		rows = append(rows, []string{"Pending", strconv.Itoa(pending)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if stats.Total > 0 {
		w.writePieChart(md, counts)
	}

	switch {
	case len(stats.FailedUnits) > 0:
		md.Cautionf("%d work unit(s) crashed. Their items are retried on the next run.", len(stats.FailedUnits))
		md.PlainText("")
		md.BulletList(stats.FailedUnits...)
	case stats.Residual > 0:
		md.Importantf("%d item(s) still lost a connection after the retry budget.", stats.Residual)
	default:
		md.Note("Every lookup reached a final outcome.")
	}
	md.PlainText("")

	w.writeItems(md, "Quarantined", stats.QuarantinedItems)
	w.writeItems(md, "Residual", stats.ResidualItems)
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.OutcomeKind]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Lookup Outcomes"),
		piechart.WithShowData(true),
	)

	for _, kind := range model.OutcomeKinds {
		if counts[kind] > 0 {
			chart.LabelAndIntValue(label(kind.String()), uint64(counts[kind]))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeItems writes a table of unresolved lookup items.
func (w *MarkdownWriter) writeItems(md *markdown.Markdown, title string, items []model.ItemStatus) {
	if len(items) == 0 {
		return
	}

	md.H3(title)
	md.PlainText("")

	rows := make([][]string, len(items))
	for i, item := range items {
		detail := item.Detail
		if detail == "" {
			detail = "-"
		}
		rows[i] = []string{
			"`" + item.Hash + "`",
			truncateString(item.Citation, 60),
			truncateString(detail, 50),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Hash", "Citation", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [harvest](https://github.com/nao1215/harvest)*")
}
