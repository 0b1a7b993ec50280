package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/harvest/internal/config"
	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/report"
)

// newReportWriter returns the writer for the configured report format.
func newReportWriter(cfg *config.Config, out io.Writer, full bool) report.Writer {
	switch {
	case cfg.JSONReport && full:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

// openReportFile creates the report file and its parent directories.
func openReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list citations and lookup details; keep them owner-only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// outputReport writes a run report in the requested format. When a report
// file is set, a text summary is also printed to ro.out.
func outputReport(cfg *config.Config, runReport *model.RunReport, ro reportOptions) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg, ro.out, ro.full).Write(runReport)
		return err
	}

	f, err := openReportFile(cfg.ReportFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // write errors are reported by Write
	}()

	w := report.NewMultiWriter(
		newReportWriter(cfg, f, ro.full),
		report.NewSimpleWriter(ro.out),
	)
	if _, err := w.Write(runReport); err != nil {
		return err
	}
	fmt.Fprintf(ro.out, "Report written to %s\n", cfg.ReportFile)
	return nil
}

// outputSimpleReport writes a stored run's summary in the requested format.
func outputSimpleReport(cfg *config.Config, simple *model.SimpleReport, out io.Writer) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg, out, false).WriteSimple(simple)
		return err
	}

	f, err := openReportFile(cfg.ReportFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // write errors are reported by WriteSimple
	}()

	if _, err := newReportWriter(cfg, f, false).WriteSimple(simple); err != nil {
		return err
	}
	fmt.Fprintf(out, "Report written to %s\n", cfg.ReportFile)
	return nil
}
