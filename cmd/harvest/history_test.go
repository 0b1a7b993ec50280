package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/harvest/internal/config"
	"github.com/nao1215/harvest/internal/database"
	"github.com/nao1215/harvest/internal/model"
)

// emptyConfigFile keeps the command from picking up a config file in the
// working or home directory.
func emptyConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("# empty\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedRuns stores two runs in a new database under dir.
func seedRuns(t *testing.T, dir string) (older, newer *model.RunReport) {
	t.Helper()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	older = model.NewRunReport("run-older", model.RunKindCrawl)
	older.StartedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older.FinishedAt = older.StartedAt.Add(90 * time.Second)
	older.ListingCount = 42

	newer = model.NewRunReport("run-newer", model.RunKindEnrich)
	newer.StartedAt = older.StartedAt.Add(time.Hour)
	newer.FinishedAt = newer.StartedAt.Add(time.Minute)
	newer.ErrorMessage = "lookup failed"

	for _, r := range []*model.RunReport{older, newer} {
		if err := db.SaveRun(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	return older, newer
}

// runHistory executes a fresh history command and returns its output.
func runHistory(t *testing.T, dbDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewHistoryCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"-c", emptyConfigFile(t), "--db-dir", dbDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("no database yet", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs recorded yet") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)

		out, err := runHistory(t, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		newerAt := strings.Index(out, "run-newer")
		olderAt := strings.Index(out, "run-older")
		if newerAt < 0 || olderAt < 0 || newerAt > olderAt {
			t.Errorf("expected both runs, newest first, got:\n%s", out)
		}
		if !strings.Contains(out, "1m30s") {
			t.Errorf("expected older run duration, got:\n%s", out)
		}
		if !strings.Contains(out, "failed") || !strings.Contains(out, "ok") {
			t.Errorf("expected both statuses, got:\n%s", out)
		}
	})

	t.Run("limit restricts the listing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)

		out, err := runHistory(t, dir, "-n", "1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "run-newer") || strings.Contains(out, "run-older") {
			t.Errorf("expected only the newest run, got:\n%s", out)
		}
	})

	t.Run("lists runs as JSON", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)

		out, err := runHistory(t, dir, "-j")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var entries []runEntry
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].ID != "run-newer" || entries[0].Succeeded {
			t.Errorf("unexpected first entry: %+v", entries[0])
		}
		if entries[1].Kind != model.RunKindCrawl || !entries[1].Succeeded {
			t.Errorf("unexpected second entry: %+v", entries[1])
		}
	})

	t.Run("shows one run", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)

		out, err := runHistory(t, dir, "run-older")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "HARVEST REPORT") || !strings.Contains(out, "run-older") {
			t.Errorf("expected the run's report, got:\n%s", out)
		}
		if !strings.Contains(out, "42") {
			t.Errorf("expected the listing count, got:\n%s", out)
		}
	})

	t.Run("shows one run as Markdown file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)
		reportFile := filepath.Join(t.TempDir(), "run.md")

		out, err := runHistory(t, dir, "run-newer", "-m", "-o", reportFile)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Report written to") {
			t.Errorf("unexpected output: %q", out)
		}
		content, err := os.ReadFile(reportFile)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "# Harvest Report") {
			t.Errorf("expected Markdown report, got:\n%s", content)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedRuns(t, dir)

		_, err := runHistory(t, dir, "missing")
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()
		_, err := runHistory(t, t.TempDir(), "-j", "-m")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})
}
