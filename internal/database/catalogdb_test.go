package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/harvest/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CatalogDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func listing(title, path string, authors ...string) model.ListingRecord {
	return model.ListingRecord{Title: title, Authors: authors, Path: path}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		if _, err := db1.InsertListings(ctx, []model.ListingRecord{
			listing("Title", "/univ/en/research/journals/1/2020/1/a", "Kim"),
		}); err != nil {
			t.Fatalf("failed to insert listing: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		n, err := db2.CountListings(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("CountListings() = %d, want 1", n)
		}
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("CreateIfNotExists should default to true")
	}
	if !opts.EnableWAL {
		t.Error("EnableWAL should default to true")
	}
}

func TestCategories(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	first := map[int]model.Category{
		7: {ID: 7, Name: "Physics", Language: "en", Years: []int{2021, 2020}, CurrentCount: 3, ExpectedCount: 5},
		2: {ID: 2, Name: "History", Language: "en", Unpublished: true},
	}
	if err := db.SaveCategories(ctx, first); err != nil {
		t.Fatalf("SaveCategories() error = %v", err)
	}

	// Upsert replaces the counts of an existing category.
	updated := map[int]model.Category{
		7: {ID: 7, Name: "Physics", Language: "en", Years: []int{2021, 2020}, CurrentCount: 5, ExpectedCount: 5},
	}
	if err := db.SaveCategories(ctx, updated); err != nil {
		t.Fatalf("SaveCategories() error = %v", err)
	}

	got, err := db.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}
	if got[0].ID != 2 || !got[0].Unpublished || got[0].Years != nil {
		t.Errorf("category 2 = %+v", got[0])
	}
	if got[1].ID != 7 || got[1].CurrentCount != 5 || !got[1].Complete() {
		t.Errorf("category 7 = %+v", got[1])
	}
	if len(got[1].Years) != 2 || got[1].Years[0] != 2021 {
		t.Errorf("years = %v", got[1].Years)
	}
}

func TestInsertListings(t *testing.T) {
	t.Parallel()

	t.Run("counts only new listings", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		batch := []model.ListingRecord{
			listing("A", "/univ/en/research/journals/1/2020/1/x", "Kim", "Lee"),
			listing("B", "/univ/en/research/journals/2/2020/1/y", "Pak"),
		}
		n, err := db.InsertListings(ctx, batch)
		if err != nil {
			t.Fatalf("InsertListings() error = %v", err)
		}
		if n != 2 {
			t.Errorf("inserted = %d, want 2", n)
		}

		again := append(batch, listing("C", "/univ/en/research/journals/1/2021/2/z", "Ri"))
		n, err = db.InsertListings(ctx, again)
		if err != nil {
			t.Fatalf("InsertListings() error = %v", err)
		}
		if n != 1 {
			t.Errorf("second insert = %d, want 1", n)
		}
	})

	t.Run("author order is part of identity", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		n, err := db.InsertListings(context.Background(), []model.ListingRecord{
			listing("A", "/univ/en/research/journals/1/2020/1/x", "Kim", "Lee"),
			listing("A", "/univ/en/research/journals/1/2020/1/x", "Lee", "Kim"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("inserted = %d, want 2", n)
		}
	})

	t.Run("list by category", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		if _, err := db.InsertListings(ctx, []model.ListingRecord{
			listing("A", "/univ/en/research/journals/1/2020/1/x", "Kim"),
			listing("B", "/univ/en/research/journals/2/2020/1/y"),
			listing("C", "/univ/en/research/journals/1/2019/4/z", "Ri"),
		}); err != nil {
			t.Fatal(err)
		}

		all, err := db.ListListings(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 || all[0].Title != "A" || all[2].Title != "C" {
			t.Errorf("ListListings(0) = %+v", all)
		}

		cat1, err := db.ListListings(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(cat1) != 2 {
			t.Errorf("ListListings(1) returned %d listings, want 2", len(cat1))
		}
		if all[1].Authors == nil || len(all[1].Authors) != 0 {
			t.Errorf("authorless listing should round-trip as empty, got %#v", all[1].Authors)
		}
	})
}

func TestOutcomes(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	a := model.LookupKey{ListingHash: "h1", Citation: "citation one"}
	b := model.LookupKey{ListingHash: "h2", Citation: "citation two"}

	if err := db.SaveOutcomes(ctx, []model.Outcome{
		model.NewConnectionLost(a, errors.New("timeout")),
		model.NewTypeMismatch(b, errors.New("not html")),
	}); err != nil {
		t.Fatalf("SaveOutcomes() error = %v", err)
	}

	// A later fetch replaces the earlier connection loss.
	if err := db.SaveOutcomes(ctx, []model.Outcome{model.NewFetched(a, "<html/>")}); err != nil {
		t.Fatalf("SaveOutcomes() error = %v", err)
	}

	fetched, err := db.ListOutcomes(ctx, model.Fetched)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 1 || fetched[0].Payload != "<html/>" || fetched[0].Item != a {
		t.Errorf("fetched = %+v", fetched)
	}

	lost, err := db.ListOutcomes(ctx, model.ConnectionLost)
	if err != nil {
		t.Fatal(err)
	}
	if len(lost) != 0 {
		t.Errorf("expected no connection-lost outcomes, got %d", len(lost))
	}

	mismatched, err := db.ListOutcomes(ctx, model.TypeMismatch)
	if err != nil {
		t.Fatal(err)
	}
	if len(mismatched) != 1 || mismatched[0].Detail != "not html" {
		t.Errorf("mismatched = %+v", mismatched)
	}
}

func TestRuns(t *testing.T) {
	t.Parallel()

	t.Run("save and retrieve run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()

		report := model.NewRunReport("run-a", model.RunKindFull)
		report.Categories[3] = model.Category{ID: 3, CurrentCount: 2, ExpectedCount: 4}
		report.SetShort([]int{3})
		report.ListingCount = 2
		report.Lookup = &model.LookupSummary{Total: 1, Rounds: 2}
		report.PerformedSteps = append(report.PerformedSteps, "crawl")
		report.FinishedAt = report.StartedAt.Add(time.Minute)

		if err := db.SaveRun(ctx, report); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}

		got, err := db.GetRun(ctx, "run-a")
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got == nil {
			t.Fatal("expected run to exist")
		}
		if got.Kind != model.RunKindFull || got.ListingCount != 2 {
			t.Errorf("got %+v", got)
		}
		if got.Categories[3].ExpectedCount != 4 {
			t.Errorf("categories = %+v", got.Categories)
		}
		if got.Lookup == nil || got.Lookup.Rounds != 2 {
			t.Errorf("lookup = %+v", got.Lookup)
		}
	})

	t.Run("returns nil for unknown run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		got, err := db.GetRun(context.Background(), "missing")
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got != nil {
			t.Error("expected nil for unknown run")
		}
	})

	t.Run("lists newest first with limit", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"old", "middle", "new"} {
			report := model.NewRunReport(id, model.RunKindCrawl)
			report.StartedAt = base.Add(time.Duration(i) * time.Hour)
			if id == "middle" {
				report.ErrorMessage = "crawl failed"
			}
			if err := db.SaveRun(ctx, report); err != nil {
				t.Fatal(err)
			}
		}

		runs, err := db.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "new" || runs[1].ID != "middle" {
			t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
		}
		if !runs[0].Succeeded || runs[1].Succeeded {
			t.Error("succeeded flags not stored")
		}
		if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("StartedAt = %v", runs[0].StartedAt)
		}
		if !runs[0].FinishedAt.IsZero() {
			t.Error("unfinished run should have zero FinishedAt")
		}

		all, err := db.ListRuns(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 runs, got %d", len(all))
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{name: "sqlite default", in: "2026-01-02 03:04:05"},
		{name: "rfc3339", in: "2026-01-02T03:04:05Z"},
		{name: "empty", in: "", zero: true},
		{name: "garbage", in: "yesterday", zero: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
			}
		})
	}
}
