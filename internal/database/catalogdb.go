package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/harvest/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "harvest.db"

// timeLayout is a fixed-width timestamp layout, so stored run times sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is false
// and no database file exists.
var ErrDatabaseNotFound = errors.New("database not found")

// CatalogDB provides SQLite-based storage for the catalog, lookup results
// and run history.
//
// Design decision: One database file holds every run. Listings are
// deduplicated across runs by their identity, so repeated crawls only add
// what is new.
type CatalogDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CatalogDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CatalogDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error
// wrapping ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*CatalogDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s (use CreateIfNotExists option to create)", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a new file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CatalogDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CatalogDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CatalogDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CatalogDB) createTables() error {
	schema := `
	-- Categories hold the latest completeness state per category
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		years TEXT NOT NULL DEFAULT '[]',
		current_count INTEGER NOT NULL DEFAULT 0,
		expected_count INTEGER NOT NULL DEFAULT 0,
		unpublished INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Listings are the deduplicated catalog entries
	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		authors TEXT NOT NULL,
		path TEXT NOT NULL,
		category_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(title, authors, path)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category_id);

	-- Lookup results keep the latest outcome per lookup item
	CREATE TABLE IF NOT EXISTS lookup_results (
		item_id TEXT PRIMARY KEY,
		listing_hash TEXT NOT NULL,
		citation TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_lookup_kind ON lookup_results(kind);

	-- Runs store complete run reports as JSON
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		succeeded INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCategories upserts the completeness state of every category.
func (cdb *CatalogDB) SaveCategories(ctx context.Context, categories map[int]model.Category) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	query := `
	INSERT INTO categories (id, name, language, years, current_count, expected_count, unpublished)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		language = excluded.language,
		years = excluded.years,
		current_count = excluded.current_count,
		expected_count = excluded.expected_count,
		unpublished = excluded.unpublished,
		updated_at = CURRENT_TIMESTAMP
	`

	for _, id := range model.SortedCategoryIDs(categories) {
		c := categories[id]
		years := c.Years
		if years == nil {
			years = []int{}
		}
		yearsJSON, err := json.Marshal(years)
		if err != nil {
			return fmt.Errorf("failed to serialize years: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.Name, c.Language, string(yearsJSON),
			c.CurrentCount, c.ExpectedCount, boolToInt(c.Unpublished),
		); err != nil {
			return fmt.Errorf("failed to save category %d: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ListCategories returns every stored category ordered by id.
func (cdb *CatalogDB) ListCategories(ctx context.Context) ([]model.Category, error) {
	query := `
	SELECT id, name, language, years, current_count, expected_count, unpublished
	FROM categories
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var results []model.Category
	for rows.Next() {
		var c model.Category
		var yearsJSON string
		var unpublished int
		if err := rows.Scan(&c.ID, &c.Name, &c.Language, &yearsJSON,
			&c.CurrentCount, &c.ExpectedCount, &unpublished); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if err := json.Unmarshal([]byte(yearsJSON), &c.Years); err != nil {
			return nil, fmt.Errorf("failed to parse years of category %d: %w", c.ID, err)
		}
		if len(c.Years) == 0 {
			c.Years = nil
		}
		c.Unpublished = unpublished != 0
		results = append(results, c)
	}

	return results, rows.Err()
}

// InsertListings stores listings that are not yet known and returns how
// many were inserted. Listings already present are left untouched.
func (cdb *CatalogDB) InsertListings(ctx context.Context, records []model.ListingRecord) (int, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	query := `
	INSERT INTO listings (title, authors, path, category_id)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(title, authors, path) DO NOTHING
	`

	inserted := 0
	for _, r := range records {
		authors := r.Authors
		if authors == nil {
			authors = []string{}
		}
		authorsJSON, err := json.Marshal(authors)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize authors: %w", err)
		}

		var categoryID sql.NullInt64
		if id, err := r.CategoryID(); err == nil {
			categoryID = sql.NullInt64{Int64: int64(id), Valid: true}
		}

		result, err := tx.ExecContext(ctx, query, r.Title, string(authorsJSON), r.Path, categoryID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert listing: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count inserted listings: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit listings: %w", err)
	}
	return inserted, nil
}

// ListListings returns stored listings in insertion order. A zero
// categoryID returns every listing.
func (cdb *CatalogDB) ListListings(ctx context.Context, categoryID int) ([]model.ListingRecord, error) {
	query := `SELECT title, authors, path FROM listings`
	args := make([]any, 0, 1)
	if categoryID != 0 {
		query += " WHERE category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY id"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var results []model.ListingRecord
	for rows.Next() {
		var r model.ListingRecord
		var authorsJSON string
		if err := rows.Scan(&r.Title, &authorsJSON, &r.Path); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		if err := json.Unmarshal([]byte(authorsJSON), &r.Authors); err != nil {
			return nil, fmt.Errorf("failed to parse authors: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// CountListings returns the number of stored listings.
func (cdb *CatalogDB) CountListings(ctx context.Context) (int, error) {
	var n int
	if err := cdb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return n, nil
}

// SaveOutcomes upserts lookup outcomes by item id. A later outcome for the
// same item replaces the earlier one.
func (cdb *CatalogDB) SaveOutcomes(ctx context.Context, outcomes []model.Outcome) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	query := `
	INSERT INTO lookup_results (item_id, listing_hash, citation, kind, payload, detail)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(item_id) DO UPDATE SET
		kind = excluded.kind,
		payload = excluded.payload,
		detail = excluded.detail,
		updated_at = CURRENT_TIMESTAMP
	`

	for _, o := range outcomes {
		if _, err := tx.ExecContext(ctx, query,
			o.ID(), o.Item.ListingHash, o.Item.Citation, o.Kind.String(), o.Payload, o.Detail,
		); err != nil {
			return fmt.Errorf("failed to save lookup result: %w", err)
		}
	}

	return tx.Commit()
}

// ListOutcomes returns stored lookup outcomes of the given kind, ordered by
// item id.
func (cdb *CatalogDB) ListOutcomes(ctx context.Context, kind model.OutcomeKind) ([]model.Outcome, error) {
	query := `
	SELECT listing_hash, citation, kind, payload, detail
	FROM lookup_results
	WHERE kind = ?
	ORDER BY item_id
	`

	rows, err := cdb.db.QueryContext(ctx, query, kind.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list lookup results: %w", err)
	}
	defer rows.Close()

	var results []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var kindName string
		if err := rows.Scan(&o.Item.ListingHash, &o.Item.Citation, &kindName, &o.Payload, &o.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan lookup result: %w", err)
		}
		if o.Kind, err = model.ParseOutcomeKind(kindName); err != nil {
			return nil, err
		}
		results = append(results, o)
	}

	return results, rows.Err()
}

// SaveRun stores a run report, replacing any earlier report with the same id.
func (cdb *CatalogDB) SaveRun(ctx context.Context, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var finished string
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt.UTC().Format(timeLayout)
	}

	query := `
	INSERT INTO runs (id, kind, started_at, finished_at, succeeded, report_json)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		succeeded = excluded.succeeded,
		report_json = excluded.report_json
	`

	_, err = cdb.db.ExecContext(ctx, query,
		report.RunID,
		string(report.Kind),
		report.StartedAt.UTC().Format(timeLayout),
		finished,
		boolToInt(report.Succeeded()),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading the full report.
type RunMetadata struct {
	ID         string
	Kind       model.RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  bool
}

// ListRuns returns run metadata, newest first. A limit of zero or less
// returns every run.
func (cdb *CatalogDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, kind, started_at, finished_at, succeeded
	FROM runs
	ORDER BY started_at DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var kind, started, finished string
		var succeeded int
		if err := rows.Scan(&meta.ID, &kind, &started, &finished, &succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.Kind = model.RunKind(kind)
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		meta.Succeeded = succeeded != 0
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetRun retrieves a run report by id. It returns nil when no run matches.
func (cdb *CatalogDB) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// It returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
