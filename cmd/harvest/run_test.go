package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/harvest/internal/config"
	"github.com/nao1215/harvest/internal/database"
	"github.com/nao1215/harvest/internal/log"
	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/pipeline"
)

const testKeysJSON = `[
  {"hash": "h1", "citation": "Kim, Theory of Rice, 1998"},
  {"hash": "h1", "citation": "Ri, Soil Studies, 2001"},
  {"hash": "h2", "citation": "종합대학학보 2005"}
]`

// gatewayServer answers every lookup with a small HTML page and records
// the credentials it saw.
type gatewayServer struct {
	*httptest.Server

	mu    sync.Mutex
	creds map[string]int
}

func newGatewayServer(t *testing.T) *gatewayServer {
	t.Helper()
	g := &gatewayServer{creds: make(map[string]int)}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.creds[r.URL.Query().Get("api_key")]++
		g.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><body>cited by 3</body></html>") //nolint:errcheck
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *gatewayServer) requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.creds {
		n += c
	}
	return n
}

// testRunConfig returns a config that keeps every artifact in temporary
// directories.
func testRunConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DBDir = t.TempDir()
	cfg.CheckpointDir = filepath.Join(t.TempDir(), "refs")
	cfg.CrawlDelay = 0
	return cfg
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	t.Run("crawl does not need credentials", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		if err := validateConfig(cfg, model.RunKindCrawl); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("enrich needs credentials", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.KeysFile = "refs.json"
		if err := validateConfig(cfg, model.RunKindEnrich); !errors.Is(err, config.ErrNoCredentials) {
			t.Errorf("expected ErrNoCredentials, got %v", err)
		}
	})

	t.Run("full run needs a keys file", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Credentials = []string{"k"}
		if err := validateConfig(cfg, model.RunKindFull); !errors.Is(err, config.ErrNoKeysFile) {
			t.Errorf("expected ErrNoKeysFile, got %v", err)
		}
	})

	t.Run("general settings are checked first", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.BaseURL = "ftp://example.org"
		if err := validateConfig(cfg, model.RunKindCrawl); !errors.Is(err, config.ErrInvalidBaseURL) {
			t.Errorf("expected ErrInvalidBaseURL, got %v", err)
		}
	})
}

func TestRunHarvest_Enrich(t *testing.T) {
	t.Parallel()

	gateway := newGatewayServer(t)
	keysFile := filepath.Join(t.TempDir(), "refs.json")
	if err := os.WriteFile(keysFile, []byte(testKeysJSON), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := testRunConfig(t)
	cfg.GatewayURL = gateway.URL
	cfg.Credentials = []string{"key-one", "key-two"}
	cfg.KeysFile = keysFile
	cfg.IntervalSize = 1

	var out bytes.Buffer
	logger := log.NewSecureLogger(io.Discard, false)
	if err := runHarvest(context.Background(), cfg, model.RunKindEnrich, logger, reportOptions{out: &out}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The skip-marked citation is never sent to the gateway.
	if got := gateway.requests(); got != 2 {
		t.Errorf("expected 2 gateway requests, got %d", got)
	}

	if !strings.Contains(out.String(), "HARVEST REPORT") {
		t.Errorf("expected text report, got:\n%s", out.String())
	}

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	fetched, err := db.ListOutcomes(context.Background(), model.Fetched)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 3 {
		t.Errorf("expected 3 fetched outcomes, got %d", len(fetched))
	}

	runs, err := db.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 stored run, got %d", len(runs))
	}
	if runs[0].Kind != model.RunKindEnrich || !runs[0].Succeeded {
		t.Errorf("unexpected run metadata: %+v", runs[0])
	}

	stored, err := db.GetRun(context.Background(), runs[0].ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to load stored run: %v", err)
	}
	if stored.Lookup == nil || stored.Lookup.Total != 3 || stored.Lookup.Rounds != 1 {
		t.Errorf("unexpected stored lookup summary: %+v", stored.Lookup)
	}
}

func TestRunHarvest_JSONReportFile(t *testing.T) {
	t.Parallel()

	gateway := newGatewayServer(t)
	keysFile := filepath.Join(t.TempDir(), "refs.json")
	if err := os.WriteFile(keysFile, []byte(testKeysJSON), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := testRunConfig(t)
	cfg.GatewayURL = gateway.URL
	cfg.Credentials = []string{"key-one"}
	cfg.KeysFile = keysFile
	cfg.JSONReport = true
	cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.json")

	var out bytes.Buffer
	logger := log.NewSecureLogger(io.Discard, false)
	if err := runHarvest(context.Background(), cfg, model.RunKindEnrich, logger, reportOptions{out: &out, full: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(cfg.ReportFile)
	if err != nil {
		t.Fatalf("expected report file: %v", err)
	}
	if !strings.Contains(string(content), `"summary"`) {
		t.Errorf("expected full JSON report with summary, got:\n%s", content)
	}
	if !strings.Contains(string(content), "cited by 3") {
		t.Error("expected full JSON report to include payloads")
	}
	if !strings.Contains(out.String(), "Report written to") {
		t.Errorf("expected terminal summary, got:\n%s", out.String())
	}
}

func TestRunHarvest_FailedCrawlIsRecorded(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(origin.Close)

	cfg := testRunConfig(t)
	cfg.BaseURL = origin.URL
	cfg.Languages = []string{"en"}

	var out bytes.Buffer
	logger := log.NewSecureLogger(io.Discard, false)
	err := runHarvest(context.Background(), cfg, model.RunKindCrawl, logger, reportOptions{out: &out})
	if !errors.Is(err, pipeline.ErrNoListings) {
		t.Fatalf("expected ErrNoListings, got %v", err)
	}

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Succeeded {
		t.Errorf("expected one failed run, got %+v", runs)
	}
	if !strings.Contains(out.String(), "ERROR") {
		t.Errorf("expected report to show the error, got:\n%s", out.String())
	}
}

func TestRunHarvest_InvalidProxy(t *testing.T) {
	t.Parallel()

	cfg := testRunConfig(t)
	cfg.ProxyAddress = "not-a-proxy"

	err := runHarvest(context.Background(), cfg, model.RunKindCrawl, log.NewSecureLogger(io.Discard, false), reportOptions{out: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "proxy check failed") {
		t.Errorf("expected proxy check error, got %v", err)
	}
}

func TestBuildPipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind model.RunKind
		want []string
	}{
		{model.RunKindCrawl, []string{pipeline.StepCrawl, pipeline.StepSaveCatalog}},
		{model.RunKindEnrich, []string{pipeline.StepEnrich, pipeline.StepSaveLookup}},
		{model.RunKindFull, []string{pipeline.StepCrawl, pipeline.StepSaveCatalog, pipeline.StepEnrich, pipeline.StepSaveLookup}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			cfg := testRunConfig(t)
			cfg.Credentials = []string{"k"}
			cfg.KeysFile = "refs.json"

			db, err := database.Open(cfg.DBDir, database.DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			defer db.Close()

			p, err := buildPipeline(cfg, tt.kind, db, log.NewSecureLogger(io.Discard, false))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := p.StepNames()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected steps %v, got %v", tt.want, got)
			}
		})
	}
}
