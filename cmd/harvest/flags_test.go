package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/harvest/internal/config"
)

const testConfigYAML = `origin:
  languages: [ko]
  crawl_delay: "500ms"
  cookie: "session=abc"
lookup:
  credentials: [file-key]
  keys_file: refs.json
  interval_size: 7
db_dir: /tmp/from-file
`

// writeTestConfig writes testConfigYAML into a temporary directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// parsedCmd returns cmd with args parsed into its flags.
func parsedCmd(t *testing.T, cmd *cobra.Command, args ...string) *cobra.Command {
	t.Helper()
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("file values apply when flags are not set", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t)
		cmd := parsedCmd(t, NewRunCmd(), "-c", path)

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg.Languages, []string{"ko"}) {
			t.Errorf("expected languages [ko], got %v", cfg.Languages)
		}
		if cfg.CrawlDelay != 500*time.Millisecond {
			t.Errorf("expected crawl delay 500ms, got %s", cfg.CrawlDelay)
		}
		if cfg.Headers["Cookie"] != "session=abc" {
			t.Errorf("expected cookie header, got %v", cfg.Headers)
		}
		if !reflect.DeepEqual(cfg.Credentials, []string{"file-key"}) {
			t.Errorf("expected file credentials, got %v", cfg.Credentials)
		}
		if cfg.IntervalSize != 7 {
			t.Errorf("expected interval size 7, got %d", cfg.IntervalSize)
		}
		if cfg.DBDir != "/tmp/from-file" {
			t.Errorf("expected db dir from file, got %q", cfg.DBDir)
		}
		if cfg.MaxRetries != config.DefaultMaxRetries {
			t.Errorf("expected default max retries, got %d", cfg.MaxRetries)
		}
	})

	t.Run("explicit flags override the file", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t)
		dbDir := t.TempDir()
		cmd := parsedCmd(t, NewRunCmd(),
			"-c", path,
			"-l", "en,ko",
			"--interval-size", "3",
			"--credential", "a",
			"--credential", "b",
			"--keys", "other.json",
			"--db-dir", dbDir,
			"--max-retries", "0",
			"--cookie", "session=xyz",
			"--continue-on-error",
			"-j",
		)

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg.Languages, []string{"en", "ko"}) {
			t.Errorf("expected languages [en ko], got %v", cfg.Languages)
		}
		if cfg.IntervalSize != 3 {
			t.Errorf("expected interval size 3, got %d", cfg.IntervalSize)
		}
		if !reflect.DeepEqual(cfg.Credentials, []string{"a", "b"}) {
			t.Errorf("expected flag credentials, got %v", cfg.Credentials)
		}
		if cfg.KeysFile != "other.json" {
			t.Errorf("expected keys file from flag, got %q", cfg.KeysFile)
		}
		if cfg.DBDir != dbDir {
			t.Errorf("expected db dir %q, got %q", dbDir, cfg.DBDir)
		}
		if cfg.MaxRetries != 0 {
			t.Errorf("expected max retries 0, got %d", cfg.MaxRetries)
		}
		if cfg.Headers["Cookie"] != "session=xyz" {
			t.Errorf("expected cookie from flag, got %q", cfg.Headers["Cookie"])
		}
		if !cfg.ContinueOnError {
			t.Error("expected continue-on-error")
		}
		if !cfg.JSONReport {
			t.Error("expected JSON report")
		}
	})

	t.Run("crawl command ignores lookup settings it has no flags for", func(t *testing.T) {
		t.Parallel()
		path := writeTestConfig(t)
		cmd := parsedCmd(t, NewCrawlCmd(), "-c", path, "--base-url", "https://example.org")

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BaseURL != "https://example.org" {
			t.Errorf("expected base URL from flag, got %q", cfg.BaseURL)
		}
		if cfg.IntervalSize != 7 {
			t.Errorf("expected interval size from file, got %d", cfg.IntervalSize)
		}
	})

	t.Run("missing explicit config file is an error", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		cmd := parsedCmd(t, NewEnrichCmd(), "-c", missing)

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid file duration is an error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("origin:\n  crawl_delay: soon\n"), 0600); err != nil {
			t.Fatal(err)
		}
		cmd := parsedCmd(t, NewCrawlCmd(), "-c", path)

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrInvalidCrawlDelay) {
			t.Errorf("expected ErrInvalidCrawlDelay, got %v", err)
		}
	})
}

func TestBuildConfig_CredentialsFromEnvironment(t *testing.T) {
	path := writeTestConfig(t)

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv(credentialsEnv, "env-1, env-2,")
		cmd := parsedCmd(t, NewEnrichCmd(), "-c", path)

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg.Credentials, []string{"env-1", "env-2"}) {
			t.Errorf("expected environment credentials, got %v", cfg.Credentials)
		}
	})

	t.Run("flags override the environment", func(t *testing.T) {
		t.Setenv(credentialsEnv, "env-1")
		cmd := parsedCmd(t, NewEnrichCmd(), "-c", path, "--credential", "flag-1")

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(cfg.Credentials, []string{"flag-1"}) {
			t.Errorf("expected flag credentials, got %v", cfg.Credentials)
		}
	})
}

func TestSplitCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "abc", []string{"abc"}},
		{"several", "a,b,c", []string{"a", "b", "c"}},
		{"spaces and blanks", " a , ,b ,", []string{"a", "b"}},
		{"only separators", ",,", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := splitCredentials(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitCredentials(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStageCommandFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cmd     *cobra.Command
		present []string
		absent  []string
	}{
		{
			name:    "crawl",
			cmd:     NewCrawlCmd(),
			present: []string{"config", "db-dir", "json", "markdown", "output", "full", "proxy", "timeout", "base-url", "languages", "crawl-delay", "cookie"},
			absent:  []string{"keys", "credential", "interval-size"},
		},
		{
			name:    "enrich",
			cmd:     NewEnrichCmd(),
			present: []string{"config", "keys", "credential", "interval-size", "max-retries", "rate", "checkpoint-dir", "proxy"},
			absent:  []string{"base-url", "languages", "cookie"},
		},
		{
			name:    "run",
			cmd:     NewRunCmd(),
			present: []string{"base-url", "languages", "keys", "credential", "continue-on-error"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for _, name := range tt.present {
				if tt.cmd.Flags().Lookup(name) == nil {
					t.Errorf("expected %s flag", name)
				}
			}
			for _, name := range tt.absent {
				if tt.cmd.Flags().Lookup(name) != nil {
					t.Errorf("unexpected %s flag", name)
				}
			}
		})
	}
}
