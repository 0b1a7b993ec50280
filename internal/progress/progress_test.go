package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestRecorder tests the in-memory reporter.
func TestRecorder(t *testing.T) {
	t.Parallel()

	t.Run("records updates concurrently", func(t *testing.T) {
		t.Parallel()

		r := NewRecorder()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r.Update("lookup", i, 50)
			}(i)
		}
		wg.Wait()

		if got := len(r.Updates()); got != 50 {
			t.Errorf("expected 50 updates, got %d", got)
		}
	})

	t.Run("Last returns the latest update per stage", func(t *testing.T) {
		t.Parallel()

		r := NewRecorder()
		r.Update("shallow", 1, 3)
		r.Update("deep", 1, 1)
		r.Update("shallow", 2, 3)

		u, ok := r.Last("shallow")
		if !ok || u.Done != 2 {
			t.Errorf("unexpected last update %+v (ok=%v)", u, ok)
		}
		if _, ok := r.Last("missing"); ok {
			t.Error("expected no update for unknown stage")
		}
	})
}

// TestLogReporter tests that updates reach the logger.
func TestLogReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewLogReporter(logger).Update("count_check", 4, 9)

	out := buf.String()
	if !strings.Contains(out, "stage=count_check") || !strings.Contains(out, "done=4") {
		t.Errorf("unexpected log output %q", out)
	}
}

// TestNop tests that the nop reporter is usable.
func TestNop(t *testing.T) {
	t.Parallel()
	Nop().Update("anything", 1, 1)
}
