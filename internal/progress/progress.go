// Package progress defines the progress-reporting collaborator injected into
// the crawler and the retry coordinator.
package progress

import (
	"log/slog"
	"sync"
)

// Reporter receives progress updates for a named stage.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// Update reports that done of total units in stage have finished.
	Update(stage string, done, total int)
}

// nop discards every update.
type nop struct{}

// Update implements Reporter.
func (nop) Update(string, int, int) {}

// Nop returns a Reporter that discards updates.
func Nop() Reporter {
	return nop{}
}

// LogReporter writes updates to a structured logger at Info level.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Update implements Reporter.
func (r *LogReporter) Update(stage string, done, total int) {
	r.logger.Info("progress",
		"stage", stage,
		"done", done,
		"total", total,
	)
}

// Update is a single recorded progress update.
type Update struct {
	Stage string
	Done  int
	Total int
}

// Recorder keeps every update in memory. It is used by tests and by the
// CLI to print a final per-stage tally.
type Recorder struct {
	mu      sync.Mutex
	updates []Update
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Update implements Reporter.
func (r *Recorder) Update(stage string, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, Update{Stage: stage, Done: done, Total: total})
}

// Updates returns a copy of the recorded updates in arrival order.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Last returns the most recent update for stage.
func (r *Recorder) Last(stage string) (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.updates) - 1; i >= 0; i-- {
		if r.updates[i].Stage == stage {
			return r.updates[i], true
		}
	}
	return Update{}, false
}
