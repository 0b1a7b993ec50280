package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nao1215/harvest/internal/checkpoint"
	"github.com/nao1215/harvest/internal/model"
)

// stubLookup answers lookups from a per-key script. Each call consumes the
// next scripted error for the key; when the script runs out the lookup
// succeeds.
type stubLookup struct {
	mu       sync.Mutex
	script   func(key model.LookupKey, attempt int) error
	attempts map[string]int
	creds    map[string]int
}

func newStubLookup(script func(key model.LookupKey, attempt int) error) *stubLookup {
	return &stubLookup{
		script:   script,
		attempts: make(map[string]int),
		creds:    make(map[string]int),
	}
}

func (s *stubLookup) Lookup(_ context.Context, credential string, key model.LookupKey) (string, error) {
	s.mu.Lock()
	s.attempts[key.ID()]++
	attempt := s.attempts[key.ID()]
	s.creds[credential]++
	s.mu.Unlock()

	if s.script != nil {
		if err := s.script(key, attempt); err != nil {
			return "", err
		}
	}
	return "payload:" + key.Citation, nil
}

func (s *stubLookup) attemptsFor(key model.LookupKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key.ID()]
}

func (s *stubLookup) totalAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		n += a
	}
	return n
}

func lookupKeys(n int) []model.LookupKey {
	keys := make([]model.LookupKey, 0, n)
	for i := range n {
		keys = append(keys, model.LookupKey{ListingHash: fmt.Sprintf("h%03d", i), Citation: fmt.Sprintf("citation %d", i)})
	}
	return keys
}

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.Open(filepath.Join(t.TempDir(), "refs"))
	if err != nil {
		t.Fatalf("checkpoint.Open() error = %v", err)
	}
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
