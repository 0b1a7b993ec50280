package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/harvest/internal/checkpoint"
	"github.com/nao1215/harvest/internal/model"
)

// DefaultLookupConcurrency is the number of lookups that run at once
// inside one worker unit.
const DefaultLookupConcurrency = 10

// Lookuper performs one external lookup.
type Lookuper interface {
	Lookup(ctx context.Context, credential string, key model.LookupKey) (string, error)
}

// CheckpointWriter persists the outcomes of one kind for one interval.
type CheckpointWriter interface {
	Write(kind model.OutcomeKind, iv model.Interval, outcomes []model.Outcome) (checkpoint.File, error)
}

// Unit is one (interval, credential) pair of work.
type Unit struct {
	Interval   model.Interval
	Credential string
}

// UnitResult reports how one unit finished. Err is set when the unit
// crashed or its checkpoints could not be written; the outcome counts are
// then only what was observed before the failure.
type UnitResult struct {
	Interval   model.Interval
	Credential string
	Fetched    int
	Lost       int
	Mismatched int
	Err        error
}

// FetchWorker runs the lookups of one unit and checkpoints them.
type FetchWorker struct {
	lookup      Lookuper
	store       CheckpointWriter
	concurrency int
	logger      *slog.Logger
}

// WorkerOption configures a FetchWorker.
type WorkerOption func(*FetchWorker)

// WithLookupConcurrency sets the number of concurrent lookups per unit.
func WithLookupConcurrency(n int) WorkerOption {
	return func(w *FetchWorker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *FetchWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFetchWorker creates a worker that looks keys up through lookup and
// writes checkpoints to store.
func NewFetchWorker(lookup Lookuper, store CheckpointWriter, opts ...WorkerOption) *FetchWorker {
	w := &FetchWorker{
		lookup:      lookup,
		store:       store,
		concurrency: DefaultLookupConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run looks up every key of unit.Interval in keys and writes the three
// outcome lists as separate checkpoints, including empty ones.
//
// Each lookup writes only its own result slot. A panic anywhere in the unit
// is recovered and reported through UnitResult.Err without writing any
// checkpoint, so the unit's items are neither fetched nor lost.
func (w *FetchWorker) Run(ctx context.Context, unit Unit, keys []model.LookupKey) (result UnitResult) {
	result = UnitResult{Interval: unit.Interval, Credential: unit.Credential}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("%w: interval %s: %v", ErrUnitPanicked, unit.Interval, r)
		}
	}()

	iv := unit.Interval
	if iv.Start < 0 || iv.End > len(keys) || iv.Start > iv.End {
		result.Err = fmt.Errorf("%w: %s over %d items", ErrIntervalOutOfRange, iv, len(keys))
		return result
	}

	slots := make([]model.Outcome, iv.Len())
	var (
		panicOnce sync.Once
		panicErr  error
	)

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for i := range slots {
		key := keys[iv.Start+i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() {
						panicErr = fmt.Errorf("%w: interval %s item %d: %v", ErrUnitPanicked, iv, iv.Start+i, r)
					})
				}
			}()
			slots[i] = w.attempt(ctx, unit.Credential, key)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	if panicErr != nil {
		result.Err = panicErr
		return result
	}

	byKind := make(map[model.OutcomeKind][]model.Outcome, len(model.OutcomeKinds))
	for _, o := range slots {
		byKind[o.Kind] = append(byKind[o.Kind], o)
	}
	result.Fetched = len(byKind[model.Fetched])
	result.Lost = len(byKind[model.ConnectionLost])
	result.Mismatched = len(byKind[model.TypeMismatch])

	var errs []error
	for _, kind := range model.OutcomeKinds {
		if _, err := w.store.Write(kind, iv, byKind[kind]); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint %s %s: %w", kind, iv, err))
		}
	}
	if len(errs) > 0 {
		result.Err = errors.Join(errs...)
	}

	w.logger.Debug("unit finished",
		"interval", iv.String(),
		"fetched", result.Fetched,
		"lost", result.Lost,
		"mismatched", result.Mismatched,
	)
	return result
}

// attempt performs one lookup and classifies its outcome. Cancellation
// counts as a lost connection so the item is retried on resume.
func (w *FetchWorker) attempt(ctx context.Context, credential string, key model.LookupKey) model.Outcome {
	if err := ctx.Err(); err != nil {
		return model.NewConnectionLost(key, err)
	}
	payload, err := w.lookup.Lookup(ctx, credential, key)
	switch {
	case err == nil:
		return model.NewFetched(key, payload)
	case ctx.Err() != nil, model.IsRetryable(err):
		return model.NewConnectionLost(key, err)
	default:
		return model.NewTypeMismatch(key, err)
	}
}
