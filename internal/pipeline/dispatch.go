package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/harvest/internal/model"
)

// DefaultUnitConcurrency is the number of worker units that run at once.
const DefaultUnitConcurrency = 4

// Dispatcher runs every (interval, credential) unit of a schedule
// concurrently with a bounded number of units in flight.
//
// Design decision: We use errgroup.SetLimit rather than a fixed worker pool
// because every unit is independent and errgroup already bounds the number
// of goroutines. Units never return errors to the group, so one failing
// unit cannot cancel its siblings.
type Dispatcher struct {
	worker      *FetchWorker
	concurrency int
	logger      *slog.Logger
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// WithUnitConcurrency sets the maximum number of concurrent units.
func WithUnitConcurrency(n int) DispatchOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *slog.Logger) DispatchOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher around worker.
func NewDispatcher(worker *FetchWorker, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		worker:      worker,
		concurrency: DefaultUnitConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Units flattens assignments into units, keeping schedule order.
func Units(assignments []Assignment) []Unit {
	units := make([]Unit, 0)
	for _, a := range assignments {
		for _, iv := range a.Intervals {
			units = append(units, Unit{Interval: iv, Credential: a.Credential})
		}
	}
	return units
}

// Dispatch runs every unit of assignments over keys and returns one result
// per unit in schedule order.
//
// Per-credential rate limits are enforced by the Lookuper, so units of the
// same credential may run side by side.
func (d *Dispatcher) Dispatch(ctx context.Context, assignments []Assignment, keys []model.LookupKey) []UnitResult {
	units := Units(assignments)
	results := make([]UnitResult, len(units))

	d.logger.Info("dispatching units",
		"units", len(units),
		"credentials", len(assignments),
		"concurrency", d.concurrency,
	)
	startTime := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for i, unit := range units {
		g.Go(func() error {
			results[i] = d.worker.Run(ctx, unit, keys)
			if err := results[i].Err; err != nil {
				d.logger.Warn("unit failed",
					"interval", unit.Interval.String(),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // units never return errors

	d.logger.Info("dispatch complete",
		"units", len(units),
		"elapsed", time.Since(startTime),
	)
	return results
}
