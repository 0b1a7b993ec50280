package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/harvest/internal/checkpoint"
	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/progress"
)

// Coordinator defaults.
const (
	// DefaultIntervalSize is the number of work items per interval.
	DefaultIntervalSize = 100

	// DefaultMaxRetries is the number of retry rounds after the first wave.
	DefaultMaxRetries = 5

	// StageLookup is the progress stage reported by the coordinator.
	StageLookup = "lookup"
)

// CheckpointStore is the checkpoint directory as seen by the coordinator.
type CheckpointStore interface {
	CheckpointWriter
	Scan() ([]checkpoint.File, error)
	Merge(kind model.OutcomeKind, files []checkpoint.File) ([]model.Outcome, error)
	Remove(files []checkpoint.File) error
	SaveMerged(kind model.OutcomeKind, outcomes []model.Outcome) error
	LoadMerged(kind model.OutcomeKind) ([]model.Outcome, error)
}

// Coordinator drives the partitioned, multi-credential lookup of a key set
// to convergence.
//
// Each round partitions the pending items, schedules the intervals over the
// credentials, dispatches the units and sweeps the checkpoint directory.
// Items that came back ConnectionLost form the next round's work until none
// are left or the retry budget is spent. TypeMismatch items are quarantined
// and never retried.
type Coordinator struct {
	dispatcher   *Dispatcher
	store        CheckpointStore
	credentials  []string
	intervalSize int
	maxRetries   int
	logger       *slog.Logger
	progress     progress.Reporter
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithIntervalSize sets the number of items per interval.
func WithIntervalSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.intervalSize = n
	}
}

// WithMaxRetries sets the number of retry rounds after the first wave.
// Zero disables retries.
func WithMaxRetries(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCoordinatorProgress sets the progress reporter.
func WithCoordinatorProgress(r progress.Reporter) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.progress = r
		}
	}
}

// NewCoordinator creates a coordinator. The dispatcher's worker must write
// its checkpoints to store.
func NewCoordinator(dispatcher *Dispatcher, store CheckpointStore, credentials []string, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		dispatcher:   dispatcher,
		store:        store,
		credentials:  append([]string(nil), credentials...),
		intervalSize: DefaultIntervalSize,
		maxRetries:   DefaultMaxRetries,
		logger:       slog.Default(),
		progress:     progress.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run looks up every key and returns the converged summary.
//
// Results already present in the checkpoint directory are reused, so a run
// that was interrupted resumes where it stopped. A configuration error in
// the first wave aborts the run. A non-empty residual is not an error.
func (c *Coordinator) Run(ctx context.Context, keys []model.LookupKey) (*model.LookupSummary, error) {
	keys = uniqueKeys(keys)
	inRun := make(map[string]bool, len(keys))
	for _, k := range keys {
		inRun[k.ID()] = true
	}

	l := newLedger()
	if err := c.resume(l); err != nil {
		return nil, err
	}

	pending := make([]model.LookupKey, 0, len(keys))
	for _, k := range keys {
		if !l.done(k.ID()) {
			pending = append(pending, k)
		}
	}
	if skipped := len(keys) - len(pending); skipped > 0 {
		c.logger.Info("resuming from checkpoints", "already_done", skipped, "pending", len(pending))
	}

	var (
		lost        []model.Outcome
		failedUnits []string
		rounds      int
	)
	work := pending
	for len(work) > 0 {
		rounds++
		credentials := c.credentials
		if rounds > 1 {
			credentials = FitCredentials(ceilDiv(len(work), max(c.intervalSize, 1)), c.credentials)
		}

		assignments, err := c.plan(len(work), credentials)
		if err != nil {
			return nil, err
		}

		c.logger.Info("starting lookup round",
			"round", rounds,
			"items", len(work),
			"credentials", len(assignments),
		)
		for _, r := range c.dispatcher.Dispatch(ctx, assignments, work) {
			if r.Err != nil {
				failedUnits = append(failedUnits, fmt.Sprintf("round %d interval %s: %v", rounds, r.Interval, r.Err))
			}
		}

		lost, err = c.sweep(l)
		if err != nil {
			return nil, err
		}
		c.progress.Update(StageLookup, l.countIn(inRun), len(keys))

		if err := ctx.Err(); err != nil {
			return c.summary(keys, inRun, l, lost, rounds, failedUnits), fmt.Errorf("lookup interrupted: %w", err)
		}
		if len(lost) == 0 {
			break
		}
		if rounds > c.maxRetries {
			c.logger.Warn("retry budget exhausted", "rounds", rounds, "residual", len(lost))
			break
		}
		work = outcomeKeys(lost)
	}

	return c.summary(keys, inRun, l, lost, rounds, failedUnits), nil
}

// plan partitions n items and schedules them over credentials.
func (c *Coordinator) plan(n int, credentials []string) ([]Assignment, error) {
	intervals, err := Partition(n, c.intervalSize)
	if err != nil {
		return nil, err
	}
	return Schedule(intervals, credentials)
}

// resume loads the persisted aggregates and folds in any interval files a
// previous run left behind.
func (c *Coordinator) resume(l *ledger) error {
	fetched, err := c.store.LoadMerged(model.Fetched)
	if err != nil {
		return fmt.Errorf("failed to load fetched aggregate: %w", err)
	}
	for _, o := range fetched {
		l.addFetched(o)
	}
	quarantined, err := c.store.LoadMerged(model.TypeMismatch)
	if err != nil {
		return fmt.Errorf("failed to load quarantine aggregate: %w", err)
	}
	for _, o := range quarantined {
		l.addQuarantined(o)
	}
	_, err = c.sweep(l)
	return err
}

// sweep merges every interval file into the ledger, persists the
// aggregates, deletes the merged files and returns the items still lost.
// Aggregates are written before the interval files are removed, so a crash
// between the two only causes a repeated merge.
func (c *Coordinator) sweep(l *ledger) ([]model.Outcome, error) {
	files, err := c.store.Scan()
	if err != nil {
		return nil, err
	}

	fetched, err := c.store.Merge(model.Fetched, files)
	if err != nil {
		return nil, err
	}
	for _, o := range fetched {
		l.addFetched(o)
	}

	mismatched, err := c.store.Merge(model.TypeMismatch, files)
	if err != nil {
		return nil, err
	}
	for _, o := range mismatched {
		l.addQuarantined(o)
	}

	merged, err := c.store.Merge(model.ConnectionLost, files)
	if err != nil {
		return nil, err
	}
	lost := make([]model.Outcome, 0, len(merged))
	for _, o := range merged {
		if !l.done(o.ID()) {
			lost = append(lost, o)
		}
	}

	if err := c.store.SaveMerged(model.Fetched, l.fetched); err != nil {
		return nil, err
	}
	if err := c.store.SaveMerged(model.TypeMismatch, l.quarantined); err != nil {
		return nil, err
	}
	if err := c.store.SaveMerged(model.ConnectionLost, lost); err != nil {
		return nil, err
	}
	if err := c.store.Remove(files); err != nil {
		return nil, err
	}

	c.logger.Debug("checkpoint sweep",
		"files", len(files),
		"fetched", len(l.fetched),
		"quarantined", len(l.quarantined),
		"lost", len(lost),
	)
	return lost, nil
}

func (c *Coordinator) summary(keys []model.LookupKey, inRun map[string]bool, l *ledger, lost []model.Outcome, rounds int, failedUnits []string) *model.LookupSummary {
	return &model.LookupSummary{
		Total:       len(keys),
		Fetched:     filterOutcomes(l.fetched, inRun),
		Quarantined: filterOutcomes(l.quarantined, inRun),
		Residual:    filterOutcomes(lost, inRun),
		Rounds:      rounds,
		FailedUnits: failedUnits,
	}
}

// ledger accumulates terminal outcomes by item id across sweeps.
type ledger struct {
	fetched     []model.Outcome
	quarantined []model.Outcome
	seen        map[string]model.OutcomeKind
}

func newLedger() *ledger {
	return &ledger{
		fetched:     make([]model.Outcome, 0),
		quarantined: make([]model.Outcome, 0),
		seen:        make(map[string]model.OutcomeKind),
	}
}

func (l *ledger) done(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// addFetched records a fetched outcome. A fetch wins over an earlier
// quarantine of the same item.
func (l *ledger) addFetched(o model.Outcome) {
	id := o.ID()
	if kind, ok := l.seen[id]; ok {
		if kind == model.Fetched {
			return
		}
		l.quarantined = removeOutcome(l.quarantined, id)
	}
	l.seen[id] = model.Fetched
	l.fetched = append(l.fetched, o)
}

func (l *ledger) addQuarantined(o model.Outcome) {
	id := o.ID()
	if l.done(id) {
		return
	}
	l.seen[id] = model.TypeMismatch
	l.quarantined = append(l.quarantined, o)
}

// countIn returns how many terminal outcomes belong to ids.
func (l *ledger) countIn(ids map[string]bool) int {
	n := 0
	for id := range l.seen {
		if ids[id] {
			n++
		}
	}
	return n
}

func removeOutcome(outcomes []model.Outcome, id string) []model.Outcome {
	out := outcomes[:0]
	for _, o := range outcomes {
		if o.ID() != id {
			out = append(out, o)
		}
	}
	return out
}

func filterOutcomes(outcomes []model.Outcome, ids map[string]bool) []model.Outcome {
	out := make([]model.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if ids[o.ID()] {
			out = append(out, o)
		}
	}
	return out
}

func outcomeKeys(outcomes []model.Outcome) []model.LookupKey {
	keys := make([]model.LookupKey, 0, len(outcomes))
	for _, o := range outcomes {
		keys = append(keys, o.Item)
	}
	return keys
}

// uniqueKeys drops repeated keys, keeping the first occurrence.
func uniqueKeys(keys []model.LookupKey) []model.LookupKey {
	seen := make(map[string]bool, len(keys))
	out := make([]model.LookupKey, 0, len(keys))
	for _, k := range keys {
		id := k.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, k)
	}
	return out
}
