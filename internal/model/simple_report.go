package model

import (
	"sort"
	"time"
)

// Run statuses reported by SimpleReport.Status.
const (
	StatusComplete    = "complete"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// SimpleReport is a summarized, human-readable view of a run.
// It is derived from a RunReport and holds only what report writers show.
//
// Design decision: We create a separate simplified report rather than
// printing parts of RunReport because it gives JSON consumers a stable,
// curated shape and keeps presentation concerns out of the pipeline.
type SimpleReport struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Kind is the requested run kind.
	Kind RunKind `json:"kind"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall time of the run. Zero while unfinished.
	Duration time.Duration `json:"duration"`

	// === Catalog ===

	// ListingCount is the number of distinct listings collected.
	ListingCount int `json:"listing_count"`

	// CategoryCount is the number of known categories.
	CategoryCount int `json:"category_count"`

	// CompleteCount is the number of complete categories.
	CompleteCount int `json:"complete_count"`

	// Categories holds every category in id order.
	Categories []CategoryStatus `json:"categories,omitempty"`

	// Short holds the categories still incomplete, in id order.
	Short []CategoryStatus `json:"short,omitempty"`

	// === Lookup ===

	// Lookup is nil when enrichment did not run.
	Lookup *LookupStats `json:"lookup,omitempty"`

	// === Run state ===

	// Steps lists the pipeline steps that ran.
	Steps []string `json:"steps"`

	// Interrupted indicates the run was cancelled.
	Interrupted bool `json:"interrupted"`

	// Error contains the error message if a step failed.
	Error string `json:"error,omitempty"`
}

// CategoryStatus is one row of the completeness table.
type CategoryStatus struct {
	ID          int    `json:"id"`
	Name        string `json:"name,omitempty"`
	Language    string `json:"language,omitempty"`
	Current     int    `json:"current"`
	Expected    int    `json:"expected"`
	Missing     int    `json:"missing"`
	Unpublished bool   `json:"unpublished,omitempty"`
}

// Complete reports whether the category has every expected listing.
func (c CategoryStatus) Complete() bool {
	return c.Current == c.Expected
}

// ItemStatus is a lookup item that did not produce a payload.
type ItemStatus struct {
	Hash     string `json:"hash"`
	Citation string `json:"citation"`
	Detail   string `json:"detail,omitempty"`
}

// LookupStats summarizes the enrichment stage.
type LookupStats struct {
	Total       int `json:"total"`
	Fetched     int `json:"fetched"`
	Skipped     int `json:"skipped"`
	Quarantined int `json:"quarantined"`
	Residual    int `json:"residual"`
	Rounds      int `json:"rounds"`

	// FailedUnits describes work units that crashed.
	FailedUnits []string `json:"failed_units,omitempty"`

	// QuarantinedItems lists TypeMismatch items.
	QuarantinedItems []ItemStatus `json:"quarantined_items,omitempty"`

	// ResidualItems lists items still ConnectionLost.
	ResidualItems []ItemStatus `json:"residual_items,omitempty"`
}

// Counts returns the number of items per outcome kind.
func (s *LookupStats) Counts() map[OutcomeKind]int {
	return map[OutcomeKind]int{
		Fetched:        s.Fetched,
		ConnectionLost: s.Residual,
		TypeMismatch:   s.Quarantined,
	}
}

// Pending returns how many keys have no outcome yet. This is non-zero only
// when a run was interrupted or a unit crashed.
func (s *LookupStats) Pending() int {
	n := s.Total - s.Fetched - s.Quarantined - s.Residual
	if n < 0 {
		return 0
	}
	return n
}

// NewSimpleReport creates a SimpleReport from a RunReport.
func NewSimpleReport(report *RunReport) *SimpleReport {
	s := &SimpleReport{
		RunID:        report.RunID,
		Kind:         report.Kind,
		StartedAt:    report.StartedAt,
		ListingCount: report.ListingCount,
		Steps:        append([]string{}, report.PerformedSteps...),
		Interrupted:  report.Interrupted,
		Error:        report.ErrorMessage,
	}
	if s.Error == "" && report.Error != nil {
		s.Error = report.Error.Error()
	}
	if !report.FinishedAt.IsZero() {
		s.Duration = report.FinishedAt.Sub(report.StartedAt)
	}

	s.collectCategories(report)
	if report.Lookup != nil {
		s.Lookup = newLookupStats(report.Lookup)
	}
	return s
}

func (s *SimpleReport) collectCategories(report *RunReport) {
	short := make(map[int]bool, len(report.ShortCategories))
	for _, id := range report.ShortCategories {
		short[id] = true
	}

	for _, id := range SortedCategoryIDs(report.Categories) {
		c := report.Categories[id]
		row := CategoryStatus{
			ID:          c.ID,
			Name:        c.Name,
			Language:    c.Language,
			Current:     c.CurrentCount,
			Expected:    c.ExpectedCount,
			Missing:     c.Missing(),
			Unpublished: c.Unpublished,
		}
		s.Categories = append(s.Categories, row)
		if c.Complete() {
			s.CompleteCount++
		}
		if short[id] || !c.Complete() {
			s.Short = append(s.Short, row)
		}
	}
	s.CategoryCount = len(s.Categories)
}

func newLookupStats(summary *LookupSummary) *LookupStats {
	stats := &LookupStats{
		Total:       summary.Total,
		Fetched:     len(summary.Fetched),
		Quarantined: len(summary.Quarantined),
		Residual:    len(summary.Residual),
		Rounds:      summary.Rounds,
		FailedUnits: append([]string(nil), summary.FailedUnits...),
	}
	for _, o := range summary.Fetched {
		if o.Payload == "" {
			stats.Skipped++
		}
	}
	stats.QuarantinedItems = itemStatuses(summary.Quarantined)
	stats.ResidualItems = itemStatuses(summary.Residual)
	return stats
}

func itemStatuses(outcomes []Outcome) []ItemStatus {
	if len(outcomes) == 0 {
		return nil
	}
	items := make([]ItemStatus, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, ItemStatus{Hash: o.Item.ListingHash, Citation: o.Item.Citation, Detail: o.Detail})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Hash < items[j].Hash })
	return items
}

// Status returns StatusComplete, StatusInterrupted or StatusFailed.
func (s *SimpleReport) Status() string {
	switch {
	case s.Interrupted:
		return StatusInterrupted
	case s.Error != "":
		return StatusFailed
	default:
		return StatusComplete
	}
}

// HasShortCategories reports whether any category is still incomplete.
func (s *SimpleReport) HasShortCategories() bool {
	return len(s.Short) > 0
}
