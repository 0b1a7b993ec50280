package model

import (
	"sort"
	"time"
)

// RunKind identifies which stages a run executed.
type RunKind string

const (
	// RunKindCrawl is a catalog crawl only.
	RunKindCrawl RunKind = "crawl"
	// RunKindEnrich is a lookup pipeline run only.
	RunKindEnrich RunKind = "enrich"
	// RunKindFull is a crawl followed by enrichment.
	RunKindFull RunKind = "full"
)

// RunReport is the result structure of one harvest run.
// Pipeline steps fill it in as they execute; report writers and the
// database consume it.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Kind records which stages were requested.
	Kind RunKind `json:"kind"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// === Crawl results ===

	// Categories is the final completeness map keyed by category id.
	Categories map[int]Category `json:"categories,omitempty"`

	// ShortCategories lists categories still incomplete after the deep crawl.
	ShortCategories []int `json:"short_categories,omitempty"`

	// Listings is the deduplicated listing set. It is not serialized into
	// the stored report; the database keeps listings in their own table.
	Listings []ListingRecord `json:"-"`

	// ListingCount is the size of the deduplicated listing set.
	ListingCount int `json:"listing_count"`

	// === Lookup results ===

	// Lookup summarizes the enrichment pipeline. Nil when it did not run.
	Lookup *LookupSummary `json:"lookup,omitempty"`

	// === Run metadata ===

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps"`

	// Interrupted is set when the run was cancelled before every step ran.
	Interrupted bool `json:"interrupted,omitempty"`

	// Error holds the error of the last failed step, if any.
	Error error `json:"-"`

	// ErrorMessage is the serializable form of Error.
	ErrorMessage string `json:"error,omitempty"`
}

// LookupSummary is the outcome of the retry coordinator.
type LookupSummary struct {
	// Total is the number of lookup keys in the run.
	Total int `json:"total"`

	// Fetched holds every successfully fetched outcome.
	Fetched []Outcome `json:"fetched,omitempty"`

	// Quarantined holds TypeMismatch outcomes, never retried.
	Quarantined []Outcome `json:"quarantined,omitempty"`

	// Residual holds items still ConnectionLost when the retry budget ran out.
	Residual []Outcome `json:"residual,omitempty"`

	// Rounds is the number of dispatch waves executed. The first wave is round 1.
	Rounds int `json:"rounds"`

	// FailedUnits describes worker units that crashed without writing a
	// checkpoint. Their items are not retried.
	FailedUnits []string `json:"failed_units,omitempty"`
}

// NewRunReport creates an empty report for a run.
func NewRunReport(runID string, kind RunKind) *RunReport {
	return &RunReport{
		RunID:          runID,
		Kind:           kind,
		StartedAt:      time.Now(),
		Categories:     make(map[int]Category),
		PerformedSteps: make([]string, 0),
	}
}

// CompleteCategories returns how many categories are complete.
func (r *RunReport) CompleteCategories() int {
	n := 0
	for _, c := range r.Categories {
		if c.Complete() {
			n++
		}
	}
	return n
}

// SetShort records the short category ids in ascending order.
func (r *RunReport) SetShort(ids []int) {
	short := append([]int(nil), ids...)
	sort.Ints(short)
	r.ShortCategories = short
}

// Succeeded reports whether the run finished without a step error.
// A non-empty residual list does not make a run unsuccessful.
func (r *RunReport) Succeeded() bool {
	return r.Error == nil && r.ErrorMessage == ""
}
