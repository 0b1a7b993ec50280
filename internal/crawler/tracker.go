package crawler

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nao1215/harvest/internal/model"
)

// trackedCategory is a category plus bookkeeping the report does not need.
type trackedCategory struct {
	category model.Category

	// counted is set once the category page supplied an expected count
	// (or proved the category unpublished).
	counted bool
}

// Tracker keeps per-category expected and collected counts.
// It is safe for concurrent use.
//
// The tracker maintains CurrentCount <= ExpectedCount at all times. Before
// a category has been count-checked its expected count follows its current
// count, so it is never reported as incomplete on partial knowledge.
type Tracker struct {
	mu         sync.Mutex
	categories map[int]*trackedCategory
	logger     *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		categories: make(map[int]*trackedCategory),
		logger:     logger,
	}
}

// Observe records a sighting of a category. The first non-empty name and
// language win.
func (t *Tracker) Observe(id int, name, language string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observe(id, name, language)
}

func (t *Tracker) observe(id int, name, language string) *trackedCategory {
	tc, ok := t.categories[id]
	if !ok {
		tc = &trackedCategory{category: model.Category{ID: id, Years: []int{}}}
		t.categories[id] = tc
	}
	if tc.category.Name == "" {
		tc.category.Name = name
	}
	if tc.category.Language == "" {
		tc.category.Language = language
	}
	return tc
}

// SetExpected records the authoritative listing count of a category.
func (t *Tracker) SetExpected(id, expected int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tc := t.observe(id, "", "")
	tc.counted = true
	tc.category.Unpublished = false
	tc.category.ExpectedCount = expected
	t.clamp(tc)
}

// MarkUnpublished records that a category page carried no count marker.
// The category keeps its current count as its expected count.
func (t *Tracker) MarkUnpublished(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tc := t.observe(id, "", "")
	tc.counted = true
	tc.category.Unpublished = true
	tc.category.ExpectedCount = tc.category.CurrentCount
}

// SetYears merges publication years into a category.
func (t *Tracker) SetYears(id int, years []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observe(id, "", "").category.AddYears(years...)
}

// Recount recomputes every category's current count from records.
// Records whose path names an unknown category register that category.
func (t *Tracker) Recount(records []model.ListingRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[int]int)
	for _, r := range records {
		op, err := model.ParseOriginPath(r.Path)
		if err != nil {
			t.logger.Debug("listing path without category", "path", r.Path, "error", err)
			continue
		}
		counts[op.CategoryID]++
		t.observe(op.CategoryID, "", op.Language)
	}

	for id, tc := range t.categories {
		tc.category.CurrentCount = counts[id]
		if !tc.counted || tc.category.Unpublished {
			tc.category.ExpectedCount = tc.category.CurrentCount
			continue
		}
		t.clamp(tc)
	}
}

// clamp raises the expected count when more listings were collected than
// the origin reported. Callers must hold t.mu.
func (t *Tracker) clamp(tc *trackedCategory) {
	if tc.category.CurrentCount <= tc.category.ExpectedCount {
		return
	}
	t.logger.Warn("collected more listings than the origin reports",
		"category", tc.category.ID,
		"expected", tc.category.ExpectedCount,
		"current", tc.category.CurrentCount)
	tc.category.ExpectedCount = tc.category.CurrentCount
}

// Pending returns the ids of categories in language that have not been
// count-checked yet, in ascending order.
func (t *Tracker) Pending(language string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0)
	for id, tc := range t.categories {
		if !tc.counted && (tc.category.Language == language || tc.category.Language == "") {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Incomplete returns the ids of categories with fewer collected listings
// than expected, in ascending order. Unpublished categories are never
// incomplete.
func (t *Tracker) Incomplete() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0)
	for id, tc := range t.categories {
		if tc.counted && !tc.category.Unpublished && !tc.category.Complete() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Category returns a copy of one tracked category.
func (t *Tracker) Category(id int) (model.Category, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tc, ok := t.categories[id]
	if !ok {
		return model.Category{}, false
	}
	return copyCategory(tc.category), true
}

// Snapshot returns a copy of every tracked category keyed by id.
func (t *Tracker) Snapshot() map[int]model.Category {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int]model.Category, len(t.categories))
	for id, tc := range t.categories {
		out[id] = copyCategory(tc.category)
	}
	return out
}

func copyCategory(c model.Category) model.Category {
	c.Years = append([]int{}, c.Years...)
	return c
}
