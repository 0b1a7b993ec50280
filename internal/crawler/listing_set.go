package crawler

import (
	"sync"

	"github.com/nao1215/harvest/internal/model"
)

// ListingSet is an order-preserving set of listing records keyed by
// ListingRecord.Key. It is safe for concurrent use.
type ListingSet struct {
	mu      sync.Mutex
	seen    map[model.ListingKey]struct{}
	records []model.ListingRecord
}

// NewListingSet creates an empty set.
func NewListingSet() *ListingSet {
	return &ListingSet{seen: make(map[model.ListingKey]struct{})}
}

// Add inserts records that are not yet present and returns how many were new.
func (s *ListingSet) Add(records ...model.ListingRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, r := range records {
		key := r.Key()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.records = append(s.records, r)
		added++
	}
	return added
}

// Len returns the number of distinct records.
func (s *ListingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a copy of the records in insertion order.
func (s *ListingSet) Records() []model.ListingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ListingRecord, len(s.records))
	copy(out, s.records)
	return out
}
