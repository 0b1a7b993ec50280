package model

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// LookupKey is one external lookup to perform: a citation found in the
// listing identified by ListingHash.
type LookupKey struct {
	// ListingHash is the unique hash of the listing the citation belongs to.
	ListingHash string `json:"hash"`

	// Citation is the free-text citation used as the lookup query.
	Citation string `json:"citation"`
}

// ID returns the stable identity of the key. Outcomes are matched by ID,
// never by position.
func (k LookupKey) ID() string {
	h := sha3.New256()
	h.Write([]byte(k.ListingHash))
	h.Write([]byte{0})
	h.Write([]byte(k.Citation))
	return hex.EncodeToString(h.Sum(nil))
}

// WorkItem is a stable index position into the ordered list of lookup keys
// built once per pipeline run.
type WorkItem int

// Interval is a half-open index range [Start, End) over work items.
// It is the unit of dispatch.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of work items in the interval.
func (iv Interval) Len() int {
	if iv.End < iv.Start {
		return 0
	}
	return iv.End - iv.Start
}

// Contains reports whether the work item falls inside the interval.
func (iv Interval) Contains(item WorkItem) bool {
	return int(item) >= iv.Start && int(item) < iv.End
}

// Items returns the work items covered by the interval in order.
func (iv Interval) Items() []WorkItem {
	items := make([]WorkItem, 0, iv.Len())
	for i := iv.Start; i < iv.End; i++ {
		items = append(items, WorkItem(i))
	}
	return items
}

// String returns the interval as "start-end", the form used in checkpoint
// file names.
func (iv Interval) String() string {
	return fmt.Sprintf("%d-%d", iv.Start, iv.End)
}
