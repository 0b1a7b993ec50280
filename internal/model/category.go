package model

import "sort"

// Category is a subject/journal grouping of catalog listings.
//
// CurrentCount is the number of distinct listings collected so far and
// ExpectedCount is the authoritative count reported by the category's own
// listing page. CurrentCount never exceeds ExpectedCount.
type Category struct {
	// ID is the numeric category identifier taken from the origin path.
	ID int `json:"id"`

	// Name is the display name shown on the category index.
	Name string `json:"name"`

	// Language is the BCP 47 tag of the catalog the category was found in.
	Language string `json:"language"`

	// Years holds the known publication years, newest first.
	Years []int `json:"years,omitempty"`

	// CurrentCount is the number of listings collected for the category.
	CurrentCount int `json:"current_count"`

	// ExpectedCount is the listing count the origin reports for the category.
	ExpectedCount int `json:"expected_count"`

	// Unpublished is set when the category page carried no count marker.
	Unpublished bool `json:"unpublished,omitempty"`
}

// Complete reports whether every expected listing has been collected.
func (c Category) Complete() bool {
	return c.CurrentCount == c.ExpectedCount
}

// Missing returns how many listings are still expected.
func (c Category) Missing() int {
	if c.ExpectedCount <= c.CurrentCount {
		return 0
	}
	return c.ExpectedCount - c.CurrentCount
}

// AddYears merges years into the category, keeping them unique and sorted
// newest first.
func (c *Category) AddYears(years ...int) {
	seen := make(map[int]bool, len(c.Years)+len(years))
	merged := make([]int, 0, len(c.Years)+len(years))
	for _, y := range append(append([]int{}, c.Years...), years...) {
		if seen[y] {
			continue
		}
		seen[y] = true
		merged = append(merged, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(merged)))
	c.Years = merged
}

// SortedCategoryIDs returns the keys of a category map in ascending order.
func SortedCategoryIDs(categories map[int]Category) []int {
	ids := make([]int, 0, len(categories))
	for id := range categories {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
