package crawler

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nao1215/harvest/internal/model"
)

// cursorParam is the query parameter carrying the page cursor.
const cursorParam = "cp"

// PageRequest identifies one catalog page.
// Zero fields select a shallower level: no CategoryID is the category index,
// no Year is the category page, no Issue is the year page.
type PageRequest struct {
	Language   string
	CategoryID int
	Year       int
	Issue      int

	// Page is the 1-based page number. Page 1 is requested without a cursor.
	Page int
}

// Path returns the origin path and query for the request.
func (r PageRequest) Path() string {
	p := "/univ/" + url.PathEscape(r.Language) + "/research/journals"
	if r.CategoryID > 0 {
		p += "/" + strconv.Itoa(r.CategoryID)
		if r.Year > 0 {
			p += "/" + strconv.Itoa(r.Year)
			if r.Issue > 0 {
				p += "/" + strconv.Itoa(r.Issue)
			}
		}
	}
	if r.Page > 1 {
		p += "?" + cursorParam + "=" + strconv.Itoa(r.Page)
	}
	return p
}

// CategoryLink is a category discovered on the category index.
type CategoryLink struct {
	ID   int
	Name string
}

// Page is the structural parse of one catalog page.
type Page struct {
	// Total is the value of the hidden total-count marker.
	Total int

	// HasTotal is false when the page carried no count marker, which the
	// origin does for content that is not yet published.
	HasTotal bool

	// Rows are the listing entries on the page.
	Rows []model.ListingRecord

	// CategoryLinks are category index links.
	CategoryLinks []CategoryLink

	// Years are publication-year navigation links.
	Years []int

	// Issues are issue-number navigation links. Zero ids are already removed.
	Issues []int
}

// PageFetcher performs one page retrieval and structural parse.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// pageCount returns how many pages hold total rows at pageSize per page.
func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
