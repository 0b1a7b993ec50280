package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// authorSeparator joins authors inside an identity key. The unit separator
// never appears in author text, so joined keys cannot collide.
const authorSeparator = "\x1f"

// categorySegment is the index of the category id when an origin path is
// split on "/": "", "univ", <lang>, "research", "journals", <category>, ...
const categorySegment = 5

// ErrInvalidOriginPath is returned when a listing path does not follow the
// /univ/<lang>/research/journals/<category>/... layout.
var ErrInvalidOriginPath = errors.New("invalid origin path")

// ListingRecord is one catalog entry discovered by the crawler.
type ListingRecord struct {
	// Title is the listing title text.
	Title string `json:"title"`

	// Authors is the ordered set of author names.
	Authors []string `json:"authors"`

	// Path is the origin path of the listing. It encodes the category id,
	// publication year, issue number and a unique hash.
	Path string `json:"path"`
}

// ListingKey is the identity of a ListingRecord.
// Two records with the same key are the same listing regardless of which
// crawl pass discovered them.
type ListingKey struct {
	Title   string
	Authors string
	Path    string
}

// Key returns the identity key of the record.
func (r ListingRecord) Key() ListingKey {
	return ListingKey{
		Title:   r.Title,
		Authors: strings.Join(r.Authors, authorSeparator),
		Path:    r.Path,
	}
}

// CategoryID returns the category encoded in the record's origin path.
func (r ListingRecord) CategoryID() (int, error) {
	p, err := ParseOriginPath(r.Path)
	if err != nil {
		return 0, err
	}
	return p.CategoryID, nil
}

// OriginPath is the decoded form of a listing path.
// Year, Issue and Hash are zero when the path is shorter than a full
// article path (for example a category link).
type OriginPath struct {
	Language   string
	CategoryID int
	Year       int
	Issue      int
	Hash       string
}

// ParseOriginPath decodes an origin path such as
// /univ/en/research/journals/12/2019/1/3fa9c0.
// Absolute URLs are accepted; only their path component is inspected.
func ParseOriginPath(path string) (OriginPath, error) {
	if i := strings.Index(path, "://"); i >= 0 {
		rest := path[i+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return OriginPath{}, fmt.Errorf("%w: %q", ErrInvalidOriginPath, path)
		}
		path = rest[slash:]
	}
	if q := strings.IndexAny(path, "?#"); q >= 0 {
		path = path[:q]
	}

	segments := strings.Split(path, "/")
	if len(segments) <= categorySegment || segments[1] != "univ" || segments[4] != "journals" {
		return OriginPath{}, fmt.Errorf("%w: %q", ErrInvalidOriginPath, path)
	}

	id, err := strconv.Atoi(strings.TrimSpace(segments[categorySegment]))
	if err != nil {
		return OriginPath{}, fmt.Errorf("%w: category %q", ErrInvalidOriginPath, segments[categorySegment])
	}

	op := OriginPath{Language: segments[2], CategoryID: id}
	if len(segments) > categorySegment+1 {
		op.Year, _ = strconv.Atoi(segments[categorySegment+1]) //nolint:errcheck // non-numeric year means unknown
	}
	if len(segments) > categorySegment+2 {
		op.Issue, _ = strconv.Atoi(segments[categorySegment+2]) //nolint:errcheck // non-numeric issue means unknown
	}
	if len(segments) > categorySegment+3 {
		op.Hash = segments[categorySegment+3]
	}
	return op, nil
}

// ParseAuthors splits the author text shown next to a listing into an
// ordered set of names. Duplicate names keep their first position.
func ParseAuthors(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == ';'
	})

	authors := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		name := strings.Join(strings.Fields(f), " ")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		authors = append(authors, name)
	}
	return authors
}
