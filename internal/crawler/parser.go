package crawler

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/harvest/internal/model"
)

// Selectors for the origin's catalog layout.
const (
	selectorTotalCount   = "input#totalListCnt"
	selectorCategoryLink = "nobr a[href]"
	selectorYear         = "a.j-pubyear"
	selectorIssue        = "a.j-num[data-id]"

	classRowTitle  = "journal-title"
	classRowAuthor = "list-author"
)

// categoryHrefPattern matches a category link on the category index.
var categoryHrefPattern = regexp.MustCompile(`/research/journals/(\d+)/?$`)

// Parser extracts catalog structure from one origin HTML page.
//
// Design decision: The document is parsed once with golang.org/x/net/html.
// goquery selects over that tree for attribute lookups, while the listing
// rows are paired by a document-order walk of the same nodes because a
// title and its author block are siblings in some layouts and cousins in
// others.
type Parser struct {
	// pageURL is the URL the page was fetched from, used to resolve row links.
	pageURL *url.URL
}

// NewParser creates a parser for a page fetched from pageURL.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	return &Parser{pageURL: u}, nil
}

// Parse reads an HTML document and returns its catalog structure.
func (p *Parser) Parse(content io.Reader) (*Page, error) {
	root, err := html.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	page := &Page{
		Rows:          p.extractRows(root),
		CategoryLinks: extractCategoryLinks(doc),
		Years:         extractYears(doc),
		Issues:        extractIssues(doc),
	}
	page.Total, page.HasTotal = extractTotal(doc)
	return page, nil
}

// extractTotal reads the hidden total-count marker.
// Thousands separators and spaces are stripped before conversion.
func extractTotal(doc *goquery.Document) (int, bool) {
	value, ok := doc.Find(selectorTotalCount).First().Attr("value")
	if !ok {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\u00a0' {
			return -1
		}
		return r
	}, value)
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// extractRows pairs every listing title with the first author block that
// follows it in document order.
func (p *Parser) extractRows(root *html.Node) []model.ListingRecord {
	rows := make([]model.ListingRecord, 0)
	var pending *model.ListingRecord

	flush := func() {
		if pending != nil {
			rows = append(rows, *pending)
			pending = nil
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, classRowTitle):
				flush()
				href := p.resolvePath(getAttr(n, "href"))
				if href != "" {
					pending = &model.ListingRecord{
						Title:   collapseSpace(textOf(n)),
						Authors: []string{},
						Path:    href,
					}
				}
				return
			case n.Data == "div" && hasClass(n, classRowAuthor):
				if pending != nil {
					pending.Authors = model.ParseAuthors(textOf(n))
					flush()
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	flush()
	return rows
}

func extractCategoryLinks(doc *goquery.Document) []CategoryLink {
	links := make([]CategoryLink, 0)
	seen := make(map[int]bool)
	doc.Find(selectorCategoryLink).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if u, err := url.Parse(href); err == nil {
			href = u.Path
		}
		m := categoryHrefPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			return
		}
		seen[id] = true
		links = append(links, CategoryLink{ID: id, Name: collapseSpace(s.Text())})
	})
	return links
}

func extractYears(doc *goquery.Document) []int {
	years := make([]int, 0)
	seen := make(map[int]bool)
	doc.Find(selectorYear).Each(func(_ int, s *goquery.Selection) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s.Text())
		year, err := strconv.Atoi(digits)
		if err != nil || year <= 0 || seen[year] {
			return
		}
		seen[year] = true
		years = append(years, year)
	})
	return years
}

// extractIssues returns the issue ids. Id 0 is a placeholder the origin
// emits for "all issues" and is ignored.
func extractIssues(doc *goquery.Document) []int {
	issues := make([]int, 0)
	seen := make(map[int]bool)
	doc.Find(selectorIssue).Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr("data-id")
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || id == 0 || seen[id] {
			return
		}
		seen[id] = true
		issues = append(issues, id)
	})
	return issues
}

// resolvePath resolves href against the page URL and returns its path.
// Listing identity is the origin path, so host and query are dropped.
func (p *Parser) resolvePath(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.pageURL.ResolveReference(u).Path
}

// getAttr returns the value of an attribute, or "" if absent.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textOf concatenates all text below n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
