package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/ratelimit"
)

// defaultMaxBodySize bounds how much of one catalog page is read.
const defaultMaxBodySize int64 = 5 * 1024 * 1024

// defaultUserAgent is sent with every origin request.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// HTTPFetcher retrieves catalog pages from the origin over HTTP and parses
// them with Parser.
type HTTPFetcher struct {
	client      *http.Client
	baseURL     string
	gate        ratelimit.Gate
	userAgent   string
	maxBodySize int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithGate sets the politeness gate awaited before every request.
func WithGate(g ratelimit.Gate) FetcherOption {
	return func(f *HTTPFetcher) {
		if g != nil {
			f.gate = g
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the maximum number of body bytes read per page.
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// NewHTTPFetcher creates a fetcher for the origin at baseURL.
// Without WithGate the fetcher does not wait between requests.
func NewHTTPFetcher(client *http.Client, baseURL string, opts ...FetcherOption) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}

	f := &HTTPFetcher{
		client:      client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		gate:        ratelimit.Unlimited(),
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// URL returns the absolute URL for a page request.
func (f *HTTPFetcher) URL(req PageRequest) string {
	return f.baseURL + req.Path()
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if err := f.gate.Wait(ctx); err != nil {
		return nil, err
	}

	target := f.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", model.ErrTransientNetwork, target, err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // body close error is not actionable
	}()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: %s", err, target)
	}

	parser, err := NewParser(target)
	if err != nil {
		return nil, err
	}
	page, err := parser.Parse(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		// html.Parse only fails when the body cannot be read to the end.
		return nil, fmt.Errorf("%w: %s: %w", model.ErrTransientNetwork, target, err)
	}
	return page, nil
}

// statusError maps a non-2xx status code onto the error taxonomy.
// A nil result means the status is acceptable.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: HTTP %d", model.ErrTransientNetwork, code)
	default:
		return fmt.Errorf("%w: HTTP %d", model.ErrMalformedResponse, code)
	}
}
