package lookup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/ratelimit"
)

// Defaults for the scraping gateway and the citation index search.
const (
	// DefaultGatewayURL is the scraping gateway endpoint.
	DefaultGatewayURL = "http://api.scraperapi.com"

	// DefaultSearchURLTemplate is the citation index search URL.
	// QueryPlaceholder is replaced by the query-escaped citation.
	DefaultSearchURLTemplate = "https://scholar.google.com/scholar?hl=en&as_sdt=0%2C5&q=" + QueryPlaceholder + "&btnG="

	// QueryPlaceholder marks where the citation goes in a search URL template.
	QueryPlaceholder = "{query}"

	// DefaultSkipMarker identifies locally published works the index never holds.
	DefaultSkipMarker = "종합대학학보"

	defaultMaxBodySize int64 = 10 * 1024 * 1024
)

// Client performs citation lookups.
type Client struct {
	httpClient     *http.Client
	gatewayURL     string
	searchTemplate string
	skipMarkers    []string
	limits         *ratelimit.PerKey
	maxBodySize    int64
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithGatewayURL sets the scraping gateway endpoint.
func WithGatewayURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.gatewayURL = u
		}
	}
}

// WithSearchURLTemplate sets the search URL template. The template must
// contain QueryPlaceholder.
func WithSearchURLTemplate(tmpl string) Option {
	return func(c *Client) {
		if tmpl != "" {
			c.searchTemplate = tmpl
		}
	}
}

// WithSkipMarkers sets the citation substrings that short-circuit a lookup.
// Passing no markers disables skipping.
func WithSkipMarkers(markers ...string) Option {
	return func(c *Client) {
		c.skipMarkers = append([]string{}, markers...)
	}
}

// WithRateLimit sets the factory for per-credential gates.
func WithRateLimit(factory func() ratelimit.Gate) Option {
	return func(c *Client) {
		if factory != nil {
			c.limits = ratelimit.NewPerKey(factory)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a lookup client. Without WithRateLimit requests are
// not throttled.
func NewClient(httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient:     httpClient,
		gatewayURL:     DefaultGatewayURL,
		searchTemplate: DefaultSearchURLTemplate,
		skipMarkers:    []string{DefaultSkipMarker},
		limits:         ratelimit.NewPerKey(ratelimit.Unlimited),
		maxBodySize:    defaultMaxBodySize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if u, err := url.Parse(c.gatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway URL %q", model.ErrConfiguration, c.gatewayURL)
	}
	if !strings.Contains(c.searchTemplate, QueryPlaceholder) {
		return nil, fmt.Errorf("%w: search URL template has no %s placeholder", model.ErrConfiguration, QueryPlaceholder)
	}
	return c, nil
}

// SearchURL returns the index search URL for a citation.
func (c *Client) SearchURL(citation string) string {
	return strings.ReplaceAll(c.searchTemplate, QueryPlaceholder, url.QueryEscape(citation))
}

// RequestURL returns the gateway URL that looks up citation with credential.
func (c *Client) RequestURL(credential, citation string) (string, error) {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("api_key", credential)
	q.Set("url", c.SearchURL(citation))
	q.Set("render", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Skipped reports whether citation contains a skip marker.
func (c *Client) Skipped(citation string) bool {
	for _, m := range c.skipMarkers {
		if m != "" && strings.Contains(citation, m) {
			return true
		}
	}
	return false
}

// Lookup performs one lookup of key with credential and returns the raw
// response body.
//
// Citations containing a skip marker return an empty payload without a
// request. Failures wrap model.ErrTransientNetwork or
// model.ErrMalformedResponse.
func (c *Client) Lookup(ctx context.Context, credential string, key model.LookupKey) (string, error) {
	if c.Skipped(key.Citation) {
		c.logger.Debug("citation skipped", "hash", key.ListingHash)
		return "", nil
	}
	if credential == "" {
		return "", fmt.Errorf("%w: %w", model.ErrConfiguration, ErrMissingCredential)
	}

	if err := c.limits.Wait(ctx, credential); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %w", model.ErrTransientNetwork, err)
	}

	target, err := c.RequestURL(credential, key.Citation)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrTransientNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // body close error is not actionable
	}()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return "", fmt.Errorf("%w: HTTP %d", model.ErrTransientNetwork, code)
	default:
		return "", fmt.Errorf("%w: HTTP %d", model.ErrMalformedResponse, code)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %w", model.ErrTransientNetwork, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("%w: empty body", model.ErrMalformedResponse)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", model.ErrMalformedResponse)
	}
	return string(body), nil
}
