package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/harvest/internal/model"
	"github.com/nao1215/harvest/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithGatewayURL(server.URL)}, opts...)
	c, err := NewClient(server.Client(), opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestClientLookup(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		query url.Values
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.Query()
		mu.Unlock()
		_, _ = w.Write([]byte(`<div id="gs_res_ccl_mid">result</div>`)) //nolint:errcheck
	})

	key := model.LookupKey{ListingHash: "abc", Citation: "Kim, On Lattices & Things"}
	payload, err := c.Lookup(context.Background(), "secret-key", key)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !strings.Contains(payload, "result") {
		t.Errorf("payload = %q", payload)
	}

	mu.Lock()
	defer mu.Unlock()
	if query.Get("api_key") != "secret-key" || query.Get("render") != "false" {
		t.Errorf("gateway query = %v", query)
	}
	search, err := url.Parse(query.Get("url"))
	if err != nil {
		t.Fatalf("search URL does not parse: %v", err)
	}
	if got := search.Query().Get("q"); got != key.Citation {
		t.Errorf("search q = %q, want %q", got, key.Citation)
	}
}

func TestClientLookupErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error is transient", status: http.StatusBadGateway, wantErr: model.ErrTransientNetwork},
		{name: "throttled is transient", status: http.StatusTooManyRequests, wantErr: model.ErrTransientNetwork},
		{name: "unauthorized is malformed", status: http.StatusUnauthorized, wantErr: model.ErrMalformedResponse},
		{name: "empty body is malformed", status: http.StatusOK, body: "  \n", wantErr: model.ErrMalformedResponse},
		{name: "invalid utf-8 is malformed", status: http.StatusOK, body: "\xff\xfe\xfd", wantErr: model.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body)) //nolint:errcheck
			})
			_, err := c.Lookup(context.Background(), "k", model.LookupKey{ListingHash: "h", Citation: "c"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientLookupConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	gateway := server.URL
	server.Close()

	c, err := NewClient(nil, WithGatewayURL(gateway))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = c.Lookup(context.Background(), "k", model.LookupKey{Citation: "c"})
	if !errors.Is(err, model.ErrTransientNetwork) {
		t.Errorf("Lookup() error = %v, want ErrTransientNetwork", err)
	}
	if !model.IsRetryable(err) {
		t.Error("connection refused should be retryable")
	}
}

func TestClientSkipMarker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok")) //nolint:errcheck
	})

	payload, err := c.Lookup(context.Background(), "", model.LookupKey{Citation: "Kim Il Sung University Journal (김일성종합대학학보), 2019"})
	if err != nil || payload != "" {
		t.Errorf("Lookup() = %q, %v, want empty payload", payload, err)
	}
	if hits.Load() != 0 {
		t.Errorf("skip marker made %d requests", hits.Load())
	}
}

func TestClientMissingCredential(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok")) //nolint:errcheck
	})
	_, err := c.Lookup(context.Background(), "", model.LookupKey{Citation: "c"})
	if !errors.Is(err, ErrMissingCredential) || !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("Lookup() error = %v", err)
	}
}

type countingGate struct {
	n *atomic.Int32
}

func (g countingGate) Wait(ctx context.Context) error {
	g.n.Add(1)
	return ctx.Err()
}

func TestClientPerCredentialGate(t *testing.T) {
	t.Parallel()

	var created, waits atomic.Int32
	factory := func() ratelimit.Gate {
		created.Add(1)
		return countingGate{n: &waits}
	}
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok")) //nolint:errcheck
	}, WithRateLimit(factory))

	for _, cred := range []string{"a", "b", "a"} {
		if _, err := c.Lookup(context.Background(), cred, model.LookupKey{Citation: "c"}); err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
	}
	if created.Load() != 2 {
		t.Errorf("gates created = %d, want 2", created.Load())
	}
	if waits.Load() != 3 {
		t.Errorf("gate waits = %d, want 3", waits.Load())
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(nil, WithGatewayURL("not a url")); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("bad gateway error = %v", err)
	}
	if _, err := NewClient(nil, WithSearchURLTemplate("https://example.test/search")); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("template without placeholder error = %v", err)
	}
}
