// Package propdata is a small JSON client for the property-data providers
// behind the research workers (parcel, tax, valuation, comps, risk and
// neighborhood sources).
package propdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/property-research/internal/resilience"
)

// ErrNotConfigured is returned by clients for providers with no base URL.
var ErrNotConfigured = eris.New("provider not configured")

// ErrNotFound is returned when the provider has no record for the request.
var ErrNotFound = eris.New("provider has no record")

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// Client fetches JSON documents from one provider.
type Client interface {
	// Provider returns the provider name used in logs and errors.
	Provider() string
	// Get issues GET baseURL+path?query and decodes the JSON body into out.
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the provider's API root.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

// WithRetry sets the retry policy. The default is a single attempt.
func WithRetry(p resilience.RetryPolicy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

type httpClient struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	retry    resilience.RetryPolicy
}

// NewClient creates a client for the named provider.
func NewClient(provider string, opts ...Option) Client {
	c := &httpClient{
		provider: provider,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(10, 10),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker(provider, resilience.DefaultBreakerConfig())
	}
	c.retry.Provider = provider
	return c
}

func (c *httpClient) Provider() string { return c.provider }

func (c *httpClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	if c.baseURL == "" {
		return eris.Wrapf(ErrNotConfigured, "propdata: %s", c.provider)
	}

	body, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.CallVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.fetch(ctx, path, query)
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "propdata: %s: unmarshal response", c.provider)
	}
	return nil
}

func (c *httpClient) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "propdata: %s: rate limit wait", c.provider)
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "propdata: %s: create request", c.provider)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "propdata: %s: send request", c.provider)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "propdata: %s: read response", c.provider)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(ErrNotFound, "propdata: %s %s", c.provider, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &resilience.StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}
