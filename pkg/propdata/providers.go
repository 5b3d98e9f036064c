package propdata

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/resilience"
)

// ProviderConfig describes how to reach one provider.
type ProviderConfig struct {
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	TimeoutSecs  int     `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	MaxAttempts  int     `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Providers maps provider names to clients.
type Providers map[string]Client

// NewProviders builds one client per configured provider, all sharing the
// given breaker set.
func NewProviders(cfgs map[string]ProviderConfig, breakers *resilience.Breakers) Providers {
	p := make(Providers, len(cfgs))
	for name, cfg := range cfgs {
		opts := []Option{
			WithBaseURL(cfg.BaseURL),
			WithAPIKey(cfg.APIKey),
			WithBreaker(breakers.For(name)),
			WithRetry(resilience.RetryPolicy{Attempts: cfg.MaxAttempts}),
		}
		if cfg.RateLimitRPS != 0 {
			opts = append(opts, WithRateLimit(cfg.RateLimitRPS))
		}
		if cfg.TimeoutSecs > 0 {
			opts = append(opts, WithHTTPClient(newHTTPClient(time.Duration(cfg.TimeoutSecs)*time.Second)))
		}
		p[name] = NewClient(name, opts...)
	}
	return p
}

// Client returns the client for name, or one that always fails with
// ErrNotConfigured.
func (p Providers) Client(name string) Client {
	if c, ok := p[name]; ok {
		return c
	}
	return unconfigured(name)
}

// Names returns the configured provider names in sorted order.
func (p Providers) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type unconfigured string

func (u unconfigured) Provider() string { return string(u) }

func (u unconfigured) Get(context.Context, string, url.Values, any) error {
	return eris.Wrapf(ErrNotConfigured, "propdata: %s", string(u))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
