package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/observability"
	"crypto-index-lab/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout         = 15 * time.Second
	DefaultRequestsPerSec  = 0.5
	DefaultBurst           = 1
	DefaultBreakerFailures = 5
	DefaultBreakerCoolDown = 30 * time.Second
	maxErrorBodyBytes      = 512
)

// restClient performs rate-limited, circuit-broken GET requests with bounded retries.
type restClient struct {
	name      string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	policy    retry.Policy
	apiHeader string
	apiKey    string
}

// Option configures a provider client.
type Option func(*restClient)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *restClient) {
		c.client = client
	}
}

// WithRateLimit sets the request ceiling. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *restClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy sets the per-request retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *restClient) {
		c.policy = p
	}
}

// WithAPIKey sends key in the given header on every request.
func WithAPIKey(header, key string) Option {
	return func(c *restClient) {
		c.apiHeader = header
		c.apiKey = key
	}
}

func newRESTClient(name, baseURL string, opts ...Option) *restClient {
	c := &restClient{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSec), DefaultBurst),
		policy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: DefaultBreakerCoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= DefaultBreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about provider health
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests)
		},
	})
	return c
}

// statusError is a non-200 provider response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// getJSON fetches path with query params and decodes the JSON body into out.
// label names the endpoint in metrics. Every returned error wraps domain.ErrDataFetch.
func (c *restClient) getJSON(ctx context.Context, label, path string, params url.Values, out interface{}) error {
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.do(ctx, path, params, out)
		})
		observability.RecordProviderRequest(c.name, label, time.Since(start).Seconds(), err)

		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrDataFetch, c.name, label, err)
	}
	return nil
}

func (c *restClient) do(ctx context.Context, path string, params url.Values, out interface{}) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
