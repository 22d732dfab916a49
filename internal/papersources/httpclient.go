package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

const (
	// maxResponseBytes caps how much of a provider response body is read.
	maxResponseBytes = 10 << 20
	// maxErrorSnippet caps how much of an error body is kept in messages.
	maxErrorSnippet = 512
	// throttledWait is the queueing delay above which a rate-limiter wait is
	// reported to the observer.
	throttledWait = 5 * time.Millisecond
)

// DefaultUserAgent identifies this service to providers.
const DefaultUserAgent = "Helixir-CitationDiscovery/1.0"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source tags errors and observations with the provider name.
	Source domain.SourceType

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g. "x-api-key").
	APIKeyHeader string
}

// Observer receives per-request telemetry from an HTTPClient.
type Observer interface {
	RecordSourceRequest(source string, statusCode int, duration time.Duration)
	RecordSourceRateLimited(source string)
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
	observer    Observer
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client applies rate limiting before each request and automatically
// retries on 429 (Too Many Requests) and 5xx server errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// SetObserver attaches request telemetry. It must be called before the
// client is shared between goroutines.
func (c *HTTPClient) SetObserver(o Observer) {
	c.observer = o
}

// Get issues a GET request and returns the response body. Network failures
// and non-2xx responses are reported as *domain.ExternalAPIError; exhausted
// 429 retries as *domain.RateLimitError. Both match
// domain.ErrProviderUnavailable.
func (c *HTTPClient) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.Do(req)
	if err != nil {
		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			return nil, err
		}
		return nil, domain.NewExternalAPIError(c.source(), 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewExternalAPIError(c.source(), resp.StatusCode, "read body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewExternalAPIError(c.source(), resp.StatusCode, snippet(body), nil)
	}
	return body, nil
}

// Do sends req through the rate limiter, retrying 429 and 5xx responses and
// transport failures up to MaxRetries times. Retry-After, when present,
// replaces the configured delay for the next attempt. A request body is
// resent only if req.GetBody is set.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	ctx := req.Context()
	delays := &retryDelays{base: c.config.RetryDelay}
	policy := backoff.WithContext(backoff.WithMaxRetries(delays, uint64(c.config.MaxRetries)), ctx)

	var resp *http.Response
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		delays.override = 0
		if attempts > 1 {
			if err := c.resetRequestBody(req); err != nil {
				return backoff.Permanent(fmt.Errorf("cannot retry request: %w", err))
			}
		}
		r, after, err := c.attempt(req)
		if err != nil {
			return err
		}
		if after >= 0 {
			delays.override = after
			return &retryableStatus{code: r.StatusCode}
		}
		resp = r
		return nil
	}, policy)
	if err == nil {
		return resp, nil
	}

	var status *retryableStatus
	if errors.As(err, &status) {
		if status.code == http.StatusTooManyRequests {
			return nil, domain.NewRateLimitError(c.source(), delays.override)
		}
		return nil, fmt.Errorf("max retries exhausted after %d attempts, last status: %d", attempts, status.code)
	}
	return nil, err
}

// attempt issues one request. For a retryable status it drains the body and
// returns the delay to wait before the next try; otherwise the delay is -1.
func (c *HTTPClient) attempt(req *http.Request) (*http.Response, time.Duration, error) {
	waited, err := c.rateLimiter.Wait(req.Context())
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
	}
	if waited > throttledWait && c.observer != nil {
		c.observer.RecordSourceRateLimited(c.source())
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(0, time.Since(start))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, backoff.Permanent(err)
		}
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	c.observe(resp.StatusCode, time.Since(start))

	if !shouldRetry(resp.StatusCode) {
		return resp, -1, nil
	}
	delay := c.getRetryDelay(resp)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp, delay, nil
}

type retryableStatus struct{ code int }

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("server returned status %d", e.code)
}

// retryDelays waits base between attempts unless a response asked for
// a specific delay.
type retryDelays struct {
	base     time.Duration
	override time.Duration
}

func (d *retryDelays) NextBackOff() time.Duration {
	if d.override > 0 {
		return d.override
	}
	return d.base
}

func (d *retryDelays) Reset() { d.override = 0 }

func (c *HTTPClient) source() string {
	if c.config.Source == "" {
		return "http"
	}
	return string(c.config.Source)
}

func (c *HTTPClient) observe(status int, d time.Duration) {
	if c.observer != nil {
		c.observer.RecordSourceRequest(c.source(), status, d)
	}
}

func shouldRetry(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// getRetryDelay honours Retry-After (seconds or HTTP date) and otherwise
// falls back to the configured delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("get body: %w", err)
	}
	req.Body = body
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		cut := maxErrorSnippet
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
