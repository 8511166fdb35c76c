// Package client provides the politeness-aware HTTP fetcher used to reach
// upstream catalog providers: per-origin request spacing, bounded retry with
// exponential backoff honoring Retry-After, and fixed identification headers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/manga-catalog/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_requests_total",
		Help: "Total upstream requests by origin and status",
	}, []string{"origin", "status"})

	fetchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_request_duration_seconds",
		Help:    "Upstream request duration in seconds by origin",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"origin"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// MaxBodyBytes bounds how much of an upstream response body is read.
const MaxBodyBytes = 16 << 20

// Client fetches upstream resources politely.
type Client struct {
	httpClient *http.Client
	gate       *ratelimit.Gate
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header identifying this service (REQUIRED)
	// Format: "AppName/Version (+contact)"
	UserAgent string

	// Accept and Accept-Language headers sent with every request
	Accept         string
	AcceptLanguage string

	// Timeout is the hard per-attempt timeout
	Timeout time.Duration

	// PoliteDelay is the minimum spacing between requests to one origin
	PoliteDelay time.Duration

	// Retry
	MaxRetries    int // total attempts, including the first
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetryAfter time.Duration // longest Retry-After honored, 0 = unbounded
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:      userAgent,
		Accept:         "application/json, text/html;q=0.9, */*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Timeout:        30 * time.Second,
		PoliteDelay:    ratelimit.DefaultPoliteDelay,
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       10 * time.Second,
		MaxRetryAfter:  DefaultMaxRetryAfter,
	}
}

// Options describes a single fetch.
type Options struct {
	// Method defaults to GET, or POST when Body is set.
	Method string

	// Body is replayed on every attempt.
	Body []byte

	// ContentType of Body (default "application/json").
	ContentType string

	// Header holds extra request headers; fixed identification headers win.
	Header http.Header
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.MaxRetryAfter < 0 {
		return nil, fmt.Errorf("max_retry_after must not be negative (got %s)", cfg.MaxRetryAfter)
	}

	if cfg.PoliteDelay < 0 {
		return nil, fmt.Errorf("polite_delay must not be negative (got %s)", cfg.PoliteDelay)
	}

	logger := log.With().Str("component", "fetcher").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		gate:   ratelimit.NewGate(cfg.PoliteDelay, logger),
		config: cfg,
		logger: logger,
	}, nil
}

// FetchText performs a request with politeness gating and retry, returning the
// response body of the first 2xx response. Unrecoverable failures return an
// *HTTPError (possibly wrapped with ErrRetryExhausted or ErrContextCancelled).
func (c *Client) FetchText(ctx context.Context, rawURL string, opts Options) (string, error) {
	origin, err := ratelimit.Origin(rawURL)
	if err != nil {
		return "", err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
		if opts.Body != nil {
			method = http.MethodPost
		}
	}

	retryCfg := RetryConfig{
		MaxAttempts:   c.config.MaxRetries,
		BaseDelay:     c.config.BaseDelay,
		MaxDelay:      c.config.MaxDelay,
		MaxRetryAfter: c.config.MaxRetryAfter,
	}

	logger := c.logger.With().Str("origin", origin).Str("url", rawURL).Logger()

	var body string
	err = retryWithBackoff(ctx, retryCfg, logger, func(attempt int) error {
		// Every attempt passes the gate, retries included.
		if _, err := c.gate.Wait(ctx, origin); err != nil {
			return err
		}

		text, err := c.attempt(ctx, method, rawURL, origin, opts)
		if err != nil {
			return err
		}
		body = text
		return nil
	})
	if err != nil {
		return "", err
	}

	return body, nil
}

// attempt issues one request.
func (c *Client) attempt(ctx context.Context, method, rawURL, origin string, opts Options) (string, error) {
	var reader io.Reader
	if opts.Body != nil {
		reader = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if opts.Body != nil {
		contentType := opts.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Accept != "" {
		req.Header.Set("Accept", c.config.Accept)
	}
	if c.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.config.AcceptLanguage)
	}

	startTime := time.Now()
	defer func() {
		fetchRequestDuration.WithLabelValues(origin).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fetchRequestsTotal.WithLabelValues(origin, "network_error").Inc()
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		return "", &HTTPError{URL: rawURL, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(origin, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

		errClass := classifyStatus(resp.StatusCode)
		fetchErrorsTotal.WithLabelValues(string(errClass)).Inc()

		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			Class:      errClass,
		}
		if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			httpErr.RetryAfter = retryAfter
			httpErr.HasRetryAfter = true
		}

		c.logger.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")

		return "", httpErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		// A body cut off mid-stream is a transport failure.
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			Class:      ErrorClassNetwork,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}

	return string(data), nil
}

// FetchJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, opts Options, out any) error {
	body, err := c.FetchText(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// PostJSON sends payload as a JSON body and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.FetchJSON(ctx, rawURL, Options{Method: http.MethodPost, Body: body}, out)
}

// SetOriginDelay overrides the politeness delay for one origin.
func (c *Client) SetOriginDelay(origin string, delay time.Duration) {
	c.gate.SetDelay(origin, delay)
}

// Gate returns the politeness gate (for inspection and testing).
func (c *Client) Gate() *ratelimit.Gate {
	return c.gate
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
