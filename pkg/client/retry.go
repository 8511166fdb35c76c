package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed exponential backoff.
	MaxDelay time.Duration

	// MaxRetryAfter is the longest upstream Retry-After honored. A longer
	// request ends the retry loop. Zero disables the ceiling.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      10 * time.Second,
		MaxRetryAfter: DefaultMaxRetryAfter,
	}
}

// Backoff returns the computed delay after the given failed attempt:
// min(BaseDelay * 2^(attempt-1), MaxDelay).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.MaxDelay > 0 && delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// delayFor picks the wait before the next attempt. An upstream Retry-After
// wins over the computed backoff, including Retry-After: 0. It reports false
// when the upstream asks for more than MaxRetryAfter.
func (c RetryConfig) delayFor(attempt int, err error) (time.Duration, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.HasRetryAfter {
		if c.MaxRetryAfter > 0 && httpErr.RetryAfter > c.MaxRetryAfter {
			return httpErr.RetryAfter, false
		}
		return httpErr.RetryAfter, true
	}
	return c.Backoff(attempt), true
}

// maxRetryAfterSeconds is the largest header value representable as a
// time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// parseRetryAfter parses a Retry-After header given in whole seconds.
// HTTP-date, malformed and out-of-range values report false.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds < 0 || seconds > maxRetryAfterSeconds {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// retryWithBackoff executes fn until it succeeds, fails with a non-retryable
// error, or MaxAttempts is reached. fn receives the 1-based attempt number.
// It respects context cancellation: a cancelled context ends the loop at once.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		// An aborted call must not be retried or counted as an upstream failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
		}

		errorClass := classOf(err)
		if !shouldRetry(errorClass) {
			return lastErr
		}

		// If this was the last attempt, don't wait
		if attempt >= maxAttempts {
			break
		}

		delay, ok := config.delayFor(attempt, err)
		if !ok {
			logger.Warn().
				Err(err).
				Str("error_class", string(errorClass)).
				Dur("retry_after", delay).
				Dur("max_retry_after", config.MaxRetryAfter).
				Msg("Upstream Retry-After exceeds ceiling, giving up")
			return fmt.Errorf("%w (%s > %s): %w", ErrRetryAfterTooLong, delay, config.MaxRetryAfter, err)
		}

		fetchRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(delay.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	errorClass := classOf(lastErr)
	fetchRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(errorClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
