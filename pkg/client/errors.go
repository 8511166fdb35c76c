package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a fetch.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRetryAfterTooLong is returned when the upstream asks to wait longer
	// than the configured Retry-After ceiling.
	ErrRetryAfterTooLong = errors.New("retry-after exceeds ceiling")
)

// DefaultMaxRetryAfter is the default ceiling on an honored Retry-After.
const DefaultMaxRetryAfter = 2 * time.Minute

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network, DNS and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// HTTPError is returned when a fetch fails with an upstream status or a
// transport error.
type HTTPError struct {
	// StatusCode is the upstream status, 0 for transport errors.
	StatusCode int

	// URL is the requested URL.
	URL string

	// Class is the failure classification used by the retry policy.
	Class ErrorClass

	// RetryAfter is the delay requested by the upstream Retry-After header.
	RetryAfter time.Duration

	// HasRetryAfter is set when a valid Retry-After header was present.
	HasRetryAfter bool

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Class, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error (status %d %s)",
		e.URL, e.Class, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		// 4xx and unfollowed 3xx are not transient
		return ErrorClassClient
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// bad request, not found, forbidden: retrying cannot help
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classOf extracts the classification of a fetch error. Errors that did not
// come from an upstream attempt (e.g. an aborted politeness wait) have no
// class and are never retried.
func classOf(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Class
	}
	return ""
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
