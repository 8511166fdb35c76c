// Package ratelimit implements per-origin politeness gating for outbound
// requests. Every origin gets a minimum spacing between request issuances so
// slow, rate-limited upstreams are never hit in bursts.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultPoliteDelay is the minimum spacing between two requests to the same
// origin when no override is configured.
const DefaultPoliteDelay = 1 * time.Second

// OriginState is a snapshot of the gate state for one origin.
type OriginState struct {
	// Origin is the hostname the state belongs to.
	Origin string `json:"origin"`

	// Delay is the minimum spacing between request issuances.
	Delay time.Duration `json:"delay"`

	// LastRequest is when the most recent request to the origin was issued.
	// It never moves backwards.
	LastRequest time.Time `json:"last_request"`

	// Requests is the number of requests that passed the gate.
	Requests int64 `json:"requests"`
}

// NextAllowed returns the earliest instant the next request may be issued.
func (s *OriginState) NextAllowed() time.Time {
	if s.LastRequest.IsZero() {
		return time.Time{}
	}
	return s.LastRequest.Add(s.Delay)
}

// RemainingWait returns how long a request issued at now would have to wait.
// Returns 0 if the origin is idle.
func (s *OriginState) RemainingWait(now time.Time) time.Duration {
	next := s.NextAllowed()
	if next.IsZero() {
		return 0
	}
	wait := next.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// originGate is the mutable per-origin state held by the Gate.
type originGate struct {
	limiter     *rate.Limiter
	delay       time.Duration
	lastRequest time.Time
	requests    int64
}

// limitFor converts a minimum spacing into a limiter rate. A non-positive
// delay disables throttling.
func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func newOriginGate(delay time.Duration) *originGate {
	// Burst 1: at most one request per delay window, the first one immediately.
	return &originGate{
		limiter: rate.NewLimiter(limitFor(delay), 1),
		delay:   delay,
	}
}
