package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for politeness gating.
var (
	politeWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_polite_wait_seconds",
		Help:    "Time spent waiting for the per-origin politeness slot",
		Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"origin"})

	politeThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_polite_throttled_total",
		Help: "Total number of requests delayed by the politeness gate",
	}, []string{"origin"})
)

// Gate enforces a minimum spacing between requests to the same origin.
// Reserving a slot is atomic per origin: concurrent callers serialize behind
// each other instead of all observing an idle origin.
type Gate struct {
	mu           sync.Mutex
	defaultDelay time.Duration
	origins      map[string]*originGate
	now          func() time.Time
	logger       zerolog.Logger
}

// NewGate creates a gate applying defaultDelay to every origin without an
// explicit override. A negative delay is treated as zero (no throttling).
func NewGate(defaultDelay time.Duration, logger zerolog.Logger) *Gate {
	if defaultDelay < 0 {
		defaultDelay = 0
	}
	return &Gate{
		defaultDelay: defaultDelay,
		origins:      make(map[string]*originGate),
		now:          time.Now,
		logger:       logger,
	}
}

// Origin extracts the gate origin (lower-cased hostname) from a URL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return strings.ToLower(host), nil
}

// SetDelay overrides the minimum spacing for one origin.
func (g *Gate) SetDelay(origin string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	origin = strings.ToLower(origin)

	g.mu.Lock()
	defer g.mu.Unlock()

	og, ok := g.origins[origin]
	if !ok {
		g.origins[origin] = newOriginGate(delay)
		return
	}
	og.delay = delay
	og.limiter.SetLimit(limitFor(delay))
}

// Delay returns the minimum spacing applied to origin.
func (g *Gate) Delay(origin string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if og, ok := g.origins[strings.ToLower(origin)]; ok {
		return og.delay
	}
	return g.defaultDelay
}

// Wait blocks until the next request slot for origin is available, then
// stamps the origin's last request instant. It returns the time spent
// waiting. A cancelled context releases the reserved slot and returns the
// context error without stamping.
func (g *Gate) Wait(ctx context.Context, origin string) (time.Duration, error) {
	origin = strings.ToLower(origin)

	g.mu.Lock()
	og, ok := g.origins[origin]
	if !ok {
		og = newOriginGate(g.defaultDelay)
		g.origins[origin] = og
	}
	limiter := og.limiter
	g.mu.Unlock()

	start := g.now()
	if err := limiter.Wait(ctx); err != nil {
		g.logger.Debug().
			Err(err).
			Str("origin", origin).
			Msg("Politeness wait aborted")
		return g.now().Sub(start), fmt.Errorf("politeness wait for %s: %w", origin, err)
	}

	issued := g.now()
	waited := issued.Sub(start)

	g.mu.Lock()
	if issued.After(og.lastRequest) {
		og.lastRequest = issued
	}
	og.requests++
	g.mu.Unlock()

	politeWaitSeconds.WithLabelValues(origin).Observe(waited.Seconds())
	if waited > time.Millisecond {
		politeThrottledTotal.WithLabelValues(origin).Inc()
		g.logger.Debug().
			Str("origin", origin).
			Dur("waited", waited).
			Msg("Request throttled by politeness gate")
	}

	return waited, nil
}

// State returns a snapshot of the gate state for origin.
func (g *Gate) State(origin string) (OriginState, bool) {
	origin = strings.ToLower(origin)

	g.mu.Lock()
	defer g.mu.Unlock()

	og, ok := g.origins[origin]
	if !ok {
		return OriginState{}, false
	}
	return OriginState{
		Origin:      origin,
		Delay:       og.delay,
		LastRequest: og.lastRequest,
		Requests:    og.requests,
	}, true
}
