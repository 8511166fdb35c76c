// Package catalog implements the provider aggregator: every catalog operation
// builds a cache key from its full parameter set, consults the entity or
// result cache and on a miss calls the upstream provider through the
// politeness-aware fetcher before populating the cache.
//
// Concurrent misses for the same key share one upstream call. Aborted or
// failed calls never populate a cache. Values returned from the caches are
// shared and must not be modified by callers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/manga-catalog/pkg/cache"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/Sternrassler/manga-catalog/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for aggregator operations.
var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_operations_total",
		Help: "Total aggregator operations by operation, provider and result source",
	}, []string{"operation", "provider", "source"})

	providerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_provider_failures_total",
		Help: "Total provider failures swallowed by fan-out search",
	}, []string{"provider"})
)

// Result sources.
const (
	sourceCache    = "cache"
	sourceUpstream = "upstream"
	sourceShared   = "shared"
)

// Config holds aggregator configuration.
type Config struct {
	// EntityTTL applies to single-title lookups.
	EntityTTL time.Duration

	// ResultTTL applies to list-shaped results.
	ResultTTL time.Duration

	// SweepInterval is the background sweep interval used by Start.
	SweepInterval time.Duration

	// AlwaysExcludedGenres are hidden from trending on top of the content
	// filters. Nil selects DefaultAlwaysExcludedGenres; an empty slice hides
	// nothing extra.
	AlwaysExcludedGenres []string

	// Now replaces the clock (for testing).
	Now func() time.Time
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		EntityTTL:     30 * time.Minute,
		ResultTTL:     10 * time.Minute,
		SweepInterval: cache.DefaultSweepInterval,
	}
}

// originDelayer is implemented by fetchers with per-origin politeness.
type originDelayer interface {
	SetOriginDelay(origin string, delay time.Duration)
}

// Service aggregates the enabled providers behind two caches.
type Service struct {
	registry *provider.Registry
	apis     map[provider.ID]*provider.API

	entities *cache.Cache[provider.Manga]
	results  *cache.Cache[provider.Page]
	group    singleflight.Group

	sweepInterval  time.Duration
	alwaysExcluded []string
	now            func() time.Time
	logger         zerolog.Logger
}

// New creates the aggregator. Provider politeness delays are applied to the
// fetcher when it supports per-origin delays.
func New(registry *provider.Registry, fetcher provider.Fetcher, cfg Config) (*Service, error) {
	if registry == nil || fetcher == nil {
		return nil, errors.New("catalog: registry and fetcher are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cache.DefaultSweepInterval
	}
	if cfg.AlwaysExcludedGenres == nil {
		cfg.AlwaysExcludedGenres = DefaultAlwaysExcludedGenres
	}

	logger := logging.NewLogger("catalog")

	s := &Service{
		registry:       registry,
		apis:           make(map[provider.ID]*provider.API),
		entities:       cache.New[provider.Manga]("entity", cfg.EntityTTL, cache.WithClock(cfg.Now)),
		results:        cache.New[provider.Page]("result", cfg.ResultTTL, cache.WithClock(cfg.Now)),
		sweepInterval:  cfg.SweepInterval,
		alwaysExcluded: cfg.AlwaysExcludedGenres,
		now:            cfg.Now,
		logger:         logger,
	}

	delayer, hasDelays := fetcher.(originDelayer)
	for _, id := range registry.Enabled() {
		desc, _ := registry.Descriptor(id)
		s.apis[id] = provider.NewAPI(fetcher, desc)

		if hasDelays && desc.PoliteDelay > 0 {
			origin, err := ratelimit.Origin(desc.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", id, err)
			}
			delayer.SetOriginDelay(origin, desc.PoliteDelay)
		}
	}

	logger.Info().
		Int("providers", len(s.apis)).
		Dur("entity_ttl", s.entities.TTL()).
		Dur("result_ttl", s.results.TTL()).
		Msg("Catalog aggregator initialized")

	return s, nil
}

// Start launches the background sweepers of both caches.
func (s *Service) Start() {
	s.entities.Start(s.sweepInterval)
	s.results.Start(s.sweepInterval)
}

// Close stops the background sweepers.
func (s *Service) Close() error {
	s.entities.Stop()
	s.results.Stop()
	return nil
}

// ClearCache drops every cached entity and result.
func (s *Service) ClearCache() {
	s.entities.Clear()
	s.results.Clear()
}

// CacheSizes returns the entry counts of the entity and result caches.
func (s *Service) CacheSizes() (entities, results int) {
	return s.entities.Size(), s.results.Size()
}

// api returns the upstream client of an enabled provider supporting c.
func (s *Service) api(id provider.ID, c provider.Capability) (*provider.API, error) {
	desc, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !desc.Supports(c) {
		return nil, fmt.Errorf("%w: %s does not offer %s", ErrUnsupported, id, c)
	}
	api, ok := s.apis[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderUnavailable, id)
	}
	return api, nil
}

// cached serves key from c, or loads it through fetch. With useCache false
// the cache is neither read nor deduplicated, but a fresh result still
// replaces the cached one.
func cached[T any](ctx context.Context, s *Service, c *cache.Cache[T], op string, id provider.ID, key string, useCache bool, fetch func(context.Context) (T, error)) (T, error) {
	logger := logging.Ctx(ctx).With().
		Str(logging.FieldComponent, "catalog").
		Str("operation", op).
		Str(logging.FieldProvider, string(id)).
		Logger()

	load := func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		if ctx.Err() == nil {
			c.Set(key, v)
		}
		return v, nil
	}

	if !useCache {
		operationsTotal.WithLabelValues(op, string(id), sourceUpstream).Inc()
		return load(ctx)
	}

	if v, ok := c.Get(key); ok {
		operationsTotal.WithLabelValues(op, string(id), sourceCache).Inc()
		logger.Debug().Str("key", key).Msg("Cache hit")
		return v, nil
	}
	logger.Debug().Str("key", key).Msg("Cache miss")

	ch := s.group.DoChan(key, func() (any, error) {
		return load(ctx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", client.ErrContextCancelled, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			// The call was owned by another caller that gave up; load alone.
			if res.Shared && aborted(res.Err) && ctx.Err() == nil {
				operationsTotal.WithLabelValues(op, string(id), sourceUpstream).Inc()
				return load(ctx)
			}
			return zero, res.Err
		}
		source := sourceUpstream
		if res.Shared {
			source = sourceShared
		}
		operationsTotal.WithLabelValues(op, string(id), source).Inc()
		return res.Val.(T), nil
	}
}

func aborted(err error) bool {
	return errors.Is(err, client.ErrContextCancelled) || errors.Is(err, context.Canceled)
}

// notFound maps an upstream 404 to ErrNotFound.
func notFound(err error) error {
	if client.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
