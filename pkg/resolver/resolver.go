// Package resolver resolves batches of free-text titles to canonical
// provider IDs. Each item is resolved from its source URL when the URL
// carries a provider ID, otherwise by single-result searches over the title
// and its alternates. Outcomes, negatives included, are kept in a long-TTL
// title cache so repeated imports do not re-query upstream.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/manga-catalog/pkg/batch"
	"github.com/Sternrassler/manga-catalog/pkg/cache"
	"github.com/Sternrassler/manga-catalog/pkg/catalog"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for title resolution.
var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_resolver_items_total",
		Help: "Total resolved items by outcome",
	}, []string{"outcome"})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_resolver_lookups_total",
		Help: "Total candidate lookups by source",
	}, []string{"source"})
)

const (
	// MaxCandidates caps the titles tried per item, primary included.
	MaxCandidates = 6

	// MinTitleLength is the shortest title worth querying, in characters.
	MinTitleLength = 2

	// DefaultTTL applies to title cache entries.
	DefaultTTL = 24 * time.Hour
)

// ErrBatchTooLarge is returned when a batch exceeds MaxBatch.
var ErrBatchTooLarge = errors.New("batch too large")

// Searcher runs a single-provider search and surfaces its errors.
type Searcher interface {
	SearchProvider(ctx context.Context, id provider.ID, text string, limit int, filters catalog.ContentFilters, useCache bool) (provider.Page, error)
}

// Item is one title to resolve.
type Item struct {
	Title     string   `json:"title"`
	URL       string   `json:"url,omitempty"`
	AltTitles []string `json:"altTitles,omitempty"`
}

// Result is the resolution of the item at Index. ResolvedID is nil when the
// title could not be resolved.
type Result struct {
	Index      int     `json:"index"`
	Title      string  `json:"title"`
	ResolvedID *string `json:"resolvedId"`
}

// Resolution is a title cache entry. Found=false is a cached negative.
type Resolution struct {
	ID        string
	Found     bool
	Timestamp time.Time
}

// Config holds resolver configuration.
type Config struct {
	// Provider resolves titles.
	Provider provider.ID

	// Workers bounds concurrent item resolution.
	Workers int

	// MaxBatch bounds the items per call.
	MaxBatch int

	// TTL of title cache entries.
	TTL time.Duration

	// SweepInterval of the title cache.
	SweepInterval time.Duration

	// Now replaces the clock (for testing).
	Now func() time.Time
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		Provider:      provider.Scraper,
		Workers:       4,
		MaxBatch:      50,
		TTL:           DefaultTTL,
		SweepInterval: cache.DefaultSweepInterval,
	}
}

// Resolver resolves titles to provider IDs.
type Resolver struct {
	searcher   Searcher
	descriptor provider.Descriptor
	titles     *cache.Cache[Resolution]
	config     Config
	logger     zerolog.Logger
}

// New creates a resolver for the configured provider, which must be enabled
// in the registry.
func New(searcher Searcher, registry *provider.Registry, cfg Config) (*Resolver, error) {
	if searcher == nil || registry == nil {
		return nil, errors.New("resolver: searcher and registry are required")
	}
	desc, err := registry.Lookup(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if !desc.Supports(provider.CapSearch) {
		return nil, fmt.Errorf("resolver: %w: %s cannot search", provider.ErrUnsupported, cfg.Provider)
	}

	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaults.MaxBatch
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Resolver{
		searcher:   searcher,
		descriptor: desc,
		titles:     cache.New[Resolution]("title", cfg.TTL, cache.WithClock(cfg.Now)),
		config:     cfg,
		logger:     logging.NewLogger("resolver"),
	}, nil
}

// Start launches the title cache sweeper.
func (r *Resolver) Start() {
	r.titles.Start(r.config.SweepInterval)
}

// Close stops the title cache sweeper.
func (r *Resolver) Close() error {
	r.titles.Stop()
	return nil
}

// CacheSize returns the number of title cache entries.
func (r *Resolver) CacheSize() int {
	return r.titles.Size()
}

// ResolveBulk resolves every item. Results follow input order. Unresolvable
// items carry a nil ResolvedID; only an oversized batch or a cancelled
// context fails the call.
func (r *Resolver) ResolveBulk(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) > r.config.MaxBatch {
		return nil, fmt.Errorf("%w: %d items (max %d)", ErrBatchTooLarge, len(items), r.config.MaxBatch)
	}

	outcomes := batch.Run(ctx, batch.Config{MaxConcurrency: r.config.Workers}, items,
		func(ctx context.Context, _ int, item Item) (*string, error) {
			return r.resolve(ctx, item), nil
		})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrContextCancelled, err)
	}

	results := make([]Result, len(items))
	for i, o := range outcomes {
		results[i] = Result{
			Index:      o.Index,
			Title:      items[i].Title,
			ResolvedID: o.Value,
		}
	}
	return results, nil
}

// resolve returns the provider ID of one item, or nil.
func (r *Resolver) resolve(ctx context.Context, item Item) *string {
	if id, ok := r.descriptor.ExtractID(strings.TrimSpace(item.URL)); ok {
		itemsTotal.WithLabelValues("url").Inc()
		return &id
	}

	title := strings.TrimSpace(item.Title)
	if utf8.RuneCountInString(title) < MinTitleLength {
		itemsTotal.WithLabelValues("null").Inc()
		return nil
	}

	logger := logging.Ctx(ctx).With().
		Str(logging.FieldComponent, "resolver").
		Str("title", title).
		Logger()

	for _, candidate := range candidates(title, item.AltTitles) {
		id, found, err := r.lookup(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn().Err(err).Str("candidate", candidate).Msg("Candidate lookup failed, trying next")
			continue
		}
		if found {
			itemsTotal.WithLabelValues("title").Inc()
			return &id
		}
	}

	itemsTotal.WithLabelValues("null").Inc()
	return nil
}

// lookup resolves one candidate through the title cache. Upstream errors
// are returned and never cached.
func (r *Resolver) lookup(ctx context.Context, candidate string) (string, bool, error) {
	key := normalize(candidate)

	if res, ok := r.titles.Get(key); ok {
		lookupsTotal.WithLabelValues("cache").Inc()
		r.logger.Debug().Str("candidate", candidate).Bool("found", res.Found).Msg("Title cache hit")
		return res.ID, res.Found, nil
	}

	page, err := r.searcher.SearchProvider(ctx, r.descriptor.ID, candidate, 1, catalog.AllowAll(), true)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		return "", false, err
	}
	lookupsTotal.WithLabelValues("upstream").Inc()

	res := Resolution{Timestamp: r.config.Now()}
	if len(page.Items) > 0 {
		res.ID = page.Items[0].ID
		res.Found = true
	}
	r.titles.Set(key, res)
	return res.ID, res.Found, nil
}

// candidates returns the title followed by its alternates, trimmed,
// deduplicated case-insensitively and capped at MaxCandidates.
func candidates(title string, alts []string) []string {
	out := make([]string, 0, MaxCandidates)
	seen := make(map[string]bool, MaxCandidates)

	for _, c := range append([]string{title}, alts...) {
		if len(out) == MaxCandidates {
			break
		}
		c = strings.TrimSpace(c)
		key := normalize(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// normalize builds the title cache key.
func normalize(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
