package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL is used when a cache is constructed with a non-positive TTL
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is the interval of the background sweeper
	DefaultSweepInterval = 5 * time.Minute
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger zerolog.Logger
}

// WithClock replaces the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Cache is an in-memory expiring key-value store. Entries are removed lazily
// when read after expiry and eagerly by the sweeper started with Start.
// Contents are best-effort; every value must be re-derivable upstream.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry[V]

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}

	logger zerolog.Logger
}

// New creates an empty cache. The name labels metrics and logs.
func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{
		now:    time.Now,
		logger: log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]*Entry[V]),
		logger:  o.logger.With().Str("cache", name).Logger(),
	}
}

// Name returns the cache name.
func (c *Cache[V]) Name() string {
	return c.name
}

// TTL returns the default time-to-live of new entries.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key. An expired entry is deleted and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}

	if entry.IsExpired(now) {
		c.mu.Lock()
		// Only drop the entry we observed; a concurrent Set may have replaced it.
		if current, ok := c.entries[key]; ok && current == entry {
			delete(c.entries, key)
			CacheEvictions.WithLabelValues(c.name, "lazy").Inc()
			CacheEntries.WithLabelValues(c.name).Set(float64(len(c.entries)))
		}
		c.mu.Unlock()

		CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}

	CacheHits.WithLabelValues(c.name).Inc()
	return entry.Value, true
}

// Set stores value under key with the cache's default TTL, overwriting any
// existing entry.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL. A non-positive TTL
// falls back to the cache default.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()

	c.mu.Lock()
	c.entries[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
	}
	size := len(c.entries)
	c.mu.Unlock()

	CacheEntries.WithLabelValues(c.name).Set(float64(size))
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	CacheEntries.WithLabelValues(c.name).Set(float64(size))
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()

	CacheEntries.WithLabelValues(c.name).Set(0)
}

// Size returns the number of stored entries, including expired entries that
// have not been swept yet.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		CacheEvictions.WithLabelValues(c.name, "sweep").Add(float64(removed))
	}
	CacheEntries.WithLabelValues(c.name).Set(float64(size))

	return removed
}

// Start launches the background sweeper. Calling Start on a running cache is
// a no-op. A non-positive interval uses DefaultSweepInterval.
func (c *Cache[V]) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.sweepLoop(interval, c.stop, c.done)

	c.logger.Debug().Dur("interval", interval).Msg("Cache sweeper started")
}

// Stop halts the background sweeper and waits for it to exit. It is safe to
// call Stop more than once.
func (c *Cache[V]) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil

	c.logger.Debug().Msg("Cache sweeper stopped")
}

func (c *Cache[V]) sweepLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("Swept expired entries")
			}
		}
	}
}
