// Package cache provides the in-memory expiring cache shared by the catalog
// aggregator and the bulk title resolver.
//
// The cache implements the following behaviour:
//
// - Lazy expiry: an entry read at or after its expiry is deleted and reported as a miss
// - Background sweep: Start launches a sweeper that removes expired entries
// - Per-entry TTL overrides via SetWithTTL
// - Deterministic cache key generation from operation parameters
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	results := cache.New[provider.Page]("result", 10*time.Minute)
//	results.Start(cache.DefaultSweepInterval)
//	defer results.Stop()
//
//	key := cache.Key{
//		Operation: "search",
//		Provider:  "mangadex",
//		Params:    url.Values{"q": []string{"naruto"}, "limit": []string{"20"}},
//	}.String()
//
//	if page, ok := results.Get(key); ok {
//		return page, nil
//	}
//
// # Metrics
//
//   - catalog_cache_hits_total{cache} - Cache hits
//   - catalog_cache_misses_total{cache} - Cache misses (expired reads included)
//   - catalog_cache_evictions_total{cache,reason} - Expired entries removed (lazy, sweep)
//   - catalog_cache_entries{cache} - Current entry count
//
// The cache is process-local and never persisted; it is empty at start-up.
package cache
