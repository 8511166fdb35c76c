// Package metrics provides the Prometheus registry and scrape handler for the
// catalog service. All metrics are defined in their respective packages
// (cache, ratelimit, client, catalog, resolver) via promauto to keep packages
// modular and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the catalog service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{cache} (Counter): Cache hits per cache instance
//   - catalog_cache_misses_total{cache} (Counter): Cache misses, expired reads included
//   - catalog_cache_evictions_total{cache, reason} (Counter): Expired entries removed (lazy, sweep)
//   - catalog_cache_entries{cache} (Gauge): Current entry count
//
// Politeness Metrics (pkg/ratelimit):
//   - catalog_polite_wait_seconds{origin} (Histogram): Time spent waiting for an origin slot
//   - catalog_polite_throttled_total{origin} (Counter): Requests that had to wait
//
// Request Metrics (pkg/client):
//   - catalog_fetch_requests_total{origin, status} (Counter): Upstream requests by origin and status
//   - catalog_fetch_request_duration_seconds{origin} (Histogram): Upstream request duration
//   - catalog_fetch_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - catalog_fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_fetch_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//
// Aggregator Metrics (pkg/catalog):
//   - catalog_operations_total{operation, provider, source} (Counter): Operations by source (cache, upstream, shared)
//   - catalog_provider_failures_total{provider} (Counter): Provider failures swallowed by fan-out search
//
// Resolver Metrics (pkg/resolver):
//   - catalog_resolver_items_total{outcome} (Counter): Resolved items by outcome (url, title, null)
//   - catalog_resolver_lookups_total{source} (Counter): Candidate lookups by source (cache, upstream, error)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(catalog_fetch_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(catalog_fetch_request_duration_seconds_bucket[5m]))
//
//   # Politeness pressure per origin
//   rate(catalog_polite_throttled_total[5m])
