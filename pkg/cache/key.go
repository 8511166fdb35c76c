package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached catalog result.
type Key struct {
	// Operation is the logical operation (e.g., "search", "manga")
	Operation string

	// Provider is the upstream provider name (empty for cross-provider keys)
	Provider string

	// Params are every parameter that affects the result
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: catalog:operation:provider:param1=val1:param2=val2
//
// Params are sorted by name, values are query-escaped and multi-values are
// joined with commas in insertion order, so two keys collide only when every
// parameter matches.
//
// Example:
//
//	catalog:search:mangadex:explicit=1:limit=20:mature=0:pornographic=0:q=naruto
func (k Key) String() string {
	parts := []string{"catalog"}

	if op := strings.Trim(k.Operation, ":"); op != "" {
		parts = append(parts, op)
	}

	if k.Provider != "" {
		parts = append(parts, k.Provider)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := k.Params[name]
			escaped := make([]string, len(values))
			for i, v := range values {
				escaped[i] = url.QueryEscape(v)
			}
			parts = append(parts, url.QueryEscape(name)+"="+strings.Join(escaped, ","))
		}
	}

	return strings.Join(parts, ":")
}
