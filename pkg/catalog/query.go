package catalog

import (
	"github.com/Sternrassler/manga-catalog/pkg/provider"
)

const (
	// DefaultLimit is used when a limit is zero or negative.
	DefaultLimit = 20

	// MaxLimit caps every list operation.
	MaxLimit = 100
)

// SearchQuery is the logical identity of a search.
type SearchQuery struct {
	Text      string
	Limit     int
	Page      int
	Filters   ContentFilters
	Providers []provider.ID
}

// BrowseOptions parameterise Browse.
type BrowseOptions struct {
	Limit   int
	Page    int
	Types   []string
	Genres  []string
	OrderBy string
	Filters ContentFilters
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
