package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/manga-catalog/pkg/provider"
)

// Timeframe selects the trending window.
type Timeframe string

const (
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeQuarter Timeframe = "quarter"

	// TimeframeAll merges the three windows.
	TimeframeAll Timeframe = "all"
)

// DefaultAlwaysExcludedGenres are hidden from trending regardless of the
// content filters.
var DefaultAlwaysExcludedGenres = []string{"Yaoi", "Shounen Ai"}

// ParseTimeframe maps a query value to a Timeframe. Empty selects all.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case "":
		return TimeframeAll, nil
	case TimeframeWeek, TimeframeMonth, TimeframeQuarter, TimeframeAll:
		return tf, nil
	default:
		return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidQuery, s)
	}
}

// Days returns the upstream window length.
func (tf Timeframe) Days() int {
	switch tf {
	case TimeframeWeek:
		return 7
	case TimeframeMonth:
		return 30
	case TimeframeQuarter:
		return 90
	}
	return 0
}

// Weight orders equally recent items; shorter windows rank higher.
func (tf Timeframe) Weight() int {
	switch tf {
	case TimeframeWeek:
		return 3
	case TimeframeMonth:
		return 2
	case TimeframeQuarter:
		return 1
	}
	return 0
}

// windows returns the sub-queries of a timeframe.
func (tf Timeframe) windows() []Timeframe {
	if tf == TimeframeAll {
		return []Timeframe{TimeframeWeek, TimeframeMonth, TimeframeQuarter}
	}
	return []Timeframe{tf}
}

// windowResult is one trending sub-query result.
type windowResult struct {
	timeframe Timeframe
	items     []provider.Manga
}

type rankedItem struct {
	item   provider.Manga
	recent bool
	weight int
	rank   int
}

// rankTrending deduplicates items by ID across windows and orders them:
// recent items first, then higher window weight, then upstream rank.
// An item is recent when its year is at least currentYear-1.
func rankTrending(results []windowResult, currentYear, limit int) []provider.Manga {
	best := make(map[string]int)
	var ranked []rankedItem

	for _, res := range results {
		for rank, item := range res.items {
			candidate := rankedItem{
				item:   item,
				recent: item.Year > 0 && item.Year >= currentYear-1,
				weight: res.timeframe.Weight(),
				rank:   rank,
			}
			if i, seen := best[item.ID]; seen {
				if better(candidate, ranked[i]) {
					ranked[i] = candidate
				}
				continue
			}
			best[item.ID] = len(ranked)
			ranked = append(ranked, candidate)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return better(ranked[i], ranked[j])
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]provider.Manga, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

func better(a, b rankedItem) bool {
	if a.recent != b.recent {
		return a.recent
	}
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	return a.rank < b.rank
}
