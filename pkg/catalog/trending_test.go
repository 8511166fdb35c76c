package catalog

import (
	"errors"
	"testing"

	"github.com/Sternrassler/manga-catalog/pkg/provider"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		input   string
		want    Timeframe
		wantErr bool
	}{
		{"", TimeframeAll, false},
		{"week", TimeframeWeek, false},
		{"Month", TimeframeMonth, false},
		{" quarter ", TimeframeQuarter, false},
		{"all", TimeframeAll, false},
		{"year", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeframe(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Errorf("ParseTimeframe(%q) error = %v, want ErrInvalidQuery", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTimeframe(%q) = (%q, %v), want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestTimeframe_WindowsAndWeights(t *testing.T) {
	if got := TimeframeAll.windows(); len(got) != 3 {
		t.Fatalf("TimeframeAll.windows() = %v", got)
	}
	if w := TimeframeMonth.windows(); len(w) != 1 || w[0] != TimeframeMonth {
		t.Errorf("TimeframeMonth.windows() = %v", w)
	}
	if !(TimeframeWeek.Weight() > TimeframeMonth.Weight() && TimeframeMonth.Weight() > TimeframeQuarter.Weight()) {
		t.Error("weights must decrease with window length")
	}
	if TimeframeWeek.Days() != 7 || TimeframeMonth.Days() != 30 || TimeframeQuarter.Days() != 90 {
		t.Error("unexpected window lengths")
	}
}

func manga(id string, year int) provider.Manga {
	return provider.Manga{ID: id, Title: id, Year: year}
}

func ids(items []provider.Manga) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.ID
	}
	return out
}

func TestRankTrending(t *testing.T) {
	const year = 2026

	results := []windowResult{
		{timeframe: TimeframeQuarter, items: []provider.Manga{manga("q-recent", 2026), manga("shared", 2025), manga("q-old", 2001)}},
		{timeframe: TimeframeWeek, items: []provider.Manga{manga("w-old", 1999), manga("w-recent", 2025), manga("shared", 2025)}},
		{timeframe: TimeframeMonth, items: []provider.Manga{manga("m-recent", 2026), manga("m-old", 2010), manga("w-recent", 2025)}},
	}

	got := ids(rankTrending(results, year, 100))
	want := []string{
		// recent: week, then month, then quarter; upstream rank breaks ties
		"w-recent", "shared", "m-recent", "q-recent",
		// older
		"w-old", "m-old", "q-old",
	}

	if len(got) != len(want) {
		t.Fatalf("rankTrending() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rankTrending() = %v, want %v", got, want)
		}
	}
}

func TestRankTrending_DedupeAndLimit(t *testing.T) {
	results := []windowResult{
		{timeframe: TimeframeWeek, items: []provider.Manga{manga("a", 2026), manga("b", 2026)}},
		{timeframe: TimeframeMonth, items: []provider.Manga{manga("a", 2026), manga("b", 2026), manga("c", 2026)}},
	}

	got := ids(rankTrending(results, 2026, 2))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("rankTrending() = %v, want [a b]", got)
	}

	seen := make(map[string]bool)
	for _, id := range ids(rankTrending(results, 2026, 100)) {
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRankTrending_UnknownYearIsNotRecent(t *testing.T) {
	results := []windowResult{
		{timeframe: TimeframeWeek, items: []provider.Manga{manga("unknown", 0)}},
		{timeframe: TimeframeQuarter, items: []provider.Manga{manga("recent", 2025)}},
	}

	got := ids(rankTrending(results, 2026, 10))
	if got[0] != "recent" {
		t.Errorf("rankTrending() = %v, want recent first", got)
	}
}
