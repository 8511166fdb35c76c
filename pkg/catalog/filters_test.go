package catalog

import (
	"net/url"
	"slices"
	"testing"
)

func TestContentFilters_ExcludedGenres(t *testing.T) {
	all := []string{"Adult", "Ecchi", "Gore", "Hentai", "Mature", "Sexual Violence", "Smut"}

	tests := []struct {
		name    string
		filters ContentFilters
		want    []string
	}{
		{
			name:    "everything allowed",
			filters: AllowAll(),
			want:    nil,
		},
		{
			name:    "mature off hides every tier",
			filters: ContentFilters{Mature: false, Explicit: true, Pornographic: true},
			want:    all,
		},
		{
			name:    "zero value hides every tier",
			filters: ContentFilters{},
			want:    all,
		},
		{
			name:    "explicit off hides explicit and pornographic",
			filters: ContentFilters{Mature: true, Explicit: false, Pornographic: true},
			want:    []string{"Adult", "Ecchi", "Hentai", "Smut"},
		},
		{
			name:    "pornographic off hides only the top tier",
			filters: ContentFilters{Mature: true, Explicit: true, Pornographic: false},
			want:    []string{"Adult", "Hentai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filters.ExcludedGenres()
			if !slices.Equal(got, tt.want) {
				t.Errorf("ExcludedGenres() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContentFilters_Excluding(t *testing.T) {
	got := ContentFilters{Mature: true, Explicit: true, Pornographic: false}.excluding("Yaoi", "Adult", "Shounen Ai")
	want := []string{"Adult", "Hentai", "Shounen Ai", "Yaoi"}
	if !slices.Equal(got, want) {
		t.Errorf("excluding() = %v, want %v", got, want)
	}
}

func TestContentFilters_AddTo(t *testing.T) {
	params := url.Values{}
	ContentFilters{Mature: true}.addTo(params)

	if params.Get("mature") != "true" || params.Get("explicit") != "false" || params.Get("pornographic") != "false" {
		t.Errorf("addTo() = %v", params)
	}
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{100, 100},
		{101, MaxLimit},
	}
	for _, tt := range tests {
		if got := normalizeLimit(tt.in); got != tt.want {
			t.Errorf("normalizeLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
