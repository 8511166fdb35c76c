package catalog

import (
	"net/url"
	"slices"
	"strconv"
)

// Genre tiers, from least to most severe.
var (
	MatureGenres       = []string{"Gore", "Mature", "Sexual Violence"}
	ExplicitGenres     = []string{"Ecchi", "Smut"}
	PornographicGenres = []string{"Adult", "Hentai"}
)

// ContentFilters holds the three content gates. A false flag hides its tier
// and every more severe tier. The zero value hides everything.
type ContentFilters struct {
	Mature       bool `json:"mature"`
	Explicit     bool `json:"explicit"`
	Pornographic bool `json:"pornographic"`
}

// AllowAll returns filters that hide nothing.
func AllowAll() ContentFilters {
	return ContentFilters{Mature: true, Explicit: true, Pornographic: true}
}

// ExcludedGenres returns the sorted, deduplicated union of the tiers implied
// by the disabled flags.
func (f ContentFilters) ExcludedGenres() []string {
	return f.excluding()
}

// excluding adds extra genres to the excluded set.
func (f ContentFilters) excluding(extra ...string) []string {
	var out []string
	if !f.Mature {
		out = append(out, MatureGenres...)
	}
	if !f.Mature || !f.Explicit {
		out = append(out, ExplicitGenres...)
	}
	if !f.Mature || !f.Explicit || !f.Pornographic {
		out = append(out, PornographicGenres...)
	}
	out = append(out, extra...)

	slices.Sort(out)
	return slices.Compact(out)
}

// addTo writes all three flags into key params.
func (f ContentFilters) addTo(params url.Values) {
	params.Set("mature", strconv.FormatBool(f.Mature))
	params.Set("explicit", strconv.FormatBool(f.Explicit))
	params.Set("pornographic", strconv.FormatBool(f.Pornographic))
}
