// Package provider models the closed set of upstream catalog providers: their
// capability descriptors, the registry consulted by the aggregator, the
// validated wire shapes of upstream payloads and the API client speaking the
// upstream protocol through the politeness-aware fetcher.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrProviderUnavailable is returned for unknown or disabled providers.
	ErrProviderUnavailable = errors.New("provider not available")

	// ErrUnsupported is returned when a provider lacks the requested capability.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrInvalidPayload is returned when an upstream payload fails validation.
	ErrInvalidPayload = errors.New("invalid upstream payload")
)

// ID identifies a supported provider.
type ID string

const (
	// Scraper is the scraping/aggregation service.
	Scraper ID = "scraper"

	// MangaDex is the public manga metadata API.
	MangaDex ID = "mangadex"
)

// All returns every supported provider in registry order.
func All() []ID {
	return []ID{Scraper, MangaDex}
}

// Parse maps a provider name to its ID.
func Parse(name string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrProviderUnavailable, name)
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// Capability is a bit set of operations a provider supports.
type Capability uint

const (
	CapGet Capability = 1 << iota
	CapSearch
	CapRecent
	CapBrowse
	CapHighlights
	CapPopularNew
	CapTrending

	CapAll = CapGet | CapSearch | CapRecent | CapBrowse | CapHighlights | CapPopularNew | CapTrending
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapGet, "get"},
	{CapSearch, "search"},
	{CapRecent, "recent"},
	{CapBrowse, "browse"},
	{CapHighlights, "highlights"},
	{CapPopularNew, "popular_new"},
	{CapTrending, "trending"},
}

// String lists the capability names joined by "|".
func (c Capability) String() string {
	var names []string
	for _, cn := range capabilityNames {
		if c&cn.cap != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Descriptor describes one provider integration.
type Descriptor struct {
	ID      ID
	Name    string
	BaseURL string
	Enabled bool

	// PoliteDelay is the minimum spacing between requests to the provider's
	// origin. Zero uses the fetcher default.
	PoliteDelay time.Duration

	// IDPattern extracts a provider ID from the path of a canonical title
	// URL. The first submatch is the ID.
	IDPattern *regexp.Regexp

	// SiteHosts are the hosts serving canonical title URLs. Empty means the
	// BaseURL host.
	SiteHosts []string

	Capabilities Capability
}

// Supports reports whether the provider offers the capability.
func (d Descriptor) Supports(c Capability) bool {
	return d.Capabilities&c == c
}

// ExtractID returns the provider ID embedded in a canonical title URL. URLs
// on other hosts never match.
func (d Descriptor) ExtractID(rawURL string) (string, bool) {
	if d.IDPattern == nil || rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || !d.isSiteHost(u.Hostname()) {
		return "", false
	}
	m := d.IDPattern.FindStringSubmatch(u.EscapedPath())
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// isSiteHost matches host against SiteHosts, ignoring case and a leading
// "www.".
func (d Descriptor) isSiteHost(host string) bool {
	hosts := d.SiteHosts
	if len(hosts) == 0 {
		base, err := url.Parse(d.BaseURL)
		if err != nil || base.Hostname() == "" {
			return false
		}
		hosts = []string{base.Hostname()}
	}

	host = canonicalHost(host)
	if host == "" {
		return false
	}
	for _, h := range hosts {
		if canonicalHost(h) == host {
			return true
		}
	}
	return false
}

func canonicalHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

// Endpoint joins the base URL with an upstream path and query.
func (d Descriptor) Endpoint(path string, query url.Values) string {
	u := strings.TrimRight(d.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Defaults returns the built-in descriptors.
//
// Every provider is spoken to with the upstream protocol of API
// (GET /manga/{id}, POST /search and friends). MangaDex is reached through an adapter serving
// that protocol, so it ships disabled: enable it once base_url points at the
// adapter. Its politeness delay and site host follow the MangaDex API budget
// and title URLs.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			ID:           Scraper,
			Name:         "Scraper",
			BaseURL:      "http://localhost:3001/api",
			Enabled:      true,
			IDPattern:    regexp.MustCompile(`^/series/([A-Za-z0-9_-]+)`),
			Capabilities: CapAll,
		},
		{
			ID:      MangaDex,
			Name:    "MangaDex",
			BaseURL: "https://api.mangadex.org",
			Enabled: false,
			// 0.5 req/s budget
			PoliteDelay:  2 * time.Second,
			IDPattern:    regexp.MustCompile(`^/title/([0-9a-fA-F-]{36})`),
			SiteHosts:    []string{"mangadex.org"},
			Capabilities: CapGet | CapSearch | CapRecent | CapPopularNew,
		},
	}
}
