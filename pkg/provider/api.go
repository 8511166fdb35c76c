package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Fetcher is the subset of the politeness-aware fetcher used by API.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string, opts client.Options, out any) error
	PostJSON(ctx context.Context, rawURL string, payload any, out any) error
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Page           int      `json:"page,omitempty"`
	ExcludedGenres []string `json:"excludedGenres,omitempty"`
}

// BrowseRequest is the POST /browse body.
type BrowseRequest struct {
	Limit          int      `json:"limit"`
	Page           int      `json:"page,omitempty"`
	Types          []string `json:"types,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	OrderBy        string   `json:"orderBy,omitempty"`
	ExcludedGenres []string `json:"excludedGenres,omitempty"`
}

// API speaks one provider's upstream protocol.
type API struct {
	fetcher    Fetcher
	descriptor Descriptor
	logger     zerolog.Logger
}

// NewAPI creates an API client for the provider.
func NewAPI(fetcher Fetcher, descriptor Descriptor) *API {
	return &API{
		fetcher:    fetcher,
		descriptor: descriptor,
		logger: log.With().
			Str("component", "provider").
			Str("provider", string(descriptor.ID)).
			Logger(),
	}
}

// Descriptor returns the provider descriptor.
func (a *API) Descriptor() Descriptor {
	return a.descriptor
}

// Get fetches a single title by provider ID.
func (a *API) Get(ctx context.Context, id string) (Manga, error) {
	var env entityEnvelope
	endpoint := a.descriptor.Endpoint("/manga/"+url.PathEscape(id), nil)
	if err := a.fetcher.FetchJSON(ctx, endpoint, client.Options{}, &env); err != nil {
		return Manga{}, err
	}
	if env.Data == nil {
		return Manga{}, fmt.Errorf("%w: %s returned no data", ErrInvalidPayload, endpoint)
	}
	return env.Data.validate(a.descriptor.ID)
}

// Search runs a text search.
func (a *API) Search(ctx context.Context, req SearchRequest) (Page, error) {
	return a.postList(ctx, "/search", req)
}

// Browse lists titles by type, genre and order.
func (a *API) Browse(ctx context.Context, req BrowseRequest) (Page, error) {
	return a.postList(ctx, "/browse", req)
}

// Recent lists recently updated titles.
func (a *API) Recent(ctx context.Context, limit int) (Page, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	return a.getList(ctx, "/recent", q)
}

// Top lists the highlights of a demographic.
func (a *API) Top(ctx context.Context, demographic string, limit int, excluded []string) (Page, error) {
	q := url.Values{
		"demographic": {demographic},
		"limit":       {strconv.Itoa(limit)},
	}
	addExcluded(q, excluded)
	return a.getList(ctx, "/top", q)
}

// New lists popular new titles.
func (a *API) New(ctx context.Context, limit int, excluded []string) (Page, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	addExcluded(q, excluded)
	return a.getList(ctx, "/new", q)
}

// Trending lists titles trending in a language over the last days.
func (a *API) Trending(ctx context.Context, language string, days, limit int, excluded []string) (Page, error) {
	q := url.Values{
		"lang":  {language},
		"days":  {strconv.Itoa(days)},
		"limit": {strconv.Itoa(limit)},
	}
	addExcluded(q, excluded)
	return a.getList(ctx, "/trending", q)
}

func (a *API) getList(ctx context.Context, path string, query url.Values) (Page, error) {
	var env listEnvelope
	if err := a.fetcher.FetchJSON(ctx, a.descriptor.Endpoint(path, query), client.Options{}, &env); err != nil {
		return Page{}, err
	}
	return a.validatePage(path, env), nil
}

func (a *API) postList(ctx context.Context, path string, body any) (Page, error) {
	var env listEnvelope
	if err := a.fetcher.PostJSON(ctx, a.descriptor.Endpoint(path, nil), body, &env); err != nil {
		return Page{}, err
	}
	return a.validatePage(path, env), nil
}

func (a *API) validatePage(path string, env listEnvelope) Page {
	page, dropped := env.page(a.descriptor.ID)
	if dropped > 0 {
		a.logger.Debug().
			Str("path", path).
			Int("dropped", dropped).
			Msg("Dropped invalid upstream items")
	}
	return page
}

func addExcluded(q url.Values, excluded []string) {
	for _, g := range excluded {
		q.Add("exclude", g)
	}
}
