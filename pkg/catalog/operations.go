package catalog

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/manga-catalog/pkg/cache"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"golang.org/x/sync/errgroup"
)

// Demographics accepted by DemographicHighlights.
var Demographics = []string{"shounen", "shoujo", "seinen", "josei"}

// GetByProviderID returns one title. Unknown or disabled providers fail with
// ErrProviderUnavailable and an upstream 404 with ErrNotFound.
func (s *Service) GetByProviderID(ctx context.Context, id provider.ID, mangaID string, useCache bool) (provider.Manga, error) {
	api, err := s.api(id, provider.CapGet)
	if err != nil {
		return provider.Manga{}, err
	}
	mangaID = strings.TrimSpace(mangaID)
	if mangaID == "" {
		return provider.Manga{}, fmt.Errorf("%w: empty id", ErrInvalidQuery)
	}

	key := cache.Key{
		Operation: "manga",
		Provider:  string(id),
		Params:    url.Values{"id": {mangaID}},
	}.String()

	m, err := cached(ctx, s, s.entities, "manga", id, key, useCache, func(ctx context.Context) (provider.Manga, error) {
		return api.Get(ctx, mangaID)
	})
	if err != nil {
		return provider.Manga{}, notFound(err)
	}
	return m, nil
}

// Search fans the query out to every requested provider in parallel, or to
// every enabled provider when none are named. Disabled, unknown and
// search-less providers are skipped; a failing provider contributes nothing.
// Results are concatenated in provider order.
func (s *Service) Search(ctx context.Context, q SearchQuery, useCache bool) ([]provider.Manga, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty search text", ErrInvalidQuery)
	}
	limit := normalizeLimit(q.Limit)
	page := normalizePage(q.Page)

	targets := s.searchTargets(q.Providers)
	logger := logging.Ctx(ctx).With().Str(logging.FieldComponent, "catalog").Logger()

	parts := make([][]provider.Manga, len(targets))
	var wg sync.WaitGroup
	for i, id := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.searchProvider(ctx, s.apis[id], text, limit, page, q.Filters, useCache)
			if err != nil {
				if ctx.Err() == nil {
					providerFailuresTotal.WithLabelValues(string(id)).Inc()
				}
				logger.Warn().
					Err(err).
					Str(logging.FieldProvider, string(id)).
					Str("query", text).
					Msg("Provider search failed, continuing without it")
				return
			}
			parts[i] = res.Items
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrContextCancelled, err)
	}

	items := make([]provider.Manga, 0)
	for _, part := range parts {
		items = append(items, part...)
	}
	return items, nil
}

// SearchProvider searches a single provider and surfaces its errors.
func (s *Service) SearchProvider(ctx context.Context, id provider.ID, text string, limit int, filters ContentFilters, useCache bool) (provider.Page, error) {
	api, err := s.api(id, provider.CapSearch)
	if err != nil {
		return provider.Page{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return provider.Page{}, fmt.Errorf("%w: empty search text", ErrInvalidQuery)
	}
	return s.searchProvider(ctx, api, text, normalizeLimit(limit), 1, filters, useCache)
}

func (s *Service) searchProvider(ctx context.Context, api *provider.API, text string, limit, page int, filters ContentFilters, useCache bool) (provider.Page, error) {
	id := api.Descriptor().ID
	params := url.Values{
		"q":     {text},
		"limit": {strconv.Itoa(limit)},
		"page":  {strconv.Itoa(page)},
	}
	filters.addTo(params)
	key := cache.Key{Operation: "search", Provider: string(id), Params: params}.String()

	return cached(ctx, s, s.results, "search", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		return api.Search(ctx, provider.SearchRequest{
			Query:          text,
			Limit:          limit,
			Page:           page,
			ExcludedGenres: filters.ExcludedGenres(),
		})
	})
}

// searchTargets resolves the fan-out list: requested providers in order,
// deduplicated, restricted to enabled providers that can search.
func (s *Service) searchTargets(requested []provider.ID) []provider.ID {
	if len(requested) == 0 {
		requested = s.registry.Enabled()
	}

	targets := make([]provider.ID, 0, len(requested))
	for _, id := range requested {
		if slices.Contains(targets, id) {
			continue
		}
		if _, err := s.api(id, provider.CapSearch); err != nil {
			s.logger.Debug().Err(err).Str(logging.FieldProvider, string(id)).Msg("Provider skipped in fan-out")
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

// RecentlyUpdated lists recently updated titles.
func (s *Service) RecentlyUpdated(ctx context.Context, id provider.ID, limit int, useCache bool) ([]provider.Manga, error) {
	api, err := s.api(id, provider.CapRecent)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	key := cache.Key{
		Operation: "recent",
		Provider:  string(id),
		Params:    url.Values{"limit": {strconv.Itoa(limit)}},
	}.String()

	page, err := cached(ctx, s, s.results, "recent", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		return api.Recent(ctx, limit)
	})
	return page.Items, err
}

// Browse lists titles by type and genre.
func (s *Service) Browse(ctx context.Context, id provider.ID, opts BrowseOptions, useCache bool) (provider.Page, error) {
	api, err := s.api(id, provider.CapBrowse)
	if err != nil {
		return provider.Page{}, err
	}

	req := provider.BrowseRequest{
		Limit:          normalizeLimit(opts.Limit),
		Page:           normalizePage(opts.Page),
		Types:          sortedSet(opts.Types),
		Genres:         sortedSet(opts.Genres),
		OrderBy:        strings.ToLower(strings.TrimSpace(opts.OrderBy)),
		ExcludedGenres: opts.Filters.ExcludedGenres(),
	}

	params := url.Values{
		"limit":   {strconv.Itoa(req.Limit)},
		"page":    {strconv.Itoa(req.Page)},
		"types":   req.Types,
		"genres":  req.Genres,
		"orderby": {req.OrderBy},
	}
	opts.Filters.addTo(params)
	key := cache.Key{Operation: "browse", Provider: string(id), Params: params}.String()

	return cached(ctx, s, s.results, "browse", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		return api.Browse(ctx, req)
	})
}

// DemographicHighlights lists the top titles of a demographic.
func (s *Service) DemographicHighlights(ctx context.Context, id provider.ID, demographic string, limit int, filters ContentFilters, useCache bool) ([]provider.Manga, error) {
	api, err := s.api(id, provider.CapHighlights)
	if err != nil {
		return nil, err
	}
	demographic = strings.ToLower(strings.TrimSpace(demographic))
	if !slices.Contains(Demographics, demographic) {
		return nil, fmt.Errorf("%w: unknown demographic %q", ErrInvalidQuery, demographic)
	}
	limit = normalizeLimit(limit)

	params := url.Values{
		"demographic": {demographic},
		"limit":       {strconv.Itoa(limit)},
	}
	filters.addTo(params)
	key := cache.Key{Operation: "highlights", Provider: string(id), Params: params}.String()

	page, err := cached(ctx, s, s.results, "highlights", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		return api.Top(ctx, demographic, limit, filters.ExcludedGenres())
	})
	return page.Items, err
}

// PopularNewTitles lists popular recently released titles.
func (s *Service) PopularNewTitles(ctx context.Context, id provider.ID, limit int, filters ContentFilters, useCache bool) ([]provider.Manga, error) {
	api, err := s.api(id, provider.CapPopularNew)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	params := url.Values{"limit": {strconv.Itoa(limit)}}
	filters.addTo(params)
	key := cache.Key{Operation: "popular_new", Provider: string(id), Params: params}.String()

	page, err := cached(ctx, s, s.results, "popular_new", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		return api.New(ctx, limit, filters.ExcludedGenres())
	})
	return page.Items, err
}

// TrendingByLanguage lists titles trending in a language. TimeframeAll
// queries the week, month and quarter windows in parallel and merges them,
// deduplicated by ID with recent titles and shorter windows first. The
// always-excluded genres are hidden on top of the content filters.
func (s *Service) TrendingByLanguage(ctx context.Context, id provider.ID, language string, limit int, filters ContentFilters, timeframe Timeframe, useCache bool) ([]provider.Manga, error) {
	api, err := s.api(id, provider.CapTrending)
	if err != nil {
		return nil, err
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return nil, fmt.Errorf("%w: empty language", ErrInvalidQuery)
	}
	timeframe, err = ParseTimeframe(string(timeframe))
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	excluded := filters.excluding(s.alwaysExcluded...)

	params := url.Values{
		"lang":      {language},
		"limit":     {strconv.Itoa(limit)},
		"timeframe": {string(timeframe)},
	}
	filters.addTo(params)
	key := cache.Key{Operation: "trending", Provider: string(id), Params: params}.String()

	page, err := cached(ctx, s, s.results, "trending", id, key, useCache, func(ctx context.Context) (provider.Page, error) {
		windows := timeframe.windows()
		results := make([]windowResult, len(windows))

		g, gCtx := errgroup.WithContext(ctx)
		for i, tf := range windows {
			g.Go(func() error {
				res, err := api.Trending(gCtx, language, tf.Days(), limit, excluded)
				if err != nil {
					return fmt.Errorf("trending %s: %w", tf, err)
				}
				results[i] = windowResult{timeframe: tf, items: res.Items}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return provider.Page{}, err
		}

		items := rankTrending(results, s.now().Year(), limit)
		return provider.Page{Items: items, Total: len(items)}, nil
	})
	return page.Items, err
}

// sortedSet trims, deduplicates and sorts values.
func sortedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
