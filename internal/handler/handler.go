// Package handler exposes the catalog operations over HTTP. Errors are
// translated into generic responses; upstream detail is logged, never
// returned.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/manga-catalog/pkg/catalog"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/metrics"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/Sternrassler/manga-catalog/pkg/resolver"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Catalog is the aggregator consumed by the routes.
type Catalog interface {
	GetByProviderID(ctx context.Context, id provider.ID, mangaID string, useCache bool) (provider.Manga, error)
	Search(ctx context.Context, q catalog.SearchQuery, useCache bool) ([]provider.Manga, error)
	RecentlyUpdated(ctx context.Context, id provider.ID, limit int, useCache bool) ([]provider.Manga, error)
	Browse(ctx context.Context, id provider.ID, opts catalog.BrowseOptions, useCache bool) (provider.Page, error)
	DemographicHighlights(ctx context.Context, id provider.ID, demographic string, limit int, filters catalog.ContentFilters, useCache bool) ([]provider.Manga, error)
	PopularNewTitles(ctx context.Context, id provider.ID, limit int, filters catalog.ContentFilters, useCache bool) ([]provider.Manga, error)
	TrendingByLanguage(ctx context.Context, id provider.ID, language string, limit int, filters catalog.ContentFilters, timeframe catalog.Timeframe, useCache bool) ([]provider.Manga, error)
	ClearCache()
	CacheSizes() (entities, results int)
}

// Resolver is the bulk title resolver consumed by the routes.
type Resolver interface {
	ResolveBulk(ctx context.Context, items []resolver.Item) ([]resolver.Result, error)
	CacheSize() int
}

// Handler serves the catalog API.
type Handler struct {
	catalog  Catalog
	resolver Resolver
}

// New creates a handler.
func New(catalog Catalog, resolver Resolver) *Handler {
	return &Handler{catalog: catalog, resolver: resolver}
}

// NewRouter builds the gin engine with recovery, request logging and all
// routes registered.
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	h.Register(router)
	return router
}

// Register mounts the routes.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")
	api.GET("/manga/:provider/:id", h.getManga)
	api.GET("/search", h.search)
	api.POST("/resolve", h.resolve)
	api.DELETE("/cache", h.clearCache)

	p := api.Group("/providers/:provider")
	p.GET("/recent", h.recent)
	p.GET("/browse", h.browse)
	p.GET("/highlights/:demographic", h.highlights)
	p.GET("/popular-new", h.popularNew)
	p.GET("/trending/:language", h.trending)
}

type healthResponse struct {
	Status string         `json:"status"`
	Caches map[string]int `json:"caches"`
}

func (h *Handler) health(c *gin.Context) {
	entities, results := h.catalog.CacheSizes()
	Success(c, healthResponse{
		Status: "ok",
		Caches: map[string]int{
			"entity": entities,
			"result": results,
			"title":  h.resolver.CacheSize(),
		},
	})
}

func (h *Handler) getManga(c *gin.Context) {
	useCache, ok := useCacheParam(c)
	if !ok {
		return
	}
	m, err := h.catalog.GetByProviderID(c.Request.Context(), providerParam(c), c.Param("id"), useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, m)
}

func (h *Handler) search(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}

	var providers []provider.ID
	for _, name := range splitList(c.QueryArray("providers")) {
		providers = append(providers, provider.ID(strings.ToLower(name)))
	}

	items, err := h.catalog.Search(c.Request.Context(), catalog.SearchQuery{
		Text:      c.Query("q"),
		Limit:     q.limit,
		Page:      q.page,
		Filters:   q.filters,
		Providers: providers,
	}, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, items)
}

func (h *Handler) recent(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}
	items, err := h.catalog.RecentlyUpdated(c.Request.Context(), providerParam(c), q.limit, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, items)
}

func (h *Handler) browse(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}
	page, err := h.catalog.Browse(c.Request.Context(), providerParam(c), catalog.BrowseOptions{
		Limit:   q.limit,
		Page:    q.page,
		Types:   splitList(c.QueryArray("types")),
		Genres:  splitList(c.QueryArray("genres")),
		OrderBy: c.Query("orderby"),
		Filters: q.filters,
	}, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, page)
}

func (h *Handler) highlights(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}
	items, err := h.catalog.DemographicHighlights(c.Request.Context(), providerParam(c), c.Param("demographic"), q.limit, q.filters, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, items)
}

func (h *Handler) popularNew(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}
	items, err := h.catalog.PopularNewTitles(c.Request.Context(), providerParam(c), q.limit, q.filters, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, items)
}

func (h *Handler) trending(c *gin.Context) {
	q, ok := listParams(c)
	if !ok {
		return
	}
	timeframe, err := catalog.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		h.fail(c, err)
		return
	}
	items, err := h.catalog.TrendingByLanguage(c.Request.Context(), providerParam(c), c.Param("language"), q.limit, q.filters, timeframe, q.useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, items)
}

type resolveRequest struct {
	Items []resolver.Item `json:"items" binding:"required"`
}

func (h *Handler) resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "request body must be {\"items\": [...]}")
		return
	}
	results, err := h.resolver.ResolveBulk(c.Request.Context(), req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, results)
}

func (h *Handler) clearCache(c *gin.Context) {
	h.catalog.ClearCache()
	Success(c, gin.H{"cleared": true})
}

// fail maps err to a generic response.
func (h *Handler) fail(c *gin.Context, err error) {
	logger := logging.Ctx(c.Request.Context())

	switch {
	case errors.Is(err, catalog.ErrProviderUnavailable):
		Error(c, http.StatusNotFound, "PROVIDER_UNAVAILABLE", "provider not available")
	case errors.Is(err, catalog.ErrNotFound):
		NotFound(c, "title not found")
	case errors.Is(err, catalog.ErrUnsupported):
		Error(c, http.StatusBadRequest, "UNSUPPORTED", "operation not supported by provider")
	case errors.Is(err, catalog.ErrInvalidQuery):
		BadRequest(c, strings.TrimPrefix(err.Error(), catalog.ErrInvalidQuery.Error()+": "))
	case errors.Is(err, resolver.ErrBatchTooLarge):
		BadRequest(c, err.Error())
	case errors.Is(err, client.ErrContextCancelled):
		logger.Debug().Err(err).Msg("Request cancelled")
		Error(c, http.StatusGatewayTimeout, "CANCELLED", "request cancelled")
	default:
		logger.Warn().Err(err).Msg("Upstream failure")
		Error(c, http.StatusBadGateway, "UPSTREAM_ERROR", "upstream provider request failed")
	}
}

type listQuery struct {
	limit    int
	page     int
	filters  catalog.ContentFilters
	useCache bool
}

// listParams parses the shared list parameters, answering 400 on bad input.
func listParams(c *gin.Context) (listQuery, bool) {
	var q listQuery
	var err error

	if q.limit, err = intParam(c, "limit"); err != nil {
		BadRequest(c, "limit must be an integer")
		return q, false
	}
	if q.page, err = intParam(c, "page"); err != nil {
		BadRequest(c, "page must be an integer")
		return q, false
	}
	for name, dst := range map[string]*bool{
		"mature":       &q.filters.Mature,
		"explicit":     &q.filters.Explicit,
		"pornographic": &q.filters.Pornographic,
	} {
		if *dst, err = boolParam(c, name, false); err != nil {
			BadRequest(c, name+" must be a boolean")
			return q, false
		}
	}
	if q.useCache, err = useCacheValue(c); err != nil {
		BadRequest(c, "nocache must be a boolean")
		return q, false
	}
	return q, true
}

func useCacheParam(c *gin.Context) (bool, bool) {
	useCache, err := useCacheValue(c)
	if err != nil {
		BadRequest(c, "nocache must be a boolean")
		return false, false
	}
	return useCache, true
}

func useCacheValue(c *gin.Context) (bool, error) {
	nocache, err := boolParam(c, "nocache", false)
	return !nocache, err
}

func providerParam(c *gin.Context) provider.ID {
	return provider.ID(strings.ToLower(strings.TrimSpace(c.Param("provider"))))
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func boolParam(c *gin.Context, name string, def bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

// splitList accepts repeated and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
