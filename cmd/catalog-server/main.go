package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/manga-catalog/internal/config"
	"github.com/Sternrassler/manga-catalog/internal/handler"
	"github.com/Sternrassler/manga-catalog/pkg/catalog"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/Sternrassler/manga-catalog/pkg/resolver"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(getEnv("CATALOG_CONFIG_PATH", "."))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := logging.Setup(cfg.LoggingConfig())

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	app.start()

	go func() {
		logger.Info().
			Str("addr", app.server.Addr).
			Strs("providers", providerNames(app.registry)).
			Msg("Starting catalog server")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Catalog server stopped")
}

// app holds the wired service graph.
type app struct {
	registry *provider.Registry
	fetcher  *client.Client
	catalog  *catalog.Service
	resolver *resolver.Resolver
	server   *http.Server
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	gin.SetMode(cfg.Server.Mode)

	registry, err := provider.NewRegistry(cfg.Descriptors()...)
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	fetcher, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	svc, err := catalog.New(registry, fetcher, cfg.CatalogConfig())
	if err != nil {
		fetcher.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}

	res, err := resolver.New(svc, registry, cfg.ResolverConfig())
	if err != nil {
		svc.Close()
		fetcher.Close()
		return nil, fmt.Errorf("resolver: %w", err)
	}

	router := handler.NewRouter(handler.New(svc, res), logger)

	return &app{
		registry: registry,
		fetcher:  fetcher,
		catalog:  svc,
		resolver: res,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// start launches the cache sweepers.
func (a *app) start() {
	a.catalog.Start()
	a.resolver.Start()
}

// shutdown drains HTTP first, then stops the sweepers and idle connections.
func (a *app) shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.resolver.Close()
	a.catalog.Close()
	a.fetcher.Close()
	return err
}

func providerNames(r *provider.Registry) []string {
	ids := r.Enabled()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
