// Package config loads the catalog server configuration from an optional
// YAML file and CATALOG_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/manga-catalog/pkg/catalog"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/Sternrassler/manga-catalog/pkg/resolver"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CATALOG_SERVER_PORT.
const EnvPrefix = "CATALOG"

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Cache     CacheConfig
	Fetcher   FetcherConfig
	Providers map[string]ProviderConfig
	Resolver  ResolverConfig
	Trending  TrendingConfig
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Pretty  bool   `mapstructure:"pretty"`
	Service string `mapstructure:"service"`
}

type CacheConfig struct {
	EntityTTL     time.Duration `mapstructure:"entity_ttl"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
	TitleTTL      time.Duration `mapstructure:"title_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type FetcherConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Accept         string        `mapstructure:"accept"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PoliteDelay    time.Duration `mapstructure:"polite_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MaxRetryAfter  time.Duration `mapstructure:"max_retry_after"`
}

type ProviderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	PoliteDelay time.Duration `mapstructure:"polite_delay"`
	SiteHosts   []string      `mapstructure:"site_hosts"`
}

type ResolverConfig struct {
	Provider string `mapstructure:"provider"`
	Workers  int    `mapstructure:"workers"`
	MaxBatch int    `mapstructure:"max_batch"`
}

type TrendingConfig struct {
	AlwaysExcludedGenres []string `mapstructure:"always_excluded_genres"`
}

// Load reads configuration from configPath/config.yaml (optional) and the
// environment.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath, "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// newViper creates a viper instance reading configName.yaml from configPath,
// the working directory or ./config. A missing file is not an error.
func newViper(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil // Config file not found, rely on env vars
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service", logging.DefaultService)

	catalogDefaults := catalog.DefaultConfig()
	v.SetDefault("cache.entity_ttl", catalogDefaults.EntityTTL)
	v.SetDefault("cache.result_ttl", catalogDefaults.ResultTTL)
	v.SetDefault("cache.title_ttl", resolver.DefaultTTL)
	v.SetDefault("cache.sweep_interval", catalogDefaults.SweepInterval)

	fetcher := client.DefaultConfig("manga-catalog/0.1.0 (+https://github.com/Sternrassler/manga-catalog)")
	v.SetDefault("fetcher.user_agent", fetcher.UserAgent)
	v.SetDefault("fetcher.accept", fetcher.Accept)
	v.SetDefault("fetcher.accept_language", fetcher.AcceptLanguage)
	v.SetDefault("fetcher.timeout", fetcher.Timeout)
	v.SetDefault("fetcher.polite_delay", fetcher.PoliteDelay)
	v.SetDefault("fetcher.max_retries", fetcher.MaxRetries)
	v.SetDefault("fetcher.base_delay", fetcher.BaseDelay)
	v.SetDefault("fetcher.max_delay", fetcher.MaxDelay)
	v.SetDefault("fetcher.max_retry_after", fetcher.MaxRetryAfter)

	for _, d := range provider.Defaults() {
		prefix := "providers." + string(d.ID)
		v.SetDefault(prefix+".enabled", d.Enabled)
		v.SetDefault(prefix+".base_url", d.BaseURL)
		v.SetDefault(prefix+".polite_delay", d.PoliteDelay)
		if len(d.SiteHosts) > 0 {
			v.SetDefault(prefix+".site_hosts", d.SiteHosts)
		}
	}

	resolverDefaults := resolver.DefaultConfig()
	v.SetDefault("resolver.provider", string(resolverDefaults.Provider))
	v.SetDefault("resolver.workers", resolverDefaults.Workers)
	v.SetDefault("resolver.max_batch", resolverDefaults.MaxBatch)

	v.SetDefault("trending.always_excluded_genres", catalog.DefaultAlwaysExcludedGenres)
}

// Validate checks value ranges and provider names.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test (got %q)", c.Server.Mode)
	}
	if c.Fetcher.UserAgent == "" {
		return errors.New("fetcher.user_agent is required")
	}
	if c.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1 (got %d)", c.Fetcher.MaxRetries)
	}
	if c.Fetcher.BaseDelay <= 0 || c.Fetcher.MaxDelay < c.Fetcher.BaseDelay {
		return fmt.Errorf("fetcher.base_delay (%s) must be positive and not exceed fetcher.max_delay (%s)",
			c.Fetcher.BaseDelay, c.Fetcher.MaxDelay)
	}
	for name := range c.Providers {
		if _, err := provider.Parse(name); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	if _, err := provider.Parse(c.Resolver.Provider); err != nil {
		return fmt.Errorf("resolver.provider: %w", err)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.Service = c.Log.Service
	return cfg
}

// ClientConfig returns the fetcher configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		UserAgent:      c.Fetcher.UserAgent,
		Accept:         c.Fetcher.Accept,
		AcceptLanguage: c.Fetcher.AcceptLanguage,
		Timeout:        c.Fetcher.Timeout,
		PoliteDelay:    c.Fetcher.PoliteDelay,
		MaxRetries:     c.Fetcher.MaxRetries,
		BaseDelay:      c.Fetcher.BaseDelay,
		MaxDelay:       c.Fetcher.MaxDelay,
		MaxRetryAfter:  c.Fetcher.MaxRetryAfter,
	}
}

// Descriptors applies the provider overrides to the built-in descriptors.
func (c *Config) Descriptors() []provider.Descriptor {
	descs := provider.Defaults()
	for i, d := range descs {
		pc, ok := c.Providers[string(d.ID)]
		if !ok {
			continue
		}
		descs[i].Enabled = pc.Enabled
		if pc.BaseURL != "" {
			descs[i].BaseURL = pc.BaseURL
		}
		descs[i].PoliteDelay = pc.PoliteDelay
		if len(pc.SiteHosts) > 0 {
			descs[i].SiteHosts = pc.SiteHosts
		}
	}
	return descs
}

// CatalogConfig returns the aggregator configuration.
func (c *Config) CatalogConfig() catalog.Config {
	cfg := catalog.DefaultConfig()
	cfg.EntityTTL = c.Cache.EntityTTL
	cfg.ResultTTL = c.Cache.ResultTTL
	cfg.SweepInterval = c.Cache.SweepInterval
	cfg.AlwaysExcludedGenres = c.Trending.AlwaysExcludedGenres
	if cfg.AlwaysExcludedGenres == nil {
		cfg.AlwaysExcludedGenres = []string{}
	}
	return cfg
}

// ResolverConfig returns the resolver configuration.
func (c *Config) ResolverConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	cfg.Provider = provider.ID(strings.ToLower(c.Resolver.Provider))
	cfg.Workers = c.Resolver.Workers
	cfg.MaxBatch = c.Resolver.MaxBatch
	cfg.TTL = c.Cache.TitleTTL
	cfg.SweepInterval = c.Cache.SweepInterval
	return cfg
}
