// Package config provides configuration management for the citation discovery service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CITEDISCO"

// Accepted database.ssl_mode values.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Cache backends. Postgres backs the memory tier with the citation_cache
// table.
const (
	CacheBackendMemory   = "memory"
	CacheBackendPostgres = "postgres"
)

const maxProviderTimeout = 5 * time.Minute

// Config is the full service configuration, loaded by Load from an optional
// config.yaml and CITEDISCO_* environment variables.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Resolver     ResolverConfig     `mapstructure:"resolver"`
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig locates the PostgreSQL database behind the persistent cache
// tier. Pool settings left at zero keep the pgxpool defaults.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Password string `mapstructure:"-"` // CITEDISCO_DATABASE_PASSWORD only

	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`

	// MigrationPath overrides the embedded migrations with a directory.
	MigrationPath    string `mapstructure:"migration_path"`
	MigrationAutoRun bool   `mapstructure:"migration_auto_run"`
}

// LoggingConfig mirrors observability.LoggingConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout or stderr
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// CacheConfig holds provider response cache settings.
type CacheConfig struct {
	// Backend is memory or postgres.
	Backend string `mapstructure:"backend"`
	// MaxEntries bounds the in-memory tier.
	MaxEntries int `mapstructure:"max_entries"`
	// IdentifierTTL applies to identifier lookups.
	IdentifierTTL time.Duration `mapstructure:"identifier_ttl"`
	// SearchTTL applies to title, author and topic searches.
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	// ListingTTL applies to category, recent and related listings.
	ListingTTL time.Duration `mapstructure:"listing_ttl"`
}

// ResolverConfig holds orchestration settings.
type ResolverConfig struct {
	// Timeout bounds a whole resolution or discovery.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxConcurrency bounds in-flight provider calls per fan-out; 0 means
	// one goroutine per provider.
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type PaperSourcesConfig struct {
	ArXiv           PaperSourceConfig `mapstructure:"arxiv"`
	CrossRef        PaperSourceConfig `mapstructure:"crossref"`
	OpenAlex        PaperSourceConfig `mapstructure:"openalex"`
	PubMed          PaperSourceConfig `mapstructure:"pubmed"`
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
}

// PaperSourceConfig configures one provider client. Zero limits take the
// client defaults; a negative MaxRetries disables retrying.
type PaperSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	// AuxURL is the arXiv RSS base or the Semantic Scholar recommendations
	// base.
	AuxURL string `mapstructure:"aux_url"`
	// Email joins the provider's polite pool where one exists.
	Email string `mapstructure:"email"`
	// APIKey comes from CITEDISCO_PAPER_SOURCES_<SOURCE>_API_KEY only.
	APIKey string `mapstructure:"-"`

	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	BurstSize  int           `mapstructure:"burst_size"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// Sources returns every provider section keyed by its provider tag.
func (c *PaperSourcesConfig) Sources() map[string]PaperSourceConfig {
	return map[string]PaperSourceConfig{
		"arxiv":            c.ArXiv,
		"crossref":         c.CrossRef,
		"openalex":         c.OpenAlex,
		"pubmed":           c.PubMed,
		"semantic_scholar": c.SemanticScholar,
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-discovery-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secret fields use mapstructure:"-" so config files cannot set them.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")

	cfg.PaperSources.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_OPENALEX_API_KEY")
	cfg.PaperSources.PubMed.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_PUBMED_API_KEY")
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "citedisco")
	v.SetDefault("database.name", "citation_discovery")
	// Use CITEDISCO_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "citation_discovery")

	// Cache defaults
	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.identifier_ttl", "24h")
	v.SetDefault("cache.search_ttl", "1h")
	v.SetDefault("cache.listing_ttl", "30m")

	// Resolver defaults
	v.SetDefault("resolver.timeout", "45s")
	v.SetDefault("resolver.max_concurrency", 0)

	// Paper sources defaults - arXiv
	v.SetDefault("paper_sources.arxiv.enabled", true)
	v.SetDefault("paper_sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("paper_sources.arxiv.aux_url", "https://rss.arxiv.org/rss")
	v.SetDefault("paper_sources.arxiv.email", "")
	v.SetDefault("paper_sources.arxiv.timeout", "30s")
	v.SetDefault("paper_sources.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("paper_sources.arxiv.burst_size", 3)
	v.SetDefault("paper_sources.arxiv.max_retries", 3)

	// Paper sources defaults - CrossRef
	v.SetDefault("paper_sources.crossref.enabled", true)
	v.SetDefault("paper_sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("paper_sources.crossref.aux_url", "")
	v.SetDefault("paper_sources.crossref.email", "")
	v.SetDefault("paper_sources.crossref.timeout", "15s")
	v.SetDefault("paper_sources.crossref.rate_limit", 10.0)
	v.SetDefault("paper_sources.crossref.burst_size", 10)
	v.SetDefault("paper_sources.crossref.max_retries", 3)

	// Paper sources defaults - OpenAlex
	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.aux_url", "")
	v.SetDefault("paper_sources.openalex.email", "")
	v.SetDefault("paper_sources.openalex.timeout", "15s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10.0)
	v.SetDefault("paper_sources.openalex.burst_size", 10)
	v.SetDefault("paper_sources.openalex.max_retries", 3)

	// Paper sources defaults - PubMed
	v.SetDefault("paper_sources.pubmed.enabled", true)
	v.SetDefault("paper_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("paper_sources.pubmed.aux_url", "")
	v.SetDefault("paper_sources.pubmed.email", "")
	v.SetDefault("paper_sources.pubmed.timeout", "30s")
	v.SetDefault("paper_sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("paper_sources.pubmed.burst_size", 3)
	v.SetDefault("paper_sources.pubmed.max_retries", 3)

	// Paper sources defaults - Semantic Scholar
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.aux_url", "https://api.semanticscholar.org/recommendations/v1")
	v.SetDefault("paper_sources.semantic_scholar.email", "")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 1.0)
	v.SetDefault("paper_sources.semantic_scholar.burst_size", 3)
	v.SetDefault("paper_sources.semantic_scholar.max_retries", 3)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case CacheBackendMemory:
	case CacheBackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must not be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Resolver.Timeout < 0 {
		return fmt.Errorf("resolver timeout must not be negative")
	}
	if c.Resolver.MaxConcurrency < 0 {
		return fmt.Errorf("resolver max_concurrency must not be negative")
	}

	enabled := 0
	for name, src := range c.PaperSources.Sources() {
		if !src.Enabled {
			continue
		}
		enabled++
		if src.Timeout < 0 || src.Timeout > maxProviderTimeout {
			return fmt.Errorf("paper source %s: timeout %s out of range (0, %s]", name, src.Timeout, maxProviderTimeout)
		}
		if src.RateLimit < 0 {
			return fmt.Errorf("paper source %s: rate_limit must not be negative", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one paper source must be enabled")
	}

	return nil
}

// Validate checks the settings needed to open a connection.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}
