// Package app assembles the resolver, its provider registry, cache and
// telemetry from configuration. Both the HTTP server and citectl start here.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-discovery-service/internal/cache"
	"github.com/helixir/citation-discovery-service/internal/config"
	"github.com/helixir/citation-discovery-service/internal/database"
	"github.com/helixir/citation-discovery-service/internal/observability"
	"github.com/helixir/citation-discovery-service/internal/papersources"
	"github.com/helixir/citation-discovery-service/internal/papersources/arxiv"
	"github.com/helixir/citation-discovery-service/internal/papersources/crossref"
	"github.com/helixir/citation-discovery-service/internal/papersources/openalex"
	"github.com/helixir/citation-discovery-service/internal/papersources/pubmed"
	"github.com/helixir/citation-discovery-service/internal/papersources/semanticscholar"
	"github.com/helixir/citation-discovery-service/internal/repository"
	"github.com/helixir/citation-discovery-service/internal/resolver"
)

// Service holds the wired components. Fields are nil when the matching
// feature is disabled: Metrics without metrics, DB and Store with the memory
// cache backend.
type Service struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Cache    *cache.Cache
	DB       *database.DB
	Store    *repository.PgCacheStore
	Registry *papersources.Registry
	Resolver *resolver.Orchestrator
}

type options struct {
	registerer prometheus.Registerer
	store      cache.Store
}

// Option customizes New.
type Option func(*options)

// WithRegisterer registers metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithCacheStore uses s as the persistent cache tier instead of opening the
// configured database.
func WithCacheStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// New wires a Service from cfg. With the postgres cache backend it opens the
// database and, when configured, runs migrations first.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	svc := &Service{Config: cfg, Logger: logger}
	if cfg.Metrics.Enabled {
		svc.Metrics = observability.NewMetricsWith(o.registerer, cfg.Metrics.Namespace)
	}

	store := o.store
	if store == nil && cfg.Cache.Backend == config.CacheBackendPostgres {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		svc.DB = db
		svc.Store = repository.NewPgCacheStore(db)
		store = svc.Store
	}

	c, err := cache.New(cacheConfig(cfg.Cache, cfg.Resolver.Timeout), cacheOptions(svc, store)...)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}
	svc.Cache = c
	if svc.Metrics != nil {
		svc.Metrics.ObserveCacheSize(c.Len)
	}

	deps := papersources.Deps{Cache: c, Logger: logger}
	if svc.Metrics != nil {
		deps.Observer = svc.Metrics
	}
	svc.Registry = papersources.NewRegistry(cfg.Resolver.MaxConcurrency)
	RegisterPaperSources(svc.Registry, &cfg.PaperSources, deps)

	resolverOpts := []resolver.Option{
		resolver.WithLogger(logger.With().Str("component", "resolver").Logger()),
		resolver.WithTimeout(cfg.Resolver.Timeout),
	}
	if svc.Metrics != nil {
		resolverOpts = append(resolverOpts, resolver.WithRecorder(svc.Metrics))
	}
	svc.Resolver = resolver.New(svc.Registry, resolverOpts...)

	return svc, nil
}

// Close releases the database pool, if any.
func (s *Service) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}

// Ready reports whether the service can answer requests. It fails when no
// provider is enabled or the cache database is unreachable.
func (s *Service) Ready(ctx context.Context) error {
	if len(s.Registry.Enabled()) == 0 {
		return fmt.Errorf("no paper source enabled")
	}
	if s.DB != nil {
		if h := s.DB.Health(ctx); h.Status != database.StatusHealthy {
			return fmt.Errorf("cache database: %s", h.Error)
		}
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.DB, error) {
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if !cfg.Database.MigrationAutoRun {
		return db, nil
	}

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// cacheConfig bounds shared provider computations by the resolver deadline.
func cacheConfig(cfg config.CacheConfig, computeTimeout time.Duration) cache.Config {
	return cache.Config{
		MaxEntries:     cfg.MaxEntries,
		ComputeTimeout: computeTimeout,
		Policy: cache.Policy{
			Identifier: cfg.IdentifierTTL,
			Search:     cfg.SearchTTL,
			Listing:    cfg.ListingTTL,
		},
	}
}

func cacheOptions(svc *Service, store cache.Store) []cache.Option {
	opts := []cache.Option{cache.WithLogger(svc.Logger.With().Str("component", "cache").Logger())}
	if store != nil {
		opts = append(opts, cache.WithStore(store))
	}
	if svc.Metrics != nil {
		opts = append(opts, cache.WithRecorder(svc.Metrics))
	}
	return opts
}

// RegisterPaperSources registers a client for every enabled paper source.
func RegisterPaperSources(registry *papersources.Registry, cfg *config.PaperSourcesConfig, deps papersources.Deps) {
	logger := deps.Logger

	if cfg.ArXiv.Enabled {
		src := cfg.ArXiv
		registry.Register(arxiv.New(arxiv.Config{
			BaseURL:    src.BaseURL,
			RSSBaseURL: src.AuxURL,
			Timeout:    src.Timeout,
			RateLimit:  src.RateLimit,
			BurstSize:  src.BurstSize,
			MaxRetries: src.MaxRetries,
			Enabled:    true,
		}, withSource(deps, "arxiv")))
		logger.Info().Msg("registered paper source: arXiv")
	}

	if cfg.CrossRef.Enabled {
		src := cfg.CrossRef
		registry.Register(crossref.New(crossref.Config{
			BaseURL:    src.BaseURL,
			Email:      src.Email,
			Timeout:    src.Timeout,
			RateLimit:  src.RateLimit,
			BurstSize:  src.BurstSize,
			MaxRetries: src.MaxRetries,
			Enabled:    true,
		}, withSource(deps, "crossref")))
		logger.Info().Msg("registered paper source: CrossRef")
	}

	if cfg.OpenAlex.Enabled {
		src := cfg.OpenAlex
		registry.Register(openalex.New(openalex.Config{
			BaseURL:    src.BaseURL,
			Email:      src.Email,
			APIKey:     src.APIKey,
			Timeout:    src.Timeout,
			RateLimit:  src.RateLimit,
			BurstSize:  src.BurstSize,
			MaxRetries: src.MaxRetries,
			Enabled:    true,
		}, withSource(deps, "openalex")))
		logger.Info().Msg("registered paper source: OpenAlex")
	}

	if cfg.PubMed.Enabled {
		src := cfg.PubMed
		registry.Register(pubmed.New(pubmed.Config{
			BaseURL:    src.BaseURL,
			APIKey:     src.APIKey,
			Email:      src.Email,
			Timeout:    src.Timeout,
			RateLimit:  src.RateLimit,
			BurstSize:  src.BurstSize,
			MaxRetries: src.MaxRetries,
			Enabled:    true,
		}, withSource(deps, "pubmed")))
		logger.Info().Msg("registered paper source: PubMed")
	}

	if cfg.SemanticScholar.Enabled {
		src := cfg.SemanticScholar
		registry.Register(semanticscholar.New(semanticscholar.Config{
			BaseURL:            src.BaseURL,
			RecommendationsURL: src.AuxURL,
			APIKey:             src.APIKey,
			Timeout:            src.Timeout,
			RateLimit:          src.RateLimit,
			BurstSize:          src.BurstSize,
			MaxRetries:         src.MaxRetries,
			Enabled:            true,
		}, withSource(deps, "semantic_scholar")))
		logger.Info().Msg("registered paper source: Semantic Scholar")
	}
}

func withSource(deps papersources.Deps, source string) papersources.Deps {
	deps.Logger = observability.ForSource(deps.Logger, source)
	return deps
}
