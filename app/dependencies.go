package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/context-retrieval/config"
	"github.com/upb/context-retrieval/internal/auth"
	"github.com/upb/context-retrieval/internal/observability"
	"github.com/upb/context-retrieval/middleware"
	"github.com/upb/context-retrieval/repositories/postgres"
	"github.com/upb/context-retrieval/services/cache"
	"github.com/upb/context-retrieval/services/retrieval"
	"github.com/upb/context-retrieval/services/search"
	"github.com/upb/context-retrieval/services/search/remote"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// badgerGCDiscardRatio is the value-log rewrite threshold for the badger backend
const badgerGCDiscardRatio = 0.5

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Retrieval pipeline
	Store    cache.Store
	Provider search.Provider
	Boosts   *retrieval.BoostTable
	Service  *retrieval.Service

	// Observability
	Metrics *observability.RetrievalMetrics
	Tracer  trace.Tracer

	// Auth is nil when AUTH_ENABLED is false
	AuthMiddleware *middleware.AuthMiddleware

	shutdownTracing observability.ShutdownFunc
	stopWorkers     chan struct{}
	closed          bool
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		stopWorkers: make(chan struct{}),
	}

	if err := deps.initObservability(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := deps.initCache(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	deps.initProvider(cfg)

	if err := deps.initService(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize retrieval service: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("boosts_version", deps.Boosts.Version),
		zap.Bool("auth_enabled", deps.AuthMiddleware != nil))
	return deps, nil
}

// RetrievalOptions maps configuration onto pipeline options
func RetrievalOptions(cfg *config.Config) retrieval.Options {
	opts := retrieval.DefaultOptions()

	if ns, ok := retrieval.ParseNamespace(cfg.Retrieval.DefaultNamespace); ok {
		opts.DefaultNamespace = ns
	}
	opts.DefaultLanguage = cfg.Retrieval.DefaultLanguage
	opts.DefaultK = cfg.Retrieval.DefaultK
	opts.DefaultMinScore = cfg.Retrieval.DefaultMinScore

	opts.Overfetch = cfg.Search.Overfetch
	opts.MaxLimit = cfg.Search.MaxLimit
	opts.UpstreamTimeout = cfg.Search.Timeout

	opts.CacheTTL = cfg.Cache.TTL
	opts.CacheKeyPrefix = cfg.Cache.KeyPrefix

	opts.LowRecallThreshold = cfg.Quality.LowRecallThreshold()
	opts.LowRelevanceThreshold = cfg.Quality.LowRelevance
	opts.MinResults = cfg.Quality.MinResults
	opts.MinWordCount = cfg.Quality.MinWordCount
	opts.MinTextChars = cfg.Quality.MinTextChars
	opts.DuplicateRatioThreshold = cfg.Quality.DuplicateRatio
	opts.NearDuplicateSimilarity = cfg.Quality.NearDuplicateSimilarity

	return opts
}

// initObservability creates the metrics registry and the tracer
func (d *Dependencies) initObservability(ctx context.Context, cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewRetrievalMetrics()
	}

	tracer, shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.TracingEndpoint,
		SampleRate:  cfg.Observability.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	d.Tracer = tracer
	d.shutdownTracing = shutdown
	return nil
}

// initCache opens the configured result cache backend
func (d *Dependencies) initCache(cfg *config.Config) error {
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		store := cache.NewMemoryStore(cfg.Cache.MaxEntries)
		if cfg.Cache.CleanupInterval > 0 {
			store.StartCleanupWorker(cfg.Cache.CleanupInterval, d.stopWorkers)
		}
		d.Store = store

	case config.CacheBackendBadger:
		store, err := cache.NewBadgerStore(cache.BadgerOptions{Path: cfg.Cache.BadgerPath}, d.Logger)
		if err != nil {
			return err
		}
		if cfg.Cache.CleanupInterval > 0 {
			store.RunValueLogGC(cfg.Cache.CleanupInterval, badgerGCDiscardRatio, d.stopWorkers)
		}
		d.Store = store

	case config.CacheBackendPostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitSchema(context.Background()); err != nil {
			db.Close()
			return err
		}
		repo := postgres.NewCacheRepository(db, d.Logger)
		if cfg.Cache.CleanupInterval > 0 {
			repo.StartPurgeWorker(cfg.Cache.CleanupInterval, d.stopWorkers)
		}
		d.Store = repo

	case config.CacheBackendNone:
		d.Store = cache.NewNoopStore()

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	d.Logger.Info("result cache initialized",
		zap.String("backend", cfg.Cache.Backend),
		zap.Duration("ttl", cfg.Cache.TTL))
	return nil
}

// initProvider creates the remote search adapter
func (d *Dependencies) initProvider(cfg *config.Config) {
	d.Provider = remote.NewAdapter(remote.Config{
		BaseURL: cfg.Search.BaseURL,
		APIKey:  cfg.Search.APIKey,
		Index:   cfg.Search.Index,
		Timeout: cfg.Search.Timeout,
	}, d.Logger)

	if cfg.Search.APIKey == "" {
		d.Logger.Warn("search API key not set, requests are unauthenticated")
	}
}

// initService loads the boost table and builds the retrieval pipeline
func (d *Dependencies) initService(cfg *config.Config) error {
	boosts, err := retrieval.LoadBoostTable(cfg.Search.BoostsFile)
	if err != nil {
		return err
	}
	d.Boosts = boosts

	d.Service = retrieval.NewService(retrieval.ServiceDeps{
		Provider: d.Provider,
		Store:    d.Store,
		Boosts:   boosts,
		Metrics:  d.Metrics,
		Tracer:   d.Tracer,
		Logger:   d.Logger.Named("retrieval"),
	}, RetrievalOptions(cfg))
	return nil
}

// initAuth builds the bearer token middleware when auth is enabled
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if !cfg.Auth.Enabled {
		d.Logger.Warn("authentication disabled, /api/v1 is open")
		return nil
	}

	validator, err := auth.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token authentication enabled")
	return nil
}

// Close gracefully shuts down all dependencies. It is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.Logger.Info("shutting down dependencies")

	var errs []error

	close(d.stopWorkers)

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		} else {
			d.Logger.Info("cache closed")
		}
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
