package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/circuitbreaker"
	"github.com/tubloo/hacs-flight-status-tracker/internal/config"
	"github.com/tubloo/hacs-flight-status-tracker/internal/directory"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
	"github.com/tubloo/hacs-flight-status-tracker/internal/provider"
	"github.com/tubloo/hacs-flight-status-tracker/internal/reconciler"
	"github.com/tubloo/hacs-flight-status-tracker/internal/refresh"
	"github.com/tubloo/hacs-flight-status-tracker/internal/scheduler"
	"github.com/tubloo/hacs-flight-status-tracker/internal/statuscache"
	"github.com/tubloo/hacs-flight-status-tracker/internal/store/postgres"

	_ "github.com/lib/pq"
)

// app holds the components shared by serve and refresh-once.
type app struct {
	db        *sql.DB
	store     *postgres.Store
	cache     statuscache.Store
	directory *directory.Directory
	engine    *reconciler.Engine

	closers []func() error
}

// Close releases the cache and the database in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg config.Config, sink metrics.Sink, logger zerolog.Logger) (*app, error) {
	a := &app{}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	a.store = postgres.New(db)
	if err := a.store.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}

	cache, closeCache, err := openStatusCache(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}
	logger.Info().Str("backend", cfg.StatusCacheBackend).Msg("status cache ready")

	a.directory, err = newDirectory(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy := refresh.DefaultPolicy()
	if cfg.RefreshPolicyFile != "" {
		if policy, err = refresh.LoadPolicy(cfg.RefreshPolicyFile); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info().Str("file", cfg.RefreshPolicyFile).Msg("refresh policy loaded")
	}

	viewer, err := normalize.LoadZone(cfg.ViewerTimezone)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("viewer timezone: %w", err)
	}

	registry := newRegistry(cfg, sink)
	logger.Info().Interface("status_providers", registry.StatusKinds()).Msg("providers registered")

	a.engine = reconciler.New(a.cache, registry).
		WithDirectory(a.directory).
		WithWriter(a.store).
		WithPolicy(policy).
		WithHeuristics(refresh.DefaultHeuristics()).
		WithMetrics(sink).
		WithViewerLocation(viewer)

	return a, nil
}

func openDatabase(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	logger.Info().
		Int("max_open", cfg.DBMaxOpenConns).
		Int("max_idle", cfg.DBMaxIdleConns).
		Dur("max_lifetime", cfg.DBConnMaxLifetime).
		Msg("db pool configured")

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openStatusCache returns the configured cache and an optional close function.
func openStatusCache(cfg config.Config) (statuscache.Store, func() error, error) {
	switch cfg.StatusCacheBackend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return statuscache.NewRedisStore(client, cfg.StatusCacheRetention), client.Close, nil
	case config.CacheBolt:
		s, err := statuscache.OpenBoltStore(cfg.StatusCachePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.CacheMemory, "":
		return statuscache.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown status cache backend %q", cfg.StatusCacheBackend)
	}
}

func newDirectory(cfg config.Config) (*directory.Directory, error) {
	overrides, err := directory.LoadOverrides(cfg.AirportTZOverridesFile)
	if err != nil {
		return nil, err
	}
	url := cfg.AirportsURL
	if cfg.IndexDisabled() {
		url = ""
	}
	return directory.New(directory.Config{
		AirportsURL: url,
		TTL:         cfg.DirectoryTTL,
		Overrides:   overrides,
	}), nil
}

func newRegistry(cfg config.Config, sink metrics.Sink) *provider.Registry {
	registry := provider.NewRegistry(provider.Credentials{
		Flightradar24:    fr24Config(cfg),
		AviationstackKey: cfg.AviationstackAccessKey,
		AirLabsKey:       cfg.AirLabsAPIKey,
		OpenSkyUsername:  cfg.OpenSkyUsername,
		OpenSkyPassword:  cfg.OpenSkyPassword,
	}, cfg.ProviderTimeout)

	// A typed nil breaker would not compare equal to nil inside the guard.
	var breaker provider.Breaker
	if cfg.CircuitBreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	return registry.Guard(breaker, sink)
}

func fr24Config(cfg config.Config) provider.Flightradar24Config {
	return provider.Flightradar24Config{
		APIKey:     cfg.FR24APIKey,
		SandboxKey: cfg.FR24SandboxKey,
		UseSandbox: cfg.FR24UseSandbox,
		APIVersion: cfg.FR24APIVersion,
	}
}

// engineOptions maps the validated configuration onto reconciler options.
func engineOptions(cfg config.Config) reconciler.Options {
	opts := reconciler.DefaultOptions()
	if k, err := domain.ParseProviderKind(cfg.StatusProvider); err == nil {
		opts.StatusProvider = k
	}
	if k, err := domain.ParseProviderKind(cfg.PositionProvider); err == nil {
		opts.PositionProvider = k
	}
	opts.StatusTTL = time.Duration(cfg.StatusTTLMinutes) * time.Minute
	opts.DelayGrace = time.Duration(cfg.DelayGraceMinutes) * time.Minute
	return opts
}

func schedulerConfig(cfg config.Config) scheduler.Config {
	return scheduler.Config{
		IncludePast: time.Duration(cfg.IncludePastHours) * time.Hour,
		DaysAhead:   cfg.DaysAhead,
		MaxFlights:  cfg.MaxFlights,
		Options:     engineOptions(cfg),
	}
}

// configWarnings lists settings that are valid but likely not what the
// operator wants.
func configWarnings(cfg config.Config) []string {
	var warnings []string

	status, _ := domain.ParseProviderKind(cfg.StatusProvider)
	if !hasCredentials(cfg, status) {
		warnings = append(warnings, fmt.Sprintf(
			"STATUS_PROVIDER=%s has no credentials; another configured provider will be used", cfg.StatusProvider))
	}
	if cfg.StatusCacheBackend == config.CacheMemory {
		warnings = append(warnings,
			"STATUS_CACHE_BACKEND=memory: cached statuses are lost on restart and every flight is refetched")
	}
	if cfg.LeaderElectionEnabled && cfg.StatusCacheBackend != config.CacheRedis {
		warnings = append(warnings, fmt.Sprintf(
			"LEADER_ELECTION_ENABLED=true with STATUS_CACHE_BACKEND=%s: a new leader starts with a cold cache", cfg.StatusCacheBackend))
	}
	if cfg.NotifyWebhookURL != "" && cfg.NotifyWebhookSecret == "" {
		warnings = append(warnings, "NOTIFY_WEBHOOK_URL set without NOTIFY_WEBHOOK_SECRET: requests are unsigned")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		warnings = append(warnings, "CIRCUIT_BREAKER_THRESHOLD=0: failing providers are never blocked")
	}
	return warnings
}

func hasCredentials(cfg config.Config, kind domain.ProviderKind) bool {
	switch kind {
	case domain.ProviderFlightradar24:
		return fr24Config(cfg).ActiveKey() != ""
	case domain.ProviderAviationstack:
		return cfg.AviationstackAccessKey != ""
	case domain.ProviderAirLabs:
		return cfg.AirLabsAPIKey != ""
	case domain.ProviderOpenSky:
		return cfg.OpenSkyUsername != "" || cfg.OpenSkyPassword != ""
	default:
		return true
	}
}
