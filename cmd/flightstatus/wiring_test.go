package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubloo/hacs-flight-status-tracker/internal/config"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/statuscache"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	for _, name := range []string{"REDIS_ADDR", "STATUS_CACHE_BACKEND", "STATUS_PROVIDER", "POSITION_PROVIDER", "FR24_API_KEY", "AIRPORTS_URL"} {
		t.Setenv(name, "")
	}
	cfg := config.Load()
	cfg.DatabaseURL = "postgres://localhost/flights"
	return cfg
}

func TestEngineOptions(t *testing.T) {
	cfg := baseConfig(t)
	cfg.StatusProvider = "fr24"
	cfg.PositionProvider = "adsb"
	cfg.StatusTTLMinutes = 3
	cfg.DelayGraceMinutes = 0

	opts := engineOptions(cfg)
	assert.Equal(t, domain.ProviderFlightradar24, opts.StatusProvider)
	assert.Equal(t, domain.ProviderOpenSky, opts.PositionProvider)
	assert.Equal(t, 3*time.Minute, opts.StatusTTL)
	assert.Equal(t, time.Duration(0), opts.DelayGrace)
	assert.NoError(t, opts.Validate())
}

func TestSchedulerConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg.IncludePastHours = 2
	cfg.DaysAhead = 7
	cfg.MaxFlights = 20

	sc := schedulerConfig(cfg)
	assert.Equal(t, 2*time.Hour, sc.IncludePast)
	assert.Equal(t, 7, sc.DaysAhead)
	assert.Equal(t, 20, sc.MaxFlights)
	assert.Equal(t, 5*time.Minute, sc.Options.StatusTTL)
}

func TestOpenStatusCache(t *testing.T) {
	cfg := baseConfig(t)

	cache, closeFn, err := openStatusCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &statuscache.MemoryStore{}, cache)
	assert.Nil(t, closeFn)

	cfg.StatusCacheBackend = config.CacheBolt
	cfg.StatusCachePath = filepath.Join(t.TempDir(), "cache.db")
	cache, closeFn, err = openStatusCache(cfg)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.IsType(t, &statuscache.BoltStore{}, cache)
	assert.NoError(t, closeFn())

	cfg.StatusCacheBackend = "etcd"
	_, _, err = openStatusCache(cfg)
	assert.Error(t, err)
}

func TestNewDirectory_IndexDisabled(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AirportsURL = "none"

	d, err := newDirectory(cfg)
	require.NoError(t, err)

	// The built-in table still answers without a download.
	ap, err := d.GetAirport(context.Background(), "CPH")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Copenhagen", ap.TZ)
	assert.Equal(t, 0, d.Len())
}

func TestNewDirectory_BadOverridesFile(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AirportTZOverridesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newDirectory(cfg)
	assert.Error(t, err)
}

func TestNewRegistry_BreakerDisabled(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CircuitBreakerThreshold = 0

	r := newRegistry(cfg, nil)
	_, ok := r.ResolveStatus(domain.ProviderMock)
	assert.True(t, ok)
}

func TestConfigWarnings(t *testing.T) {
	cfg := baseConfig(t)
	cfg.NotifyWebhookURL = "https://hooks.example.com/flights"
	cfg.LeaderElectionEnabled = true

	warnings := strings.Join(configWarnings(cfg), "\n")
	assert.Contains(t, warnings, "STATUS_PROVIDER=flightradar24 has no credentials")
	assert.Contains(t, warnings, "STATUS_CACHE_BACKEND=memory")
	assert.Contains(t, warnings, "a new leader starts with a cold cache")
	assert.Contains(t, warnings, "requests are unsigned")
	assert.NotContains(t, warnings, "CIRCUIT_BREAKER_THRESHOLD=0")
}

func TestConfigWarnings_Clean(t *testing.T) {
	cfg := baseConfig(t)
	cfg.FR24APIKey = "key"
	cfg.StatusCacheBackend = config.CacheRedis
	cfg.RedisAddr = "localhost:6379"

	assert.Empty(t, configWarnings(cfg))
}
