// Package config loads process configuration from environment variables.
package config

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/directory"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
)

// Status cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBolt   = "bolt"
)

// Config holds all configuration for the flight status tracker.
// Values are loaded from environment variables; see the CLI help for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	StatusProvider    string `json:"status_provider"`
	PositionProvider  string `json:"position_provider"`
	StatusTTLMinutes  int    `json:"status_ttl_minutes"`
	DelayGraceMinutes int    `json:"delay_grace_minutes"`

	FR24APIKey             string `json:"-"`
	FR24SandboxKey         string `json:"-"`
	FR24UseSandbox         bool   `json:"fr24_use_sandbox"`
	FR24APIVersion         string `json:"fr24_api_version"`
	AviationstackAccessKey string `json:"-"`
	AirLabsAPIKey          string `json:"-"`
	OpenSkyUsername        string `json:"opensky_username,omitempty"`
	OpenSkyPassword        string `json:"-"`

	ProviderTimeout    time.Duration `json:"-"`
	ProviderTimeoutStr string        `json:"provider_timeout"`

	// StatusCacheBackend: "memory", "redis" or "bolt". Defaults to redis
	// when REDIS_ADDR is set.
	StatusCacheBackend      string        `json:"status_cache_backend"`
	StatusCachePath         string        `json:"status_cache_path"`
	StatusCacheRetention    time.Duration `json:"-"`
	StatusCacheRetentionStr string        `json:"status_cache_retention"`

	ViewerTimezone string `json:"viewer_timezone"`

	IncludePastHours int `json:"include_past_hours"`
	DaysAhead        int `json:"days_ahead"`
	MaxFlights       int `json:"max_flights"`

	// AirportsURL: "none" disables the downloaded index.
	AirportsURL              string        `json:"airports_url"`
	AirportTZOverridesFile   string        `json:"airport_tz_overrides_file,omitempty"`
	DirectoryTTL             time.Duration `json:"-"`
	DirectoryTTLStr          string        `json:"directory_ttl"`
	DirectoryRefreshSchedule string        `json:"directory_refresh_schedule"`

	RefreshPolicyFile string `json:"refresh_policy_file,omitempty"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	NotifyWebhookURL    string `json:"notify_webhook_url,omitempty"`
	NotifyWebhookSecret string `json:"-"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	LeaderElectionEnabled bool `json:"leader_election_enabled"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		StatusProvider:             os.Getenv("STATUS_PROVIDER"),
		PositionProvider:           os.Getenv("POSITION_PROVIDER"),
		FR24APIKey:                 os.Getenv("FR24_API_KEY"),
		FR24SandboxKey:             os.Getenv("FR24_SANDBOX_KEY"),
		FR24UseSandbox:             parseBool(os.Getenv("FR24_USE_SANDBOX")),
		FR24APIVersion:             os.Getenv("FR24_API_VERSION"),
		AviationstackAccessKey:     os.Getenv("AVIATIONSTACK_ACCESS_KEY"),
		AirLabsAPIKey:              os.Getenv("AIRLABS_API_KEY"),
		OpenSkyUsername:            os.Getenv("OPENSKY_USERNAME"),
		OpenSkyPassword:            os.Getenv("OPENSKY_PASSWORD"),
		ProviderTimeoutStr:         os.Getenv("PROVIDER_TIMEOUT"),
		StatusCacheBackend:         strings.ToLower(strings.TrimSpace(os.Getenv("STATUS_CACHE_BACKEND"))),
		StatusCachePath:            os.Getenv("STATUS_CACHE_PATH"),
		StatusCacheRetentionStr:    os.Getenv("STATUS_CACHE_RETENTION"),
		ViewerTimezone:             os.Getenv("VIEWER_TIMEZONE"),
		AirportsURL:                os.Getenv("AIRPORTS_URL"),
		AirportTZOverridesFile:     os.Getenv("AIRPORT_TZ_OVERRIDES_FILE"),
		DirectoryTTLStr:            os.Getenv("DIRECTORY_TTL"),
		DirectoryRefreshSchedule:   os.Getenv("DIRECTORY_REFRESH_SCHEDULE"),
		RefreshPolicyFile:          os.Getenv("REFRESH_POLICY_FILE"),
		CircuitBreakerCooldownStr:  os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		NotifyWebhookURL:           os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret:        os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		LeaderElectionEnabled:      os.Getenv("LEADER_ELECTION_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		LogLevel:                   os.Getenv("LOG_LEVEL"),
		LogJSON:                    parseBool(os.Getenv("LOG_JSON")),
	}

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10, true)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5, true)
	cfg.StatusTTLMinutes = envInt("STATUS_TTL_MINUTES", 5, true)
	cfg.DelayGraceMinutes = envInt("DELAY_GRACE_MINUTES", 10, false)
	cfg.IncludePastHours = envInt("INCLUDE_PAST_HOURS", 6, false)
	cfg.DaysAhead = envInt("DAYS_AHEAD", 30, true)
	cfg.MaxFlights = envInt("MAX_FLIGHTS", 50, true)
	cfg.EventBusBufferSize = envInt("EVENTBUS_BUFFER_SIZE", 100, true)
	cfg.CircuitBreakerThreshold = envInt("CIRCUIT_BREAKER_THRESHOLD", 5, false)
	cfg.LeaderLockKey = int64(envInt("LEADER_LOCK_KEY", 728380, true))

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.StatusProvider == "" {
		cfg.StatusProvider = "flightradar24"
	}
	if cfg.PositionProvider == "" {
		cfg.PositionProvider = "same_as_status"
	}
	if cfg.FR24APIVersion == "" {
		cfg.FR24APIVersion = "v1"
	}
	if cfg.StatusCacheBackend == "" {
		if cfg.RedisAddr != "" {
			cfg.StatusCacheBackend = CacheRedis
		} else {
			cfg.StatusCacheBackend = CacheMemory
		}
	}
	if cfg.StatusCachePath == "" {
		cfg.StatusCachePath = "status_cache.db"
	}
	if cfg.ViewerTimezone == "" {
		cfg.ViewerTimezone = "UTC"
	}
	if cfg.AirportsURL == "" {
		cfg.AirportsURL = directory.DefaultAirportsURL
	}
	if cfg.DirectoryRefreshSchedule == "" {
		cfg.DirectoryRefreshSchedule = "@daily"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.ProviderTimeoutStr == "" {
		cfg.ProviderTimeoutStr = "15s"
	}
	if cfg.StatusCacheRetentionStr == "" {
		cfg.StatusCacheRetentionStr = "72h"
	}
	if cfg.DirectoryTTLStr == "" {
		cfg.DirectoryTTLStr = "720h"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "5m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.ProviderTimeoutStr); err == nil {
		cfg.ProviderTimeout = d
	}
	if d, err := time.ParseDuration(cfg.StatusCacheRetentionStr); err == nil {
		cfg.StatusCacheRetention = d
	}
	if d, err := time.ParseDuration(cfg.DirectoryTTLStr); err == nil {
		cfg.DirectoryTTL = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}

	return cfg
}

// IndexDisabled reports whether the airport index download is turned off.
func (c Config) IndexDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.AirportsURL), "none")
}

// envInt reads a non-negative integer, falling back to def when unset or
// invalid. With positive set, zero is also rejected.
func envInt(name string, def int, positive bool) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || (positive && n == 0) {
		log.Logger.Warn().Str("var", name).Str("value", s).Int("default", def).Msg("config: invalid integer, using default")
		return def
	}
	return n
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	type alias Config
	masked := struct {
		alias
		DatabaseURL            string `json:"database_url"`
		RedisAddr              string `json:"redis_addr,omitempty"`
		FR24APIKey             string `json:"fr24_api_key,omitempty"`
		FR24SandboxKey         string `json:"fr24_sandbox_key,omitempty"`
		AviationstackAccessKey string `json:"aviationstack_access_key,omitempty"`
		AirLabsAPIKey          string `json:"airlabs_api_key,omitempty"`
		OpenSkyPassword        string `json:"opensky_password,omitempty"`
		NotifyWebhookSecret    string `json:"notify_webhook_secret,omitempty"`
	}{
		alias:                  alias(c),
		DatabaseURL:            maskSecret(c.DatabaseURL),
		RedisAddr:              maskSecret(c.RedisAddr),
		FR24APIKey:             maskSecret(c.FR24APIKey),
		FR24SandboxKey:         maskSecret(c.FR24SandboxKey),
		AviationstackAccessKey: maskSecret(c.AviationstackAccessKey),
		AirLabsAPIKey:          maskSecret(c.AirLabsAPIKey),
		OpenSkyPassword:        maskSecret(c.OpenSkyPassword),
		NotifyWebhookSecret:    maskSecret(c.NotifyWebhookSecret),
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://", "redis://", "rediss://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
