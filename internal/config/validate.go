package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/cron"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		add("DATABASE_URL", "required")
	}

	status, err := domain.ParseProviderKind(cfg.StatusProvider)
	if err != nil {
		add("STATUS_PROVIDER", "%v", err)
	} else if status == domain.ProviderSameAsStatus {
		add("STATUS_PROVIDER", "same_as_status is only valid for POSITION_PROVIDER")
	}
	if _, err := domain.ParseProviderKind(cfg.PositionProvider); err != nil {
		add("POSITION_PROVIDER", "%v", err)
	}

	if cfg.StatusTTLMinutes < 1 {
		add("STATUS_TTL_MINUTES", "must be at least 1")
	}
	if cfg.MaxFlights <= 0 {
		add("MAX_FLIGHTS", "must be positive")
	}

	durations := []struct {
		field string
		value string
	}{
		{"DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr},
		{"PROVIDER_TIMEOUT", cfg.ProviderTimeoutStr},
		{"STATUS_CACHE_RETENTION", cfg.StatusCacheRetentionStr},
		{"DIRECTORY_TTL", cfg.DirectoryTTLStr},
		{"CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr},
		{"LEADER_RETRY_INTERVAL", cfg.LeaderRetryIntervalStr},
		{"LEADER_HEARTBEAT_INTERVAL", cfg.LeaderHeartbeatIntervalStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			add(d.field, "invalid duration: %v", err)
		} else if v <= 0 {
			add(d.field, "must be positive")
		}
	}

	switch cfg.StatusCacheBackend {
	case CacheMemory, CacheBolt:
	case CacheRedis:
		if cfg.RedisAddr == "" {
			add("REDIS_ADDR", "required when STATUS_CACHE_BACKEND is redis")
		}
	default:
		add("STATUS_CACHE_BACKEND", "must be 'memory', 'redis' or 'bolt', got %q", cfg.StatusCacheBackend)
	}

	if _, err := normalize.LoadZone(cfg.ViewerTimezone); err != nil {
		add("VIEWER_TIMEZONE", "unknown timezone %q", cfg.ViewerTimezone)
	}

	if cfg.NotifyWebhookURL != "" {
		u, err := url.Parse(cfg.NotifyWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("NOTIFY_WEBHOOK_URL", "must be an http(s) URL")
		}
	}

	if _, err := cron.Parse(cfg.DirectoryRefreshSchedule, "UTC"); err != nil {
		add("DIRECTORY_REFRESH_SCHEDULE", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
