package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns the defaults with a database URL set.
func validConfig(t *testing.T) Config {
	t.Helper()
	clearEnv(t)
	cfg := Load()
	cfg.DatabaseURL = "postgres://localhost/flights"
	return cfg
}

func fields(err error) []string {
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.DatabaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
	if got := fields(err); len(got) != 1 || got[0] != "DATABASE_URL" {
		t.Errorf("expected DATABASE_URL error, got %v", got)
	}
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown status provider", func(c *Config) { c.StatusProvider = "skynet" }, "STATUS_PROVIDER"},
		{"same_as_status for status", func(c *Config) { c.StatusProvider = "same_as_status" }, "STATUS_PROVIDER"},
		{"unknown position provider", func(c *Config) { c.PositionProvider = "radar" }, "POSITION_PROVIDER"},
		{"zero ttl", func(c *Config) { c.StatusTTLMinutes = 0 }, "STATUS_TTL_MINUTES"},
		{"zero max flights", func(c *Config) { c.MaxFlights = 0 }, "MAX_FLIGHTS"},
		{"bad duration", func(c *Config) { c.ProviderTimeoutStr = "soon" }, "PROVIDER_TIMEOUT"},
		{"negative duration", func(c *Config) { c.CircuitBreakerCooldownStr = "-1m" }, "CIRCUIT_BREAKER_COOLDOWN"},
		{"unknown backend", func(c *Config) { c.StatusCacheBackend = "etcd" }, "STATUS_CACHE_BACKEND"},
		{"redis without addr", func(c *Config) { c.StatusCacheBackend = CacheRedis; c.RedisAddr = "" }, "REDIS_ADDR"},
		{"bad viewer timezone", func(c *Config) { c.ViewerTimezone = "Mars/Olympus" }, "VIEWER_TIMEZONE"},
		{"non-http webhook", func(c *Config) { c.NotifyWebhookURL = "ftp://example.com/hook" }, "NOTIFY_WEBHOOK_URL"},
		{"bad schedule", func(c *Config) { c.DirectoryRefreshSchedule = "every day" }, "DIRECTORY_REFRESH_SCHEDULE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			got := fields(Validate(cfg))
			if len(got) != 1 || got[0] != tt.field {
				t.Errorf("expected single %s error, got %v", tt.field, got)
			}
		})
	}
}

func TestValidate_AcceptsAliases(t *testing.T) {
	cfg := validConfig(t)
	cfg.StatusProvider = "fr24"
	cfg.PositionProvider = "adsb"
	cfg.StatusCacheBackend = CacheBolt
	cfg.ViewerTimezone = "Asia/Calcutta"
	cfg.NotifyWebhookURL = "https://hooks.example.com/flights"
	cfg.DirectoryRefreshSchedule = "30 4 * * 1"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.DatabaseURL = ""
	cfg.MaxFlights = 0
	cfg.HTTPShutdownTimeoutStr = "x"

	err := Validate(cfg)
	if got := fields(err); len(got) != 3 {
		t.Fatalf("expected 3 errors, got %v", got)
	}
	if !strings.HasPrefix(err.Error(), "3 validation errors:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Field: "MAX_FLIGHTS", Message: "must be positive"}
	if err.Error() != "MAX_FLIGHTS: must be positive" {
		t.Errorf("unexpected format: %s", err.Error())
	}
}

func TestValidationErrors_Format(t *testing.T) {
	errs := ValidationErrors{
		{Field: "A", Message: "bad"},
		{Field: "B", Message: "worse"},
	}
	want := "2 validation errors:\n  - A: bad\n  - B: worse"
	if errs.Error() != want {
		t.Errorf("got %q, want %q", errs.Error(), want)
	}
	if (ValidationErrors{}).Error() != "" {
		t.Error("empty ValidationErrors should format as empty string")
	}
}
