package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tubloo/hacs-flight-status-tracker/internal/config"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func runtimeError(format string, args ...any) error {
	return &exitError{code: exitRuntimeError, err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntimeError
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

const envHelp = `Environment Variables:
  DATABASE_URL                PostgreSQL connection string (required)
  REDIS_ADDR                  Redis address for the status cache (optional)
  HTTP_ADDR                   HTTP server address (default: ":8080", or ":$PORT")

  STATUS_PROVIDER             flightradar24|aviationstack|airlabs|opensky|local|mock (default: "flightradar24")
  POSITION_PROVIDER           same_as_status|flightradar24|opensky (default: "same_as_status")
  STATUS_TTL_MINUTES          Minimum minutes between fetches of one flight (default: "5")
  DELAY_GRACE_MINUTES         Minutes late that still count as on time (default: "10")
  FR24_API_KEY                Flightradar24 production key
  FR24_SANDBOX_KEY            Flightradar24 sandbox key
  FR24_USE_SANDBOX            Use the sandbox key when set (default: "false")
  FR24_API_VERSION            Flightradar24 Accept-Version header (default: "v1")
  AVIATIONSTACK_ACCESS_KEY    Aviationstack access key
  AIRLABS_API_KEY             AirLabs API key
  OPENSKY_USERNAME            OpenSky username (optional)
  OPENSKY_PASSWORD            OpenSky password (optional)
  PROVIDER_TIMEOUT            Per-request provider timeout (default: "15s")
  CIRCUIT_BREAKER_THRESHOLD   Failures before a provider is blocked, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN    How long a blocked provider stays blocked (default: "5m")

  STATUS_CACHE_BACKEND        memory|redis|bolt (default: redis if REDIS_ADDR is set, else memory)
  STATUS_CACHE_PATH           bbolt file for the bolt backend (default: "status_cache.db")
  STATUS_CACHE_RETENTION      Redis key expiry (default: "72h")

  VIEWER_TIMEZONE             Fallback zone for times without an airport zone (default: "UTC")
  INCLUDE_PAST_HOURS          Keep flights that departed this many hours ago (default: "6")
  DAYS_AHEAD                  Load flights departing this many days ahead (default: "30")
  MAX_FLIGHTS                 Maximum flights per snapshot (default: "50")
  REFRESH_POLICY_FILE         YAML refresh policy (optional)

  AIRPORTS_URL                OpenFlights airports.dat URL, "none" disables (default: OpenFlights)
  AIRPORT_TZ_OVERRIDES_FILE   YAML map of IATA code to zone (optional)
  DIRECTORY_TTL               Airport index lifetime (default: "720h")
  DIRECTORY_REFRESH_SCHEDULE  Cron schedule for index refresh (default: "@daily")

  NOTIFY_WEBHOOK_URL          Webhook for state change notifications (optional)
  NOTIFY_WEBHOOK_SECRET       HMAC secret for webhook signatures (optional)
  EVENTBUS_BUFFER_SIZE        Trigger and change buffer size (default: "100")

  METRICS_ENABLED             Enable Prometheus metrics (default: "false")
  METRICS_PATH                Metrics endpoint path (default: "/metrics")
  METRICS_PORT                Metrics server port (default: "9090")

  LEADER_ELECTION_ENABLED     Run the scheduler only on the advisory lock holder (default: "false")
  LEADER_LOCK_KEY             Advisory lock key (default: "728380")
  LEADER_RETRY_INTERVAL       Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL   Leader connection ping interval (default: "2s")

  DB_MAX_OPEN_CONNS           Max open database connections (default: "10")
  DB_MAX_IDLE_CONNS           Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME        Max connection lifetime (default: "30m")
  HTTP_SHUTDOWN_TIMEOUT       Graceful HTTP shutdown timeout (default: "10s")
  LOG_LEVEL                   debug|info|warn|error (default: "info")
  LOG_JSON                    JSON log output (default: "false")`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flightstatus",
		Short:         "flightstatus - flight status tracker with adaptive refresh",
		Long:          "flightstatus - flight status tracker with adaptive refresh\n\n" + envHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newRefreshOnceCmd(),
		newValidateCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads and validates the configuration and initialises logging.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return cfg, &exitError{code: exitInvalidConfig, err: fmt.Errorf("configuration error: %w", err)}
	}
	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		Output:     os.Stderr,
	})
	return cfg, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration (no connections made)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Validate(config.Load()); err != nil {
				return &exitError{code: exitInvalidConfig, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration as JSON (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Load().MaskedJSON()
			if err != nil {
				return runtimeError("failed to marshal config: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flightstatus version %s (commit: %s)\n", version, commit)
		},
	}
}
