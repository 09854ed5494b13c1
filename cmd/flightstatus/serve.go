package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tubloo/hacs-flight-status-tracker/internal/api"
	"github.com/tubloo/hacs-flight-status-tracker/internal/config"
	"github.com/tubloo/hacs-flight-status-tracker/internal/cron"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/leaderelection"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
	"github.com/tubloo/hacs-flight-status-tracker/internal/notify"
	"github.com/tubloo/hacs-flight-status-tracker/internal/scheduler"
	"github.com/tubloo/hacs-flight-status-tracker/internal/transport/channel"
)

// directoryJobTimeout bounds one scheduled airport index download.
const directoryJobTimeout = 2 * time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the refresh scheduler and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func newRefreshOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-once",
		Short: "Run one reconciliation cycle and print the snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := log.WithComponent("main")
			a, err := buildApp(ctx, cfg, metrics.NewNoopSink(), logger)
			if err != nil {
				return runtimeError("%v", err)
			}
			defer a.Close()

			snap, err := scheduler.New(schedulerConfig(cfg), a.store, a.engine).Rebuild(ctx)
			if err != nil {
				return runtimeError("%v", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return runtimeError("failed to encode snapshot: %v", err)
			}
			return nil
		},
	}
}

func runServe(cfg config.Config) error {
	logger := log.WithComponent("main")
	for _, w := range configWarnings(cfg) {
		logger.Warn().Msg(w)
	}

	// Metrics sink: Prometheus when enabled, no-op otherwise.
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)

		// Metrics are served on a separate port.
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("port", cfg.MetricsPort).Str("path", cfg.MetricsPath).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	} else {
		logger.Info().Msg("METRICS_ENABLED not set; metrics disabled")
	}

	a, err := buildApp(context.Background(), cfg, sink, logger)
	if err != nil {
		return runtimeError("%v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close error")
		}
	}()

	triggers := channel.NewEventBus[domain.Trigger](cfg.EventBusBufferSize, channel.WithMetrics(sink))
	sched := scheduler.New(schedulerConfig(cfg), a.store, a.engine).WithMetrics(sink)

	// State change notifications (optional).
	var notifier *notify.Notifier
	var changes *channel.EventBus[domain.StateChange]
	if cfg.NotifyWebhookURL != "" {
		changes = channel.NewEventBus[domain.StateChange](cfg.EventBusBufferSize)
		notifier = notify.New(notify.Config{
			URL:    cfg.NotifyWebhookURL,
			Secret: cfg.NotifyWebhookSecret,
		}, notify.NewHTTPSender()).WithMetrics(sink)
		sched = sched.WithChanges(changes)
		logger.Info().Msg("state change notifications enabled")
	} else {
		logger.Info().Msg("NOTIFY_WEBHOOK_URL not set; notifications disabled")
	}

	apiHandler := api.NewHandler(a.store, sched, triggers).
		WithDirectory(a.directory).
		WithForceRefresher(a.engine).
		WithHealthCheck("database", a.store)
	if hc, ok := a.cache.(api.HealthChecker); ok {
		apiHandler = apiHandler.WithHealthCheck("status_cache", hc)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// Separate contexts per component enable ordered shutdown.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	cronCtx, cancelCron := context.WithCancel(context.Background())
	notifierCtx, cancelNotifier := context.WithCancel(context.Background())

	var schedulerWg, cronWg, notifierWg sync.WaitGroup

	runScheduler := func(ctx context.Context) {
		if err := sched.Run(ctx, triggers.Channel()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler stopped with error")
		}
	}

	schedulerWg.Add(1)
	if cfg.LeaderElectionEnabled {
		elector := leaderelection.New(a.db, leaderelection.Config{
			LockKey:           cfg.LeaderLockKey,
			RetryInterval:     cfg.LeaderRetryInterval,
			HeartbeatInterval: cfg.LeaderHeartbeatInterval,
		}, runScheduler).WithMetrics(sink)
		go func() {
			defer schedulerWg.Done()
			elector.Run(schedulerCtx)
		}()
		logger.Info().Int64("lock_key", cfg.LeaderLockKey).Msg("leader election enabled")
	} else {
		go func() {
			defer schedulerWg.Done()
			runScheduler(schedulerCtx)
		}()
	}

	if notifier != nil {
		notifierWg.Add(1)
		go func() {
			defer notifierWg.Done()
			notifier.Run(notifierCtx, changes.Channel())
		}()
	}

	if !cfg.IndexDisabled() {
		runner, err := newDirectoryRunner(cfg, a)
		if err != nil {
			logger.Warn().Err(err).Msg("directory refresh schedule disabled")
		} else {
			cronWg.Add(1)
			go func() {
				defer cronWg.Done()
				runner.Run(cronCtx)
			}()
			logger.Info().Str("schedule", cfg.DirectoryRefreshSchedule).Msg("directory refresh scheduled")
		}
	}

	logger.Info().
		Str("status_provider", cfg.StatusProvider).
		Int("status_ttl_minutes", cfg.StatusTTLMinutes).
		Str("http", cfg.HTTPAddr).
		Msg("started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	logger.Info().Str("signal", received.String()).Msg("shutting down")

	// Phase 1: Stop scheduler (no new cycles, no new state changes)
	logger.Info().Msg("stopping scheduler...")
	cancelScheduler()
	schedulerWg.Wait()
	logger.Info().Msg("scheduler stopped")

	// Phase 2: Stop directory refresh job
	cancelCron()
	cronWg.Wait()

	// Phase 3: Stop notifier (drains buffered changes before returning)
	if notifier != nil {
		logger.Info().Msg("stopping notifier (draining changes)...")
		cancelNotifier()
		notifierWg.Wait()
		logger.Info().Msg("notifier stopped")
	} else {
		cancelNotifier()
	}

	// Phase 4: Stop HTTP server with graceful shutdown
	logger.Info().Msg("stopping http server...")
	shutdown(httpServer, cfg.HTTPShutdownTimeout, logger)
	logger.Info().Msg("http server stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		shutdown(metricsServer, cfg.HTTPShutdownTimeout, logger)
		logger.Info().Msg("metrics server stopped")
	}

	logger.Info().Msg("stopped")
	return nil
}

func shutdown(srv *http.Server, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", srv.Addr).Msg("server shutdown error")
	}
}

// newDirectoryRunner schedules the forced airport index refresh.
func newDirectoryRunner(cfg config.Config, a *app) (*cron.Runner, error) {
	sched, err := cron.Parse(cfg.DirectoryRefreshSchedule, "UTC")
	if err != nil {
		return nil, err
	}
	runner := cron.NewRunner(directoryJobTimeout)
	runner.Add("directory_refresh", sched, func(ctx context.Context) error {
		return a.directory.Refresh(ctx, true)
	})
	return runner, nil
}
