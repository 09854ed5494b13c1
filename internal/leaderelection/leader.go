// Package leaderelection runs a duty on exactly one process among those
// sharing a PostgreSQL database.
//
// Leadership is a session-scoped advisory lock held on a dedicated
// connection. There is no TTL: the lock lives as long as the session, and
// PostgreSQL releases it server-side if the connection dies. The heartbeat
// only detects local connection death so the duty stops promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
)

// Reasons passed to MetricsSink.LeaderLost.
const (
	LostShutdown   = "shutdown"
	LostConnection = "conn_lost"
	LostDutyExited = "duty_exited"
)

// MetricsSink defines the interface for recording leader election metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Duty is the work only the leader performs. It must return promptly once
// ctx is cancelled.
type Duty func(ctx context.Context)

// Config holds election timing.
type Config struct {
	// LockKey identifies the advisory lock. Every instance sharing the
	// database must use the same key.
	LockKey int64

	// RetryInterval is how often a follower tries to take the lock. It
	// bounds the failover gap.
	// Default: 5 seconds.
	RetryInterval time.Duration

	// HeartbeatInterval is how often the leader pings its connection.
	// Default: 2 seconds.
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	return c
}

// Elector acquires the lock and runs the duty while it holds it.
type Elector struct {
	db      *sql.DB
	config  Config
	duty    Duty
	metrics MetricsSink // optional, nil = disabled
	logger  zerolog.Logger
	leading atomic.Bool
}

func New(db *sql.DB, config Config, duty Duty) *Elector {
	return &Elector{
		db:     db,
		config: config.withDefaults(),
		duty:   duty,
		logger: log.WithComponent("leader"),
	}
}

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

// IsLeader reports whether the duty is currently running here.
func (e *Elector) IsLeader() bool {
	return e.leading.Load()
}

// Run campaigns for the lock until ctx is cancelled. The duty is stopped
// and waited for before Run returns.
func (e *Elector) Run(ctx context.Context) {
	e.logger.Info().
		Int64("lock_key", e.config.LockKey).
		Dur("retry", e.config.RetryInterval).
		Dur("heartbeat", e.config.HeartbeatInterval).
		Msg("starting election loop")
	defer e.logger.Info().Msg("election loop stopped")

	for ctx.Err() == nil {
		if reason := e.term(ctx); reason != "" && ctx.Err() == nil {
			e.logger.Warn().Str("reason", reason).Dur("retry", e.config.RetryInterval).Msg("lost leadership")
		}

		select {
		case <-ctx.Done():
		case <-time.After(e.config.RetryInterval):
		}
	}
}

// term tries the lock once and, when acquired, runs the duty until
// leadership ends. It returns why leadership ended, or "" if the lock was
// not acquired.
func (e *Elector) term(ctx context.Context) string {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to acquire dedicated connection")
		return ""
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.config.LockKey).Scan(&acquired); err != nil {
		e.logger.Error().Err(err).Msg("advisory lock query failed")
		return ""
	}
	if !acquired {
		e.logger.Debug().Int64("lock_key", e.config.LockKey).Msg("lock held by another instance")
		return ""
	}

	e.logger.Info().Int64("lock_key", e.config.LockKey).Msg("acquired advisory lock")
	e.setLeading(true)

	dutyCtx, stopDuty := context.WithCancel(ctx)
	dutyDone := make(chan struct{})
	go func() {
		defer close(dutyDone)
		e.duty(dutyCtx)
	}()

	reason := e.hold(ctx, conn, dutyDone)
	stopDuty()
	<-dutyDone
	e.setLeading(false)

	if reason != LostConnection {
		// Best effort: on a healthy session release now instead of waiting
		// for the connection to close.
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", e.config.LockKey)
		cancel()
	}
	if e.metrics != nil {
		e.metrics.LeaderLost(reason)
	}
	e.logger.Info().Int64("lock_key", e.config.LockKey).Str("reason", reason).Msg("released advisory lock")
	return reason
}

// hold pings the connection until ctx ends, the ping fails or the duty
// returns on its own.
func (e *Elector) hold(ctx context.Context, conn *sql.Conn, dutyDone <-chan struct{}) string {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return LostShutdown
		case <-dutyDone:
			return LostDutyExited
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return LostShutdown
				}
				e.logger.Error().Err(err).Msg("dedicated connection ping failed")
				return LostConnection
			}
		}
	}
}

func (e *Elector) setLeading(v bool) {
	e.leading.Store(v)
	if e.metrics == nil {
		return
	}
	e.metrics.LeaderStatusChanged(v)
	if v {
		e.metrics.LeaderAcquired()
	}
}
