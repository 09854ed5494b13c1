package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
)

// Job is one unit of scheduled work. The context is cancelled when the
// runner stops. A returned error is logged; the job stays scheduled.
type Job func(ctx context.Context) error

// Runner executes jobs on their schedules. Overlapping runs of the same
// job are skipped.
type Runner struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a runner. timeout bounds a single job run; zero means
// no bound.
func NewRunner(timeout time.Duration) *Runner {
	logger := log.WithComponent("cron")
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name.
func (r *Runner) Add(name string, sched cron.Schedule, job Job) {
	r.cron.Schedule(sched, cron.FuncJob(func() {
		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			r.logger.Warn().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("job failed")
			return
		}
		r.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job completed")
	}))
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (r *Runner) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	r.cancel()
	<-r.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
