// Package scheduler owns the rebuild loop: it loads the tracked flight
// window, runs one reconciliation, publishes the snapshot and sleeps until
// the next refresh instant or an explicit trigger.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/reconciler"
)

type FlightSource interface {
	ListFlights(ctx context.Context, from, to time.Time, limit int) ([]domain.FlightRecord, error)
}

type Engine interface {
	Reconcile(ctx context.Context, flights []domain.FlightRecord, opts reconciler.Options) ([]domain.FlightRecord, *time.Time)
	RequestForceRefresh()
}

// ChangeEmitter receives state changes between consecutive snapshots.
type ChangeEmitter interface {
	Emit(ctx context.Context, change domain.StateChange) error
}

type MetricsSink interface {
	SnapshotPublished(flights int)
}

type Config struct {
	// IncludePast keeps flights that departed up to this long ago.
	// Default: 6 hours.
	IncludePast time.Duration

	// DaysAhead bounds the window into the future.
	// Default: 30.
	DaysAhead int

	// MaxFlights caps the window.
	// Default: 50.
	MaxFlights int

	// IdleInterval is the sleep when no flight needs a refresh.
	// Default: 1 hour.
	IdleInterval time.Duration

	// MinInterval is the shortest sleep between rebuilds.
	// Default: 5 seconds.
	MinInterval time.Duration

	// RetryInterval is the sleep after the flight window failed to load.
	// Default: 1 minute.
	RetryInterval time.Duration

	Options reconciler.Options
}

func (c Config) withDefaults() Config {
	if c.IncludePast <= 0 {
		c.IncludePast = 6 * time.Hour
	}
	if c.DaysAhead <= 0 {
		c.DaysAhead = 30
	}
	if c.MaxFlights <= 0 {
		c.MaxFlights = 50
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = time.Hour
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 5 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	return c
}

// Snapshot is the published result of one rebuild.
type Snapshot struct {
	Flights     []domain.FlightRecord `json:"flights"`
	BuiltAt     time.Time             `json:"built_at"`
	NextRefresh *time.Time            `json:"next_refresh,omitempty"`
}

type Scheduler struct {
	config  Config
	source  FlightSource
	engine  Engine
	changes ChangeEmitter // optional, nil = disabled
	metrics MetricsSink   // optional, nil = disabled
	clock   func() time.Time
	logger  zerolog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

func New(config Config, source FlightSource, engine Engine) *Scheduler {
	return &Scheduler{
		config: config.withDefaults(),
		source: source,
		engine: engine,
		clock:  time.Now,
		logger: log.WithComponent("scheduler"),
	}
}

// WithChanges attaches the state-change emitter.
func (s *Scheduler) WithChanges(e ChangeEmitter) *Scheduler {
	s.changes = e
	return s
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// WithClock overrides the time source. Used by tests.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// Run rebuilds immediately and then on every wakeup until ctx is cancelled.
// A nil triggers channel disables explicit rebuilds.
func (s *Scheduler) Run(ctx context.Context, triggers <-chan domain.Trigger) error {
	s.logger.Info().
		Dur("include_past", s.config.IncludePast).
		Int("days_ahead", s.config.DaysAhead).
		Int("max_flights", s.config.MaxFlights).
		Msg("rebuild loop started")

	for {
		wait := s.config.RetryInterval
		if snap, err := s.Rebuild(ctx); err != nil {
			s.logger.Error().Err(err).Dur("retry_in", wait).Msg("rebuild failed")
		} else {
			wait = s.sleepFor(snap.NextRefresh)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("rebuild loop stopped")
			return ctx.Err()
		case <-timer.C:
		case t := <-triggers:
			timer.Stop()
			s.handleTrigger(t)
			s.drainTriggers(triggers)
		}
	}
}

func (s *Scheduler) handleTrigger(t domain.Trigger) {
	if t.Force() {
		s.engine.RequestForceRefresh()
	}
	s.logger.Debug().Str("reason", string(t.Reason)).Str("flight_key", t.FlightKey).Msg("rebuild triggered")
}

// drainTriggers folds triggers that are already queued into the upcoming
// rebuild.
func (s *Scheduler) drainTriggers(triggers <-chan domain.Trigger) {
	for {
		select {
		case t := <-triggers:
			s.handleTrigger(t)
		default:
			return
		}
	}
}

func (s *Scheduler) sleepFor(next *time.Time) time.Duration {
	if next == nil {
		return s.config.IdleInterval
	}
	wait := next.Sub(s.clock())
	if wait < s.config.MinInterval {
		return s.config.MinInterval
	}
	return wait
}

// Rebuild runs one cycle and publishes its snapshot. When the window cannot
// be loaded the previous snapshot stays published.
func (s *Scheduler) Rebuild(ctx context.Context) (Snapshot, error) {
	now := s.clock().UTC()
	from := now.Add(-s.config.IncludePast)
	to := now.AddDate(0, 0, s.config.DaysAhead)

	flights, err := s.source.ListFlights(ctx, from, to, s.config.MaxFlights)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list flights: %w", err)
	}

	records, next := s.engine.Reconcile(ctx, flights, s.config.Options)
	snap := Snapshot{Flights: records, BuiltAt: now, NextRefresh: next}

	s.mu.Lock()
	prev := s.snapshot
	s.snapshot = &snap
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SnapshotPublished(len(records))
	}
	ev := s.logger.Info().Int("flights", len(records))
	if next != nil {
		ev = ev.Time("next_refresh", *next)
	}
	ev.Msg("snapshot published")

	if prev != nil {
		s.emitChanges(ctx, prev.Flights, records, now)
	}
	return snap, nil
}

// Snapshot returns the last published snapshot and whether one exists.
func (s *Scheduler) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return Snapshot{}, false
	}
	snap := *s.snapshot
	snap.Flights = append([]domain.FlightRecord(nil), s.snapshot.Flights...)
	return snap, true
}

// Flight returns one record from the last snapshot.
func (s *Scheduler) Flight(key string) (domain.FlightRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return domain.FlightRecord{}, false
	}
	for _, rec := range s.snapshot.Flights {
		if rec.FlightKey == key {
			return rec, true
		}
	}
	return domain.FlightRecord{}, false
}

func (s *Scheduler) emitChanges(ctx context.Context, prev, cur []domain.FlightRecord, now time.Time) {
	if s.changes == nil {
		return
	}
	for _, change := range Diff(prev, cur, now) {
		if err := s.changes.Emit(ctx, change); err != nil {
			s.logger.Warn().Err(err).Str("flight_key", change.FlightKey).Msg("state change dropped")
		}
	}
}

// Diff reports flights present in both snapshots whose coarse state or
// delay status changed. Flights entering or leaving the window are not
// changes.
func Diff(prev, cur []domain.FlightRecord, now time.Time) []domain.StateChange {
	before := make(map[string]domain.FlightRecord, len(prev))
	for _, rec := range prev {
		if rec.FlightKey != "" {
			before[rec.FlightKey] = rec
		}
	}

	var out []domain.StateChange
	for _, rec := range cur {
		old, ok := before[rec.FlightKey]
		if !ok {
			continue
		}
		if old.StatusState == rec.StatusState && old.DelayStatusKey == rec.DelayStatusKey {
			continue
		}
		out = append(out, domain.StateChange{
			FlightKey:    rec.FlightKey,
			FlightIATA:   rec.FlightIATA(),
			PrevState:    old.StatusState,
			State:        rec.StatusState,
			PrevDelay:    old.DelayStatusKey,
			Delay:        rec.DelayStatusKey,
			DelayMinutes: rec.DelayMinutes,
			Assumed:      rec.AssumedArrival,
			DetectedAt:   now,
		})
	}
	return out
}
