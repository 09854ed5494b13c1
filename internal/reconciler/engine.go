// Package reconciler merges cached and freshly fetched provider status into
// flight records and decides when each flight should be checked again.
//
// One Reconcile call is one rebuild. It applies the cached status of every
// record, selects the records that are due, fetches them one at a time,
// corrects implausible states, recomputes derived fields, and returns the
// earliest next-check instant over all tracked flights. Provider and cache
// failures are logged and treated as absent data; they never abort a cycle.
//
// The engine is not safe for concurrent Reconcile calls. The owning
// scheduler runs it from a single goroutine.
package reconciler

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/derive"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
	"github.com/tubloo/hacs-flight-status-tracker/internal/provider"
	"github.com/tubloo/hacs-flight-status-tracker/internal/refresh"
	"github.com/tubloo/hacs-flight-status-tracker/internal/statuscache"
)

// Resolver picks the provider adapters for a cycle.
type Resolver interface {
	ResolveStatus(kind domain.ProviderKind) (provider.StatusProvider, bool)
	ResolvePosition(kind, statusKind domain.ProviderKind) (provider.PositionProvider, bool)
}

// Directory looks up airport metadata. It is only used to fill missing
// timezones before a fetch.
type Directory interface {
	GetAirport(ctx context.Context, iata string) (*domain.Airport, error)
}

// Writer persists backfilled static fields for manually entered flights.
type Writer interface {
	UpdateRecord(ctx context.Context, flightKey string, update domain.RecordUpdate) error
}

// Engine reconciles flight records against the status cache and providers.
type Engine struct {
	cache      statuscache.Store
	providers  Resolver
	directory  Directory
	writer     Writer
	policy     refresh.Policy
	heuristics refresh.Heuristics
	metrics    metrics.Sink
	viewer     *time.Location
	clock      func() time.Time
	logger     zerolog.Logger
	force      atomic.Bool
}

// New creates an Engine with the default policy and heuristics.
func New(cache statuscache.Store, providers Resolver) *Engine {
	return &Engine{
		cache:      cache,
		providers:  providers,
		policy:     refresh.DefaultPolicy(),
		heuristics: refresh.DefaultHeuristics(),
		metrics:    metrics.NewNoopSink(),
		viewer:     time.Local,
		clock:      time.Now,
		logger:     log.WithComponent("reconciler"),
	}
}

// WithDirectory sets the airport directory used to fill timezone gaps.
func (e *Engine) WithDirectory(d Directory) *Engine {
	e.directory = d
	return e
}

// WithWriter sets the store that receives backfilled fields.
func (e *Engine) WithWriter(w Writer) *Engine {
	e.writer = w
	return e
}

func (e *Engine) WithPolicy(p refresh.Policy) *Engine {
	e.policy = p
	return e
}

func (e *Engine) WithHeuristics(h refresh.Heuristics) *Engine {
	e.heuristics = h
	return e
}

func (e *Engine) WithMetrics(sink metrics.Sink) *Engine {
	if sink != nil {
		e.metrics = sink
	}
	return e
}

// WithViewerLocation sets the zone used for naive timestamps when the
// airport zone is unknown.
func (e *Engine) WithViewerLocation(loc *time.Location) *Engine {
	if loc != nil {
		e.viewer = loc
	}
	return e
}

// WithClock overrides the time source. Used by tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// RequestForceRefresh makes the next cycle fetch every non-terminal flight
// regardless of its next check. The flag is consumed by that cycle.
func (e *Engine) RequestForceRefresh() {
	e.force.Store(true)
}

// item is the per-record working state of one cycle.
type item struct {
	rec *domain.FlightRecord
	// scheduled is the record's own scheduled departure, captured before
	// any status is applied.
	scheduled *time.Time
	entry     domain.CacheEntry
	cached    bool
	// storedTZ holds the departure and arrival zones as loaded, before any
	// directory fill.
	storedTZ [2]string
}

// Reconcile runs one cycle over flights, updating them in place. It returns
// the same slice and the earliest next-check instant, or nil when no flight
// needs further polling.
func (e *Engine) Reconcile(ctx context.Context, flights []domain.FlightRecord, opts Options) ([]domain.FlightRecord, *time.Time) {
	opts = opts.normalized()
	start := e.clock()
	now := start.UTC()
	force := e.force.Swap(false)
	logger := e.logger.With().Str("cycle_id", uuid.NewString()).Logger()

	e.metrics.CycleStarted()

	statusKind := opts.StatusProvider
	statusProvider, ok := e.providers.ResolveStatus(opts.StatusProvider)
	if ok {
		statusKind = statusProvider.Kind()
	} else {
		logger.Warn().Str("provider", string(opts.StatusProvider)).Msg("no status provider available")
	}
	var positionProvider provider.PositionProvider
	if p, ok := e.providers.ResolvePosition(opts.PositionProvider, statusKind); ok {
		positionProvider = p
	}

	items := make([]*item, len(flights))
	for i := range flights {
		items[i] = e.prepare(&flights[i])
		e.fillAirports(ctx, items[i].rec, logger)
		e.applyCached(ctx, items[i], statusKind, opts, now, logger)
	}

	var (
		earliest *time.Time
		due      []*item
	)
	collect := func(t time.Time) {
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
	}

	for _, it := range items {
		key := it.rec.FlightKey
		if key == "" {
			continue
		}
		if domain.IsTerminal(it.rec.StatusState) {
			e.settle(ctx, it, opts, now, logger)
			continue
		}
		switch {
		case !it.cached && e.policy.Evaluate(it.rec, now, opts.StatusTTL).Phase == refresh.PhaseResolved:
			// Too far past to be worth a fetch.
		case force || !it.cached:
			due = append(due, it)
		case it.entry.NextCheck == nil:
			// Tracking stopped after an earlier fetch.
		case !now.Before(*it.entry.NextCheck):
			due = append(due, it)
		default:
			collect(it.entry.NextCheck.UTC())
		}
	}

	fetched := 0
	for i, it := range due {
		if ctx.Err() != nil {
			logger.Warn().Int("processed", i).Int("due", len(due)).Msg("cycle interrupted")
			break
		}
		if next := e.refreshOne(ctx, it, statusProvider, positionProvider, statusKind, opts, now, logger); next != nil {
			collect(*next)
		}
		fetched++
	}

	e.metrics.CycleCompleted(e.clock().Sub(start), len(due), fetched)
	ev := logger.Info().Int("flights", len(flights)).Int("due", len(due)).Int("fetched", fetched).Bool("forced", force)
	if earliest != nil {
		e.metrics.NextRefreshUpdate(earliest.Sub(now))
		ev = ev.Time("next_refresh", *earliest)
	}
	ev.Msg("cycle complete")

	return flights, earliest
}

// prepare fills the airport blocks from the static record fields.
func (e *Engine) prepare(rec *domain.FlightRecord) *item {
	if rec.Dep.Airport.IATA == "" {
		rec.Dep.Airport.IATA = strings.ToUpper(strings.TrimSpace(rec.DepAirport))
	}
	if rec.Arr.Airport.IATA == "" {
		rec.Arr.Airport.IATA = strings.ToUpper(strings.TrimSpace(rec.ArrAirport))
	}
	if rec.Dep.Scheduled == nil && rec.ScheduledDeparture != nil {
		t := rec.ScheduledDeparture.UTC()
		rec.Dep.Scheduled = &t
	}
	if rec.Arr.Scheduled == nil && rec.ScheduledArrival != nil {
		t := rec.ScheduledArrival.UTC()
		rec.Arr.Scheduled = &t
	}

	it := &item{rec: rec, storedTZ: [2]string{rec.Dep.Airport.TZ, rec.Arr.Airport.TZ}}
	if sched := rec.ScheduledDeparture; sched != nil {
		it.scheduled = sched
	} else if rec.Dep.Scheduled != nil {
		t := *rec.Dep.Scheduled
		it.scheduled = &t
	}
	return it
}

// applyCached applies the stored status of it, unless the stored status
// belongs to another operating date or another provider.
func (e *Engine) applyCached(ctx context.Context, it *item, statusKind domain.ProviderKind, opts Options, now time.Time, logger zerolog.Logger) {
	rec := it.rec
	applied := false

	if key := rec.FlightKey; key != "" {
		entry, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("flight_key", key).Msg("status cache read failed")
		case !ok:
		case e.dateMismatch(it, entry.Status):
			logger.Info().Str("flight_key", key).Str("dep_scheduled", entry.Status.DepScheduled).
				Msg("cached status is for another operating date, discarding")
			e.metrics.CacheRejected(metrics.RejectDateMismatch)
			e.evict(ctx, key, logger)
		case providerMismatch(entry.Status, statusKind):
			logger.Info().Str("flight_key", key).Str("cached_provider", entry.Status.Provider).
				Str("provider", string(statusKind)).Msg("cached status is from another provider, evicting")
			e.metrics.CacheRejected(metrics.RejectProviderMismatch)
			e.evict(ctx, key, logger)
		default:
			it.entry, it.cached = entry, true
			if entry.Status != nil {
				rec.Status = entry.Status
				updated := entry.UpdatedAt
				rec.StatusUpdatedAt = &updated
				e.applyStatus(rec, entry.Status)
				applied = true
			}
		}
	}
	e.finish(rec, now, opts, applied)
}

func providerMismatch(status *domain.StatusPayload, kind domain.ProviderKind) bool {
	if status == nil || status.Provider == "" || kind == "" {
		return false
	}
	return !strings.EqualFold(status.Provider, string(kind))
}

// refreshOne fetches one due record and stores its next check. It returns
// the next check instant, or nil when the flight needs no more polling.
func (e *Engine) refreshOne(ctx context.Context, it *item, sp provider.StatusProvider, pp provider.PositionProvider,
	statusKind domain.ProviderKind, opts Options, now time.Time, logger zerolog.Logger) *time.Time {
	rec := it.rec
	key := rec.FlightKey
	flog := logger.With().Str("flight_key", key).Logger()

	var payload *domain.StatusPayload
	if sp != nil {
		p, err := sp.FetchStatus(ctx, rec)
		if err != nil {
			flog.Warn().Err(err).Str("provider", string(sp.Kind())).Msg("status fetch failed")
		} else {
			payload = p
		}
	}

	if payload != nil && e.dateMismatch(it, payload) {
		flog.Info().Str("dep_scheduled", payload.DepScheduled).Msg("fetched status is for another operating date, rejecting")
		e.metrics.CacheRejected(metrics.RejectDateMismatch)
		e.evict(ctx, key, flog)
		e.finish(rec, now, opts, false)
		next, ok := e.policy.NextRefresh(rec, now, opts.StatusTTL)
		if !ok {
			return nil
		}
		return &next
	}

	var pos *domain.Position
	if pp != nil {
		p, err := pp.FetchPosition(ctx, rec)
		if err != nil {
			flog.Warn().Err(err).Str("provider", string(pp.Kind())).Msg("position fetch failed")
		} else {
			pos = p
		}
	}

	status := mergeStatus(rec, rec.Status, payload, statusKind, now)
	if pos != nil {
		status.Position = pos
	}
	rec.Status = status
	e.applyStatus(rec, status)
	e.backfill(ctx, it, status, flog)
	e.finish(rec, now, opts, true)

	updatedAt := now
	if rec.StatusUpdatedAt != nil {
		updatedAt = *rec.StatusUpdatedAt
	}
	decision := e.policy.Evaluate(rec, now, opts.StatusTTL)
	if decision.Stop() {
		flog.Debug().Str("state", rec.StatusState).Str("phase", string(decision.Phase)).Msg("tracking stopped")
		if decision.Phase != refresh.PhaseTerminal {
			e.evict(ctx, key, flog)
			return nil
		}
		if err := e.cache.Put(ctx, key, status, updatedAt, nil); err != nil {
			flog.Warn().Err(err).Msg("status cache write failed")
		}
		return nil
	}
	next := now.Add(decision.Interval)
	if err := e.cache.Put(ctx, key, status, updatedAt, &next); err != nil {
		flog.Warn().Err(err).Msg("status cache write failed")
	}
	flog.Debug().Str("state", rec.StatusState).Time("next_check", next).Msg("flight refreshed")
	return &next
}

// mergeStatus picks the status to keep after a fetch. A payload with signal
// replaces the previous status. An error without signal only annotates the
// previous status. No payload at all marks the previous status no_status.
func mergeStatus(rec *domain.FlightRecord, prev, payload *domain.StatusPayload, kind domain.ProviderKind, now time.Time) *domain.StatusPayload {
	switch {
	case payload == nil:
		s := prev.Clone()
		if s == nil {
			s = &domain.StatusPayload{Provider: string(kind), State: domain.StateUnknown}
		}
		s.Error = domain.ErrorNoStatus
		s.ErrorMessage = "provider returned no status"
		return s
	case payload.HasError() && !payload.HasSignal():
		if prev == nil {
			return payload.Clone()
		}
		s := prev.Clone()
		s.Error = payload.Error
		s.ErrorMessage = payload.ErrorMessage
		return s
	default:
		stamp := now
		rec.StatusUpdatedAt = &stamp
		return payload.Clone()
	}
}

// finish runs the correction passes when a status was applied, then
// recomputes every derived field.
func (e *Engine) finish(rec *domain.FlightRecord, now time.Time, opts Options, applied bool) {
	if applied {
		coerced, assumed := e.correct(rec, now)
		if coerced {
			e.metrics.StateCoerced()
		}
		if assumed {
			e.metrics.AssumedArrival()
		}
	}
	fillTZShort(rec, now)
	derive.Apply(rec, opts.DelayGrace)
}

// settle handles a record whose applied state is terminal. Its entry is
// kept with no next check so later cycles apply it without a fetch, which
// also keeps an assumed arrival in place. Entries of flights past the
// resolved grace are dropped.
func (e *Engine) settle(ctx context.Context, it *item, opts Options, now time.Time, logger zerolog.Logger) {
	if !it.cached {
		return
	}
	key := it.rec.FlightKey
	if e.policy.Evaluate(it.rec, now, opts.StatusTTL).Phase != refresh.PhaseTerminal {
		e.evict(ctx, key, logger)
		e.metrics.CacheRejected(metrics.RejectTerminal)
		return
	}
	if it.entry.NextCheck == nil {
		return
	}
	if err := e.cache.Put(ctx, key, it.entry.Status, it.entry.UpdatedAt, nil); err != nil {
		logger.Warn().Err(err).Str("flight_key", key).Msg("status cache write failed")
	}
}

func (e *Engine) evict(ctx context.Context, key string, logger zerolog.Logger) {
	if err := e.cache.Evict(ctx, key); err != nil {
		logger.Warn().Err(err).Str("flight_key", key).Msg("status cache evict failed")
	}
}
