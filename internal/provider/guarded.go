package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/circuitbreaker"
	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
)

// Breaker is the block list consulted before every provider call.
type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

type guard struct {
	breaker Breaker
	metrics metrics.Sink
	clock   func() time.Time
	logger  zerolog.Logger
}

func newGuard(breaker Breaker, sink metrics.Sink) guard {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return guard{breaker: breaker, metrics: sink, clock: time.Now, logger: log.WithComponent("provider")}
}

// countsAsFailure reports whether err should move the breaker toward open.
// Client errors other than 429 mean the request itself was wrong, not that
// the provider is unhealthy.
func countsAsFailure(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

func (g guard) before(kind domain.ProviderKind) error {
	if g.breaker == nil {
		return nil
	}
	if err := g.breaker.Allow(string(kind)); err != nil {
		g.metrics.ProviderCallCompleted(string(kind), metrics.ProviderCircuitOpen, 0)
		return err
	}
	return nil
}

func (g guard) after(kind domain.ProviderKind, start time.Time, empty, errorPayload bool, err error) {
	outcome := metrics.ProviderOK
	switch {
	case err != nil:
		outcome = metrics.ProviderFailed
	case errorPayload:
		outcome = metrics.ProviderErrorResult
	case empty:
		outcome = metrics.ProviderEmpty
	}
	g.metrics.ProviderCallCompleted(string(kind), outcome, g.clock().Sub(start))

	if g.breaker == nil {
		return
	}
	if (err != nil && countsAsFailure(err)) || errorPayload {
		g.breaker.RecordFailure(string(kind))
		return
	}
	// The provider answered, which also closes a half-open probe.
	g.breaker.RecordSuccess(string(kind))
}

// GuardedStatus wraps a StatusProvider with the block list and call metrics.
type GuardedStatus struct {
	inner StatusProvider
	guard
}

func NewGuardedStatus(inner StatusProvider, breaker Breaker, sink metrics.Sink) *GuardedStatus {
	return &GuardedStatus{inner: inner, guard: newGuard(breaker, sink)}
}

func (g *GuardedStatus) Kind() domain.ProviderKind { return g.inner.Kind() }

func (g *GuardedStatus) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	kind := g.inner.Kind()
	if err := g.before(kind); err != nil {
		return nil, err
	}
	start := g.clock()
	p, err := g.inner.FetchStatus(ctx, rec)
	g.after(kind, start, p == nil, p.HasError() && !p.HasSignal(), err)
	if err != nil {
		g.logger.Warn().Err(err).Str("provider", string(kind)).Str("flight_key", rec.FlightKey).Msg("status fetch failed")
	}
	return p, err
}

// GuardedPosition wraps a PositionProvider with the block list and call metrics.
type GuardedPosition struct {
	inner PositionProvider
	guard
}

func NewGuardedPosition(inner PositionProvider, breaker Breaker, sink metrics.Sink) *GuardedPosition {
	return &GuardedPosition{inner: inner, guard: newGuard(breaker, sink)}
}

func (g *GuardedPosition) Kind() domain.ProviderKind { return g.inner.Kind() }

func (g *GuardedPosition) FetchPosition(ctx context.Context, rec *domain.FlightRecord) (*domain.Position, error) {
	kind := g.inner.Kind()
	if err := g.before(kind); err != nil {
		return nil, err
	}
	start := g.clock()
	p, err := g.inner.FetchPosition(ctx, rec)
	g.after(kind, start, p == nil, false, err)
	if err != nil {
		g.logger.Warn().Err(err).Str("provider", string(kind)).Str("flight_key", rec.FlightKey).Msg("position fetch failed")
	}
	return p, err
}

var _ Breaker = (*circuitbreaker.CircuitBreaker)(nil)
