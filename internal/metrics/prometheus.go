package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Reconciler metrics
	cyclesTotal          prometheus.Counter
	cycleDuration        prometheus.Histogram
	dueFlightsTotal      prometheus.Counter
	fetchedFlightsTotal  prometheus.Counter
	cacheRejectionsTotal *prometheus.CounterVec
	stateCoercionsTotal  prometheus.Counter
	assumedArrivalsTotal prometheus.Counter
	nextRefreshSeconds   prometheus.Gauge

	// Provider metrics
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// Scheduler metrics
	snapshotFlights prometheus.Gauge

	// Notifier metrics
	notifyAttemptsTotal *prometheus.CounterVec
	notifyOutcomesTotal *prometheus.CounterVec
	notifyDuration      prometheus.Histogram

	// EventBus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Leader election metrics
	isLeader            prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initReconcilerMetrics(reg)
	s.initProviderMetrics(reg)
	s.initSchedulerMetrics(reg)
	s.initNotifierMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_cycles_total",
		Help: "Total number of reconciliation cycles run.",
	})
	s.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flightstatus_reconciler_cycle_duration_seconds",
		Help:    "Duration of each reconciliation cycle in seconds.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	s.dueFlightsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_due_flights_total",
		Help: "Total number of flights selected for a provider refresh.",
	})
	s.fetchedFlightsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_fetched_flights_total",
		Help: "Total number of refreshes that produced a usable payload.",
	})
	s.cacheRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_cache_rejections_total",
		Help: "Total number of cached or fetched statuses discarded, by reason.",
	}, []string{"reason"})
	s.stateCoercionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_state_coercions_total",
		Help: "Total number of premature airborne claims reset to scheduled.",
	})
	s.assumedArrivalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_reconciler_assumed_arrivals_total",
		Help: "Total number of arrivals inferred without provider confirmation.",
	})
	s.nextRefreshSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightstatus_reconciler_next_refresh_seconds",
		Help: "Seconds until the next scheduled refresh, 0 when nothing is scheduled.",
	})

	s.register(reg, s.cyclesTotal, "flightstatus_reconciler_cycles_total")
	s.register(reg, s.cycleDuration, "flightstatus_reconciler_cycle_duration_seconds")
	s.register(reg, s.dueFlightsTotal, "flightstatus_reconciler_due_flights_total")
	s.register(reg, s.fetchedFlightsTotal, "flightstatus_reconciler_fetched_flights_total")
	s.register(reg, s.cacheRejectionsTotal, "flightstatus_reconciler_cache_rejections_total")
	s.register(reg, s.stateCoercionsTotal, "flightstatus_reconciler_state_coercions_total")
	s.register(reg, s.assumedArrivalsTotal, "flightstatus_reconciler_assumed_arrivals_total")
	s.register(reg, s.nextRefreshSeconds, "flightstatus_reconciler_next_refresh_seconds")
}

func (s *PrometheusSink) initProviderMetrics(reg prometheus.Registerer) {
	s.providerCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightstatus_provider_calls_total",
		Help: "Total number of provider calls, by provider and outcome.",
	}, []string{"provider", "outcome"})
	s.providerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightstatus_provider_call_duration_seconds",
		Help:    "Provider call latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"provider"})

	s.register(reg, s.providerCallsTotal, "flightstatus_provider_calls_total")
	s.register(reg, s.providerCallDuration, "flightstatus_provider_call_duration_seconds")
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.snapshotFlights = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightstatus_scheduler_snapshot_flights",
		Help: "Number of flights in the last published snapshot.",
	})
	s.register(reg, s.snapshotFlights, "flightstatus_scheduler_snapshot_flights")
}

func (s *PrometheusSink) initNotifierMetrics(reg prometheus.Registerer) {
	s.notifyAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightstatus_notify_attempts_total",
		Help: "Total number of webhook notification attempts.",
	}, []string{"attempt", "status_class"})
	s.notifyOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightstatus_notify_outcomes_total",
		Help: "Total number of final notification outcomes.",
	}, []string{"outcome"})
	s.notifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flightstatus_notify_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.notifyAttemptsTotal, "flightstatus_notify_attempts_total")
	s.register(reg, s.notifyOutcomesTotal, "flightstatus_notify_outcomes_total")
	s.register(reg, s.notifyDuration, "flightstatus_notify_webhook_duration_seconds")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightstatus_eventbus_buffer_size",
		Help: "Current number of pending rebuild triggers.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightstatus_eventbus_buffer_capacity",
		Help: "Capacity of the rebuild trigger buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_eventbus_emit_errors_total",
		Help: "Total number of dropped rebuild triggers (buffer full).",
	})

	s.register(reg, s.bufferSize, "flightstatus_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "flightstatus_eventbus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "flightstatus_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flightstatus_leader_is_leader",
		Help: "1 if this instance runs the scheduler, 0 otherwise.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightstatus_leader_acquired_total",
		Help: "Total number of times leadership was acquired.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightstatus_leader_lost_total",
		Help: "Total number of times leadership was lost, by reason.",
	}, []string{"reason"})

	s.register(reg, s.isLeader, "flightstatus_leader_is_leader")
	s.register(reg, s.leaderAcquiredTotal, "flightstatus_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "flightstatus_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Str("metric", name).Msg("failed to register collector")
	}
}

// Reconciler metrics implementation

func (s *PrometheusSink) CycleStarted() {
	s.cyclesTotal.Inc()
}

func (s *PrometheusSink) CycleCompleted(duration time.Duration, due, fetched int) {
	s.cycleDuration.Observe(duration.Seconds())
	s.dueFlightsTotal.Add(float64(due))
	s.fetchedFlightsTotal.Add(float64(fetched))
}

func (s *PrometheusSink) CacheRejected(reason string) {
	s.cacheRejectionsTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) StateCoerced() {
	s.stateCoercionsTotal.Inc()
}

func (s *PrometheusSink) AssumedArrival() {
	s.assumedArrivalsTotal.Inc()
}

func (s *PrometheusSink) NextRefreshUpdate(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.nextRefreshSeconds.Set(delay.Seconds())
}

// Provider metrics implementation

func (s *PrometheusSink) ProviderCallCompleted(provider, outcome string, duration time.Duration) {
	s.providerCallsTotal.WithLabelValues(provider, outcome).Inc()
	s.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Scheduler metrics implementation

func (s *PrometheusSink) SnapshotPublished(flights int) {
	s.snapshotFlights.Set(float64(flights))
}

// Notifier metrics implementation

func (s *PrometheusSink) NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.notifyAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.notifyDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) NotificationOutcome(outcome string) {
	s.notifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
	} else {
		s.isLeader.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
