// Package notify delivers flight state changes to an optional webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
)

var defaultBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

const maxAttempts = 4

// DrainTimeout is the maximum time to wait for buffered changes during shutdown.
const DrainTimeout = 30 * time.Second

type Sender interface {
	Send(ctx context.Context, req Request) Result
}

// MetricsSink defines the interface for recording notifier metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotificationOutcome(outcome string)
}

type Request struct {
	URL     string
	Secret  string
	Timeout time.Duration
	EventID string
	Payload Payload
}

// Payload is the JSON body posted for one change.
type Payload struct {
	EventID string             `json:"event_id"`
	Type    string             `json:"type"`
	Change  domain.StateChange `json:"change"`
	SentAt  string             `json:"sent_at"`
}

const eventType = "flight.state_changed"

type Result struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r Result) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Result) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

type Notifier struct {
	config  Config
	sender  Sender
	metrics MetricsSink // optional, nil = disabled
	backoff []time.Duration
	clock   func() time.Time
	logger  zerolog.Logger
}

func New(config Config, sender Sender) *Notifier {
	return &Notifier{
		config:  config,
		sender:  sender,
		backoff: defaultBackoff,
		clock:   time.Now,
		logger:  log.WithComponent("notify"),
	}
}

// WithMetrics attaches a metrics sink to the notifier.
func (n *Notifier) WithMetrics(sink MetricsSink) *Notifier {
	n.metrics = sink
	return n
}

// Run delivers changes from the channel until ctx is cancelled, then drains
// what is still buffered.
func (n *Notifier) Run(ctx context.Context, ch <-chan domain.StateChange) {
	for {
		select {
		case <-ctx.Done():
			n.drain(ch)
			return
		case change := <-ch:
			if err := n.Notify(ctx, change); err != nil {
				n.logger.Warn().Err(err).Str("flight_key", change.FlightKey).Msg("notification not delivered")
			}
		}
	}
}

func (n *Notifier) drain(ch <-chan domain.StateChange) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			n.logger.Warn().Int("processed", count).Msg("drain timeout")
			return
		case change, ok := <-ch:
			if !ok {
				n.logger.Info().Int("processed", count).Msg("drain complete")
				return
			}
			if err := n.Notify(drainCtx, change); err != nil {
				n.logger.Warn().Err(err).Str("flight_key", change.FlightKey).Msg("drain delivery failed")
			}
			count++
		default:
			if count > 0 {
				n.logger.Info().Int("processed", count).Msg("drain complete")
			}
			return
		}
	}
}

// Notify posts one change, retrying transient failures on the backoff
// schedule.
func (n *Notifier) Notify(ctx context.Context, change domain.StateChange) error {
	if n.config.URL == "" {
		return nil
	}

	eventID := uuid.New().String()
	logger := n.logger.With().Str("flight_key", change.FlightKey).Str("event_id", eventID).Logger()

	req := Request{
		URL:     n.config.URL,
		Secret:  n.config.Secret,
		Timeout: n.config.Timeout,
		EventID: eventID,
		Payload: Payload{
			EventID: eventID,
			Type:    eventType,
			Change:  change,
		},
	}

	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			idx := attempt - 1
			if idx >= len(n.backoff) {
				idx = len(n.backoff) - 1
			}
			wait := n.backoff[idx]
			logger.Debug().Int("attempt", attempt).Dur("backoff", wait).Msg("retrying notification")

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				n.outcome(metrics.OutcomeAbandoned)
				return ctx.Err()
			case <-timer.C:
			}
		}

		req.Payload.SentAt = n.clock().UTC().Format(time.RFC3339)
		last = n.sender.Send(ctx, req)
		if n.metrics != nil {
			n.metrics.NotificationAttemptCompleted(attempt, metrics.ClassifyStatus(last.StatusCode, last.Error), last.Duration)
		}

		if last.IsSuccess() {
			logger.Info().Int("attempt", attempt).Str("state", change.State).Msg("notification delivered")
			n.outcome(metrics.OutcomeSuccess)
			return nil
		}
		if !last.IsRetryable() {
			break
		}
		logger.Warn().Int("attempt", attempt).Int("status", last.StatusCode).AnErr("send_error", last.Error).Msg("notification attempt failed")
	}

	n.outcome(metrics.OutcomeFailed)
	if last.Error != nil {
		return fmt.Errorf("notify %s: %w", change.FlightKey, last.Error)
	}
	return fmt.Errorf("notify %s: HTTP %d", change.FlightKey, last.StatusCode)
}

func (n *Notifier) outcome(o string) {
	if n.metrics != nil {
		n.metrics.NotificationOutcome(o)
	}
}
