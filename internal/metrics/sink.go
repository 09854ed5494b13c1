package metrics

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Reconciler metrics
	CycleStarted()
	CycleCompleted(duration time.Duration, due, fetched int)
	CacheRejected(reason string)
	StateCoerced()
	AssumedArrival()
	NextRefreshUpdate(delay time.Duration)

	// Provider metrics
	ProviderCallCompleted(provider, outcome string, duration time.Duration)

	// Scheduler metrics
	SnapshotPublished(flights int)

	// Notifier metrics
	NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotificationOutcome(outcome string)

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Reasons for CacheRejected.
const (
	RejectDateMismatch     = "date_mismatch"
	RejectProviderMismatch = "provider_mismatch"
	RejectTerminal         = "terminal"
)

// Outcome constants for ProviderCallCompleted.
const (
	ProviderOK          = "ok"
	ProviderEmpty       = "empty"
	ProviderErrorResult = "error_payload"
	ProviderFailed      = "failed"
	ProviderCircuitOpen = "circuit_open"
)

// Outcome constants for NotificationOutcome.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// StatusClass constants for NotificationAttemptCompleted.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusClassTimeout
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return StatusClassTimeout
		}
		if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial") {
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
