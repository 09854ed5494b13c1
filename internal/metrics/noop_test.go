package metrics

import (
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	s.CycleStarted()
	s.CycleCompleted(100*time.Millisecond, 5, 2)
	s.CacheRejected(RejectDateMismatch)
	s.StateCoerced()
	s.AssumedArrival()
	s.NextRefreshUpdate(10 * time.Minute)

	s.ProviderCallCompleted("mock", ProviderOK, 10*time.Millisecond)
	s.SnapshotPublished(3)

	s.NotificationAttemptCompleted(1, StatusClass2xx, 200*time.Millisecond)
	s.NotificationOutcome(OutcomeSuccess)
	s.NotificationOutcome(OutcomeAbandoned)

	s.BufferSizeUpdate(10)
	s.BufferCapacitySet(100)
	s.EmitError()

	s.LeaderStatusChanged(true)
	s.LeaderAcquired()
	s.LeaderLost("shutdown")
}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)
