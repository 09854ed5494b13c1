package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) CycleStarted()                                                           {}
func (n *NoopSink) CycleCompleted(duration time.Duration, due, fetched int)                 {}
func (n *NoopSink) CacheRejected(reason string)                                             {}
func (n *NoopSink) StateCoerced()                                                           {}
func (n *NoopSink) AssumedArrival()                                                         {}
func (n *NoopSink) NextRefreshUpdate(delay time.Duration)                                   {}
func (n *NoopSink) ProviderCallCompleted(provider, outcome string, d time.Duration)         {}
func (n *NoopSink) SnapshotPublished(flights int)                                           {}
func (n *NoopSink) NotificationAttemptCompleted(attempt int, class string, d time.Duration) {}
func (n *NoopSink) NotificationOutcome(outcome string)                                      {}
func (n *NoopSink) BufferSizeUpdate(size int)                                               {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                          {}
func (n *NoopSink) EmitError()                                                              {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                       {}
func (n *NoopSink) LeaderAcquired()                                                         {}
func (n *NoopSink) LeaderLost(reason string)                                                {}
