// Package channel is the in-process event bus between the HTTP surface, the
// rebuild loop and the notifier.
package channel

import (
	"context"
	"errors"
	"time"
)

// DefaultEmitTimeout bounds how long Emit waits for buffer space.
const DefaultEmitTimeout = 5 * time.Second

// ErrBufferFull is returned when the buffer stays full for the emit timeout.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink receives buffer gauges. metrics.Sink satisfies it.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type config struct {
	emitTimeout time.Duration
	metrics     MetricsSink
}

// Option configures an EventBus.
type Option func(*config)

// WithEmitTimeout sets how long Emit blocks on a full buffer.
func WithEmitTimeout(d time.Duration) Option {
	return func(c *config) {
		c.emitTimeout = d
	}
}

// WithMetrics attaches a buffer metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// EventBus is a buffered channel of T with bounded-wait emits.
type EventBus[T any] struct {
	ch          chan T
	emitTimeout time.Duration
	metrics     MetricsSink
}

func NewEventBus[T any](buffer int, opts ...Option) *EventBus[T] {
	cfg := config{emitTimeout: DefaultEmitTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &EventBus[T]{
		ch:          make(chan T, buffer),
		emitTimeout: cfg.emitTimeout,
		metrics:     cfg.metrics,
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit enqueues event, waiting up to the emit timeout for space.
func (b *EventBus[T]) Emit(ctx context.Context, event T) error {
	select {
	case b.ch <- event:
		b.updateSize()
		return nil
	default:
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateSize()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

// TryEmit enqueues event without blocking and reports whether it was
// accepted. Rebuild triggers use it: a full buffer already guarantees a
// pending rebuild.
func (b *EventBus[T]) TryEmit(event T) bool {
	select {
	case b.ch <- event:
		b.updateSize()
		return true
	default:
		return false
	}
}

func (b *EventBus[T]) Channel() <-chan T {
	return b.ch
}

// Len reports the number of buffered events.
func (b *EventBus[T]) Len() int {
	return len(b.ch)
}

func (b *EventBus[T]) updateSize() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}
