package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

func newTestTrigger() domain.Trigger {
	return domain.Trigger{
		Reason:    domain.TriggerFlightAdded,
		FlightKey: "AI-157-DEL-2026-01-31",
		At:        time.Now().UTC(),
	}
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	bus := NewEventBus[domain.Trigger](10)
	event := newTestTrigger()

	ctx := context.Background()
	if err := bus.Emit(ctx, event); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case got := <-bus.Channel():
		if got.FlightKey != event.FlightKey {
			t.Errorf("FlightKey = %v, want %v", got.FlightKey, event.FlightKey)
		}
		if got.Reason != event.Reason {
			t.Errorf("Reason = %v, want %v", got.Reason, event.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event on channel")
	}
}

func TestEventBus_BufferFull(t *testing.T) {
	bus := NewEventBus[domain.Trigger](1, WithEmitTimeout(50*time.Millisecond))

	ctx := context.Background()

	// Fill the buffer
	if err := bus.Emit(ctx, newTestTrigger()); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	// Second emit should timeout and return ErrBufferFull
	err := bus.Emit(ctx, newTestTrigger())
	if err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got: %v", err)
	}
}

func TestEventBus_ContextCancelled(t *testing.T) {
	bus := NewEventBus[domain.Trigger](1, WithEmitTimeout(5*time.Second))

	ctx := context.Background()

	if err := bus.Emit(ctx, newTestTrigger()); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Emit(cancelledCtx, newTestTrigger())
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestEventBus_TryEmit(t *testing.T) {
	bus := NewEventBus[domain.Trigger](1)

	if !bus.TryEmit(newTestTrigger()) {
		t.Fatal("first TryEmit should be accepted")
	}
	if bus.TryEmit(newTestTrigger()) {
		t.Error("TryEmit on a full buffer should be rejected")
	}
	if bus.Len() != 1 {
		t.Errorf("Len = %d, want 1", bus.Len())
	}
}

func TestEventBus_ConcurrentEmit(t *testing.T) {
	bus := NewEventBus[domain.StateChange](1000)
	ctx := context.Background()

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	var wg sync.WaitGroup
	var emitErrors atomic.Int64

	var received atomic.Int64
	done := make(chan struct{})
	go func() {
		for range bus.Channel() {
			if received.Add(1) >= numGoroutines*eventsPerGoroutine {
				close(done)
				return
			}
		}
	}()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := bus.Emit(ctx, domain.StateChange{FlightKey: "k"}); err != nil {
					emitErrors.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Logf("received %d of %d events", received.Load(), numGoroutines*eventsPerGoroutine)
	}

	if emitErrors.Load() > 0 {
		t.Errorf("had %d emit errors", emitErrors.Load())
	}
}

func TestEventBus_WithEmitTimeout(t *testing.T) {
	timeout := 100 * time.Millisecond
	bus := NewEventBus[domain.Trigger](1, WithEmitTimeout(timeout))

	if bus.emitTimeout != timeout {
		t.Errorf("emitTimeout = %v, want %v", bus.emitTimeout, timeout)
	}
}

func TestEventBus_DefaultEmitTimeout(t *testing.T) {
	bus := NewEventBus[domain.Trigger](10)

	if bus.emitTimeout != DefaultEmitTimeout {
		t.Errorf("emitTimeout = %v, want %v", bus.emitTimeout, DefaultEmitTimeout)
	}
}

// mockBusMetrics tracks calls to MetricsSink methods.
type mockBusMetrics struct {
	mu                  sync.Mutex
	bufferSizeCalls     []int
	bufferCapacityCalls []int
	emitErrorCalls      int
}

func (m *mockBusMetrics) BufferSizeUpdate(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferSizeCalls = append(m.bufferSizeCalls, size)
}

func (m *mockBusMetrics) BufferCapacitySet(capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferCapacityCalls = append(m.bufferCapacityCalls, capacity)
}

func (m *mockBusMetrics) EmitError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitErrorCalls++
}

func TestEventBus_WithMetrics(t *testing.T) {
	metrics := &mockBusMetrics{}
	bus := NewEventBus[domain.Trigger](10, WithMetrics(metrics))

	metrics.mu.Lock()
	capCalls := append([]int(nil), metrics.bufferCapacityCalls...)
	metrics.mu.Unlock()
	if len(capCalls) != 1 || capCalls[0] != 10 {
		t.Errorf("BufferCapacitySet should be called once with 10 on init, got %v", capCalls)
	}

	ctx := context.Background()
	if err := bus.Emit(ctx, newTestTrigger()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	metrics.mu.Lock()
	sizeCalls := append([]int(nil), metrics.bufferSizeCalls...)
	metrics.mu.Unlock()

	if len(sizeCalls) != 1 || sizeCalls[0] != 1 {
		t.Errorf("BufferSizeUpdate should be called once with 1 after emit, got %v", sizeCalls)
	}
}

func TestEventBus_MetricsOnBufferFull(t *testing.T) {
	metrics := &mockBusMetrics{}
	bus := NewEventBus[domain.Trigger](1, WithEmitTimeout(50*time.Millisecond), WithMetrics(metrics))

	ctx := context.Background()

	bus.Emit(ctx, newTestTrigger())
	bus.Emit(ctx, newTestTrigger())

	metrics.mu.Lock()
	errCalls := metrics.emitErrorCalls
	metrics.mu.Unlock()

	if errCalls != 1 {
		t.Errorf("EmitError should be called once on buffer full, got %d", errCalls)
	}
}
