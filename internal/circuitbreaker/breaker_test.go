package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/testutil"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC))
	return New(threshold, cooldown).WithClock(clock.Now), clock
}

func TestAllow_UnknownProvider_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	if err := cb.Allow("aviationstack"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	cb.RecordFailure("aviationstack")
	cb.RecordFailure("aviationstack")
	if err := cb.Allow("aviationstack"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("aviationstack")
	}
	if err := cb.Allow("aviationstack"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := cb.State("aviationstack"); got != "open" {
		t.Errorf("State = %q, want open", got)
	}
	// Other providers are unaffected.
	if err := cb.Allow("airlabs"); err != nil {
		t.Fatalf("expected airlabs allowed, got %v", err)
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("airlabs")
	}
	clock.Advance(time.Minute)
	if err := cb.Allow("airlabs"); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow("airlabs"); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
	if got := cb.State("airlabs"); got != "half_open" {
		t.Errorf("State = %q, want half_open", got)
	}
}

func TestRecordSuccess_ResetsToClosed(t *testing.T) {
	cb, clock := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("airlabs")
	}
	clock.Advance(2 * time.Minute)
	cb.Allow("airlabs")
	cb.RecordSuccess("airlabs")

	if err := cb.Allow("airlabs"); err != nil {
		t.Fatalf("expected closed circuit after success, got %v", err)
	}
	if len(cb.Blocked()) != 0 {
		t.Errorf("Blocked = %v, want empty", cb.Blocked())
	}
}

func TestRecordFailure_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("flightradar24")
	}
	clock.Advance(time.Minute)
	cb.Allow("flightradar24")
	cb.RecordFailure("flightradar24")

	if err := cb.Allow("flightradar24"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := cb.Allow("flightradar24"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("cooldown restarts after failed probe, got %v", err)
	}
}

func TestRecordSuccess_ResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	cb.RecordFailure("airlabs")
	cb.RecordFailure("airlabs")
	cb.RecordSuccess("airlabs")
	cb.RecordFailure("airlabs")
	cb.RecordFailure("airlabs")
	if err := cb.Allow("airlabs"); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
}

func TestBlocked_Sorted(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	cb.RecordFailure("opensky")
	cb.RecordFailure("airlabs")

	got := cb.Blocked()
	if len(got) != 2 || got[0] != "airlabs" || got[1] != "opensky" {
		t.Errorf("Blocked = %v, want [airlabs opensky]", got)
	}
}
