package refresh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/testutil"
)

var departure = testutil.MustTime("2026-01-30T14:05:00Z")

func scheduled(dep, arr *time.Time) *domain.FlightRecord {
	return &domain.FlightRecord{
		FlightKey: "AI-157-DEL-2026-01-30",
		Dep:       domain.Side{Scheduled: dep},
		Arr:       domain.Side{Scheduled: arr},
	}
}

func interval(t *testing.T, p Policy, rec *domain.FlightRecord, now time.Time, min time.Duration) time.Duration {
	t.Helper()
	next, ok := p.NextRefresh(rec, now, min)
	require.True(t, ok, "expected a next refresh at %s", now)
	return next.Sub(now)
}

func TestDefaultPolicy_Valid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestNextRefresh_NoInstants(t *testing.T) {
	_, ok := DefaultPolicy().NextRefresh(&domain.FlightRecord{}, departure, 0)
	assert.False(t, ok)
	_, ok = DefaultPolicy().NextRefresh(nil, departure, 0)
	assert.False(t, ok)
}

func TestNextRefresh_PreDepartureTiers(t *testing.T) {
	p := DefaultPolicy()
	dep := departure
	rec := scheduled(&dep, nil)

	tests := []struct {
		before time.Duration
		want   time.Duration
	}{
		{72 * time.Hour, 12 * time.Hour},
		{30 * time.Hour, 6 * time.Hour},
		{12 * time.Hour, 2 * time.Hour},
		{3 * time.Hour, 30 * time.Minute},
		{90 * time.Minute, 10 * time.Minute},
		{20 * time.Minute, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.before.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, interval(t, p, rec, dep.Add(-tt.before), 0))
		})
	}
}

func TestNextRefresh_MonotonicApproach(t *testing.T) {
	p := DefaultPolicy()
	dep := departure
	arr := dep.Add(285 * time.Minute)
	rec := scheduled(&dep, &arr)

	for _, min := range []time.Duration{0, 5 * time.Minute, 45 * time.Minute} {
		prev := time.Duration(1<<63 - 1)
		for now := dep.Add(-5 * 24 * time.Hour); now.Before(arr); now = now.Add(7 * time.Minute) {
			got := interval(t, p, rec, now, min)
			assert.LessOrEqual(t, got, prev, "interval grew at %s (min=%s)", now, min)
			assert.GreaterOrEqual(t, got, MinFloor)
			assert.GreaterOrEqual(t, got, min)
			prev = got
		}
	}
}

func TestNextRefresh_FarFutureRespectsLongCadence(t *testing.T) {
	dep := departure
	rec := scheduled(&dep, nil)
	for h := 49; h < 24*10; h += 13 {
		got := interval(t, DefaultPolicy(), rec, dep.Add(-time.Duration(h)*time.Hour), 10*time.Minute)
		assert.Equal(t, 12*time.Hour, got)
	}
}

func TestNextRefresh_InFlight(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	rec := scheduled(&dep, &arr)

	assert.Equal(t, 10*time.Minute, interval(t, DefaultPolicy(), rec, dep.Add(-time.Hour), 0))
	assert.Equal(t, 10*time.Minute, interval(t, DefaultPolicy(), rec, dep.Add(2*time.Hour), 0))
	assert.Equal(t, 10*time.Minute, interval(t, DefaultPolicy(), rec, arr, 0))
	// The configured minimum floors the in-flight cadence.
	assert.Equal(t, 20*time.Minute, interval(t, DefaultPolicy(), rec, dep.Add(time.Hour), 20*time.Minute))
}

func TestNextRefresh_AfterArrivalWithinGrace(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	rec := scheduled(&dep, &arr)

	d := DefaultPolicy().Evaluate(rec, arr.Add(2*time.Hour), 0)
	assert.Equal(t, PhaseFallback, d.Phase)
	assert.Equal(t, time.Hour, d.Interval)
}

func TestNextRefresh_ResolvedAfterGrace(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	rec := scheduled(&dep, &arr)

	for _, past := range []time.Duration{6*time.Hour + time.Second, 7 * time.Hour, 72 * time.Hour} {
		_, ok := DefaultPolicy().NextRefresh(rec, arr.Add(past), 0)
		assert.False(t, ok, "arrival %s in the past must stop polling", past)
	}

	// Arrival only, far in the past.
	_, ok := DefaultPolicy().NextRefresh(scheduled(nil, &arr), arr.Add(8*time.Hour), 0)
	assert.False(t, ok)

	// An actual arrival wins over the scheduled one.
	rec.Arr.Actual = testutil.Ptr(arr.Add(-time.Hour))
	_, ok = DefaultPolicy().NextRefresh(rec, arr.Add(5*time.Hour+time.Minute), 0)
	assert.False(t, ok)
}

func TestNextRefresh_OrphanDeparture(t *testing.T) {
	dep := departure
	rec := scheduled(&dep, nil)

	d := DefaultPolicy().Evaluate(rec, dep.Add(23*time.Hour), 0)
	assert.Equal(t, PhaseInFlight, d.Phase)

	_, ok := DefaultPolicy().NextRefresh(rec, dep.Add(25*time.Hour), 0)
	assert.False(t, ok)
}

func TestNextRefresh_TerminalStates(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	for _, state := range []string{"landed", "Arrived", "cancelled", "canceled"} {
		rec := scheduled(&dep, &arr)
		rec.StatusState = state
		d := DefaultPolicy().Evaluate(rec, dep.Add(-3*24*time.Hour), 0)
		assert.True(t, d.Stop(), state)
		assert.Equal(t, PhaseTerminal, d.Phase)
	}
}

func TestNextRefresh_DivertedIsFrequent(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	rec := scheduled(&dep, &arr)
	rec.StatusState = "diverted"

	d := DefaultPolicy().Evaluate(rec, arr.Add(3*time.Hour), 0)
	assert.Equal(t, PhaseDiverted, d.Phase)
	assert.Equal(t, 10*time.Minute, d.Interval)
}

func TestNextRefresh_FloorIsAtLeastOneMinute(t *testing.T) {
	p := DefaultPolicy()
	p.InFlight = time.Second
	p.Imminent = time.Second
	dep := departure
	rec := scheduled(&dep, nil)

	assert.Equal(t, MinFloor, interval(t, p, rec, dep, 0))
}

func TestNextRefresh_Pure(t *testing.T) {
	dep := departure
	arr := dep.Add(4 * time.Hour)
	rec := scheduled(&dep, &arr)
	rec.StatusState = "active"
	before := *rec

	a, _ := DefaultPolicy().NextRefresh(rec, dep, 0)
	b, _ := DefaultPolicy().NextRefresh(rec, dep, 0)
	assert.True(t, a.Equal(b))
	assert.Equal(t, before, *rec)
}

func TestPolicyValidate_RejectsGrowingIntervals(t *testing.T) {
	p := DefaultPolicy()
	p.PreDeparture[2].Interval = 8 * time.Hour
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.InFlight = time.Hour
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.PreDeparture[1].Beyond = 72 * time.Hour
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Fallback = 0
	assert.Error(t, p.Validate())
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := []byte(`
in_flight: 5m
imminent: 8m
pre_departure:
  - beyond: 24h
    interval: 4h
  - beyond: 3h
    interval: 20m
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, p.InFlight)
	assert.Equal(t, 6*time.Hour, p.ResolvedGrace)
	require.Len(t, p.PreDeparture, 2)
	assert.Equal(t, 4*time.Hour, p.PreDeparture[0].Interval)
}

func TestLoadPolicy_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("in_flight: 3h\n"), 0o600))

	_, err := LoadPolicy(path)
	assert.Error(t, err)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
