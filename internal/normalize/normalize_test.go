package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/testutil"
)

func TestParseInstantIn_Formats(t *testing.T) {
	want := time.Date(2026, 1, 30, 13, 25, 0, 0, time.UTC)
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	inputs := []string{
		"2026-01-30T13:25:00Z",
		"2026-01-30T13:25:00.000Z",
		"2026-01-30T18:55:00+05:30",
		"2026-01-30T18:55:00+0530",
		"2026-01-30 18:55:00+05:30",
		"2026-01-30T13:25Z",
		"2026-01-30T18:55+05:30",
		"  2026-01-30T13:25:00z ",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, ok := ParseInstantIn(in, kolkata)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestParseInstantIn_NaiveUsesViewerZone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	got, ok := ParseInstantIn("2026-01-30T18:55:00", kolkata)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 30, 13, 25, 0, 0, time.UTC), got.UTC())

	got, ok = ParseInstantIn("2026-01-30 18:55", time.UTC)
	require.True(t, ok)
	assert.Equal(t, 18, got.Hour())
}

func TestParseInstantIn_Rejects(t *testing.T) {
	var nilTime *time.Time
	for _, v := range []any{nil, "", "soon", "2026-13-40T99:00:00Z", 42, nilTime, time.Time{}} {
		_, ok := ParseInstantIn(v, time.UTC)
		assert.False(t, ok, "%v should not parse", v)
	}
}

func TestParseInstantIn_TypedValues(t *testing.T) {
	ts := testutil.MustTime("2026-01-30T13:25:00Z")
	got, ok := ParseInstant(ts)
	require.True(t, ok)
	assert.True(t, ts.Equal(got))

	got, ok = ParseInstant(&ts)
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestBestSideInstant_Priority(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	sched := time.Date(2026, 1, 30, 20, 0, 0, 0, kolkata)
	est := testutil.MustTime("2026-01-30T15:00:00Z")
	act := testutil.MustTime("2026-01-30T15:10:00Z")

	rec := &domain.FlightRecord{Dep: domain.Side{Scheduled: &sched}}
	got := BestSideInstant(rec, domain.SideDep)
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, sched.Equal(*got))

	rec.Dep.Estimated = &est
	assert.True(t, est.Equal(*BestSideInstant(rec, domain.SideDep)))

	rec.Dep.Actual = &act
	assert.True(t, act.Equal(*BestSideInstant(rec, domain.SideDep)))

	got = BestSideInstant(rec, domain.SideDep, domain.FieldScheduled)
	assert.True(t, sched.Equal(*got))

	assert.Nil(t, BestSideInstant(rec, domain.SideArr))
	assert.Nil(t, BestSideInstant(nil, domain.SideArr))
}

func TestDateInTimezone(t *testing.T) {
	// 20:30Z on the 30th is already the 31st in Kolkata.
	ts := testutil.MustTime("2026-01-30T20:30:00Z")

	assert.Equal(t, "2026-01-31", DateInTimezone(ts, "Asia/Kolkata"))
	assert.Equal(t, "2026-01-31", DateInTimezone(ts, "Asia/Calcutta"))
	assert.Equal(t, "2026-01-30", DateInTimezone(ts, "America/New_York"))
	assert.Equal(t, "2026-01-30", DateInTimezone(ts, "Mars/Olympus"))
	assert.Equal(t, "2026-01-30", DateInTimezone(ts, ""))
	assert.Equal(t, "", DateInTimezone(time.Time{}, "UTC"))
}

func TestTZShortName(t *testing.T) {
	when := testutil.MustTime("2026-01-30T12:00:00Z")

	assert.Equal(t, "IST", TZShortName("Asia/Kolkata", when))
	assert.Equal(t, "UTC", TZShortName("UTC", when))
	assert.Equal(t, "-03:00", TZShortName("America/Sao_Paulo", when))
	assert.Equal(t, "", TZShortName("Nowhere/Land", when))
	assert.Equal(t, "", TZShortName("", when))
}
