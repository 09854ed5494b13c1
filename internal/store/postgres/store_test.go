package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/testutil"
)

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *pq.StringArray:
			*d = v.(pq.StringArray)
		case *sql.NullTime:
			*d = v.(sql.NullTime)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanFlight(t *testing.T) {
	dep := testutil.MustTime("2026-01-30T20:00:00Z")
	row := fakeRow{values: []any{
		"AI-157-DEL-2026-01-31", "manual", "AI", "157",
		"DEL", "CDG", "Asia/Kolkata", "", "",
		pq.StringArray{"Asha"},
		sql.NullTime{Time: dep, Valid: true},
		sql.NullTime{},
	}}

	rec, err := scanFlight(row)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, rec.Source)
	assert.Equal(t, "DEL", rec.Dep.Airport.IATA)
	assert.Equal(t, "Asia/Kolkata", rec.Dep.Airport.TZ)
	assert.Equal(t, []string{"Asha"}, rec.Travellers)
	require.NotNil(t, rec.ScheduledDeparture)
	assert.True(t, rec.ScheduledDeparture.Equal(dep))
	assert.Nil(t, rec.ScheduledArrival)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
	assert.False(t, isUniqueViolation(nil))
}

func TestNullTime(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)
	assert.False(t, nullTime(&time.Time{}).Valid)

	ts := time.Date(2026, 1, 30, 20, 0, 0, 0, time.FixedZone("IST", 19800))
	nt := nullTime(&ts)
	assert.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
	assert.True(t, timePtr(nt).Equal(ts))
}

// openTestDB connects to TEST_DATABASE_URL or skips.
func openTestDB(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	ctx := testutil.TestContext(t)
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = db.ExecContext(ctx, `DELETE FROM flights WHERE flight_key LIKE 'TEST-%'`)
	require.NoError(t, err)
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openTestDB(t)
	ctx := testutil.TestContext(t)

	dep := testutil.MustTime("2026-01-30T20:00:00Z")
	rec := domain.FlightRecord{
		FlightKey:          "TEST-AI-157",
		Source:             domain.SourceManual,
		AirlineCode:        "AI",
		FlightNumber:       "157",
		ScheduledDeparture: &dep,
	}
	require.NoError(t, s.CreateFlight(ctx, rec))
	assert.ErrorIs(t, s.CreateFlight(ctx, rec), ErrDuplicate)

	// Backfill fills empty columns and leaves set ones alone.
	depAirport := "DEL"
	depTZ := "Asia/Kolkata"
	other := dep.Add(time.Hour)
	require.NoError(t, s.UpdateRecord(ctx, rec.FlightKey, domain.RecordUpdate{
		DepAirport:         &depAirport,
		DepTZ:              &depTZ,
		ScheduledDeparture: &other,
	}))
	got, err := s.GetFlight(ctx, rec.FlightKey)
	require.NoError(t, err)
	assert.Equal(t, "DEL", got.DepAirport)
	assert.Equal(t, "Asia/Kolkata", got.Dep.Airport.TZ)
	assert.Empty(t, got.Arr.Airport.TZ)
	assert.True(t, got.ScheduledDeparture.Equal(dep))

	otherTZ := "Europe/London"
	require.NoError(t, s.UpdateRecord(ctx, rec.FlightKey, domain.RecordUpdate{DepTZ: &otherTZ}))
	got, err = s.GetFlight(ctx, rec.FlightKey)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", got.Dep.Airport.TZ, "a stored zone is never overwritten")

	list, err := s.ListFlights(ctx, dep.Add(-time.Hour), dep.Add(time.Hour), 10)
	require.NoError(t, err)
	var keys []string
	for _, f := range list {
		keys = append(keys, f.FlightKey)
	}
	assert.Contains(t, keys, rec.FlightKey)

	imported := rec
	imported.FlightKey = "TEST-BA-117"
	imported.Source = domain.SourceImport
	require.NoError(t, s.CreateFlight(ctx, imported))

	require.NoError(t, s.DeleteFlight(ctx, rec.FlightKey))
	assert.ErrorIs(t, s.DeleteFlight(ctx, rec.FlightKey), ErrNotFound)

	manual := rec
	manual.FlightKey = "TEST-AI-158"
	require.NoError(t, s.CreateFlight(ctx, manual))
	n, err := s.DeleteManualFlights(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	_, err = s.GetFlight(ctx, manual.FlightKey)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetFlight(ctx, imported.FlightKey)
	assert.NoError(t, err, "imported flights are kept")
	require.NoError(t, s.DeleteFlight(ctx, imported.FlightKey))
	_, err = s.GetFlight(ctx, rec.FlightKey)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateRecord(ctx, rec.FlightKey, domain.RecordUpdate{DepAirport: &depAirport}), ErrNotFound)
}

var _ interface {
	UpdateRecord(ctx context.Context, key string, u domain.RecordUpdate) error
} = (*Store)(nil)
