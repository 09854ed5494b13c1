// Package postgres stores manually entered and imported flight legs.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

//go:embed schema.sql
var schema string

var (
	ErrNotFound  = errors.New("flight not found")
	ErrDuplicate = errors.New("flight already exists")
)

// Store implements the itinerary source and the backfill writer on
// PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListFlights returns flights overlapping [from, to], ordered by scheduled
// departure.
func (s *Store) ListFlights(ctx context.Context, from, to time.Time, limit int) ([]domain.FlightRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListFlights, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FlightRecord
	for rows.Next() {
		rec, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// GetFlight returns one flight, or ErrNotFound.
func (s *Store) GetFlight(ctx context.Context, key string) (domain.FlightRecord, error) {
	rec, err := scanFlight(s.db.QueryRowContext(ctx, queryGetFlight, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FlightRecord{}, ErrNotFound
	}
	return rec, err
}

// CreateFlight inserts rec. Returns ErrDuplicate if the key exists.
func (s *Store) CreateFlight(ctx context.Context, rec domain.FlightRecord) error {
	source := rec.Source
	if source == "" {
		source = domain.SourceManual
	}
	travellers := rec.Travellers
	if travellers == nil {
		travellers = []string{}
	}
	_, err := s.db.ExecContext(ctx, queryInsertFlight,
		rec.FlightKey,
		string(source),
		rec.AirlineCode,
		rec.FlightNumber,
		rec.DepAirport,
		rec.ArrAirport,
		rec.Dep.Airport.TZ,
		rec.Arr.Airport.TZ,
		rec.ICAO24,
		pq.Array(travellers),
		nullTime(rec.ScheduledDeparture),
		nullTime(rec.ScheduledArrival),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteFlight removes a flight. Returns ErrNotFound if nothing was deleted.
func (s *Store) DeleteFlight(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, queryDeleteFlight, key)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteManualFlights removes every manually entered flight and returns how
// many were deleted. Imported flights are kept.
func (s *Store) DeleteManualFlights(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryDeleteManualFlights)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateRecord backfills static fields. Values are only written into
// columns that are still empty, so user-entered data is never overwritten.
func (s *Store) UpdateRecord(ctx context.Context, key string, u domain.RecordUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	result, err := s.db.ExecContext(ctx, queryBackfillFlight,
		key,
		u.DepAirport,
		u.ArrAirport,
		nullTime(u.ScheduledDeparture),
		nullTime(u.ScheduledArrival),
		u.DepTZ,
		u.ArrTZ,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (domain.FlightRecord, error) {
	var (
		rec        domain.FlightRecord
		source     string
		travellers pq.StringArray
		dep, arr   sql.NullTime
	)
	err := row.Scan(
		&rec.FlightKey,
		&source,
		&rec.AirlineCode,
		&rec.FlightNumber,
		&rec.DepAirport,
		&rec.ArrAirport,
		&rec.Dep.Airport.TZ,
		&rec.Arr.Airport.TZ,
		&rec.ICAO24,
		&travellers,
		&dep,
		&arr,
	)
	if err != nil {
		return domain.FlightRecord{}, err
	}
	rec.Source = domain.Source(source)
	rec.Dep.Airport.IATA = rec.DepAirport
	rec.Arr.Airport.IATA = rec.ArrAirport
	if len(travellers) > 0 {
		rec.Travellers = []string(travellers)
	}
	rec.ScheduledDeparture = timePtr(dep)
	rec.ScheduledArrival = timePtr(arr)
	return rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
