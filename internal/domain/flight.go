package domain

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies where a FlightRecord was ingested from.
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// SideKey selects the departure or arrival half of a FlightRecord.
type SideKey string

const (
	SideDep SideKey = "dep"
	SideArr SideKey = "arr"
)

// TimeField names one of the instants held by a Side.
type TimeField string

const (
	FieldActual    TimeField = "actual"
	FieldEstimated TimeField = "estimated"
	FieldScheduled TimeField = "scheduled"
)

type Airport struct {
	IATA    string `json:"iata,omitempty"`
	Name    string `json:"name,omitempty"`
	City    string `json:"city,omitempty"`
	TZ      string `json:"tz,omitempty"`
	TZShort string `json:"tz_short,omitempty"`
}

// Side is the schedule block for one end of a flight leg.
type Side struct {
	Airport   Airport    `json:"airport"`
	Scheduled *time.Time `json:"scheduled,omitempty"`
	Estimated *time.Time `json:"estimated,omitempty"`
	Actual    *time.Time `json:"actual,omitempty"`
	Terminal  string     `json:"terminal,omitempty"`
	Gate      string     `json:"gate,omitempty"`
}

// Time returns the instant stored under field, or nil.
func (s Side) Time(field TimeField) *time.Time {
	switch field {
	case FieldActual:
		return s.Actual
	case FieldEstimated:
		return s.Estimated
	case FieldScheduled:
		return s.Scheduled
	default:
		return nil
	}
}

// FlightRecord is one itinerary leg under tracking.
//
// Derived fields are owned by the reconciler and recomputed every cycle from
// the schedule and status blocks.
type FlightRecord struct {
	FlightKey    string   `json:"flight_key"`
	Source       Source   `json:"source"`
	AirlineCode  string   `json:"airline_code"`
	FlightNumber string   `json:"flight_number"`
	DepAirport   string   `json:"dep_airport,omitempty"`
	ArrAirport   string   `json:"arr_airport,omitempty"`
	ICAO24       string   `json:"icao24,omitempty"`
	Travellers   []string `json:"travellers,omitempty"`

	// Static schedule captured at ingestion. Backfilled from provider data
	// for manual records when missing.
	ScheduledDeparture *time.Time `json:"scheduled_departure,omitempty"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival,omitempty"`

	Dep Side `json:"dep"`
	Arr Side `json:"arr"`

	Status          *StatusPayload `json:"status,omitempty"`
	StatusState     string         `json:"status_state,omitempty"`
	StatusUpdatedAt *time.Time     `json:"status_updated_at,omitempty"`

	DelayStatus              string `json:"delay_status,omitempty"`
	DelayStatusKey           string `json:"delay_status_key,omitempty"`
	DelayMinutes             *int   `json:"delay_minutes"`
	DurationScheduledMinutes *int   `json:"duration_scheduled_minutes"`
	DurationEstimatedMinutes *int   `json:"duration_estimated_minutes"`
	DurationActualMinutes    *int   `json:"duration_actual_minutes"`
	DurationMinutes          *int   `json:"duration_minutes"`
	AssumedArrival           bool   `json:"assumed_arrival,omitempty"`
}

// SideOf returns a pointer to the requested side so callers can mutate it.
func (f *FlightRecord) SideOf(side SideKey) *Side {
	if side == SideArr {
		return &f.Arr
	}
	return &f.Dep
}

// FlightIATA returns the airline code and number joined, e.g. "AI157".
func (f FlightRecord) FlightIATA() string {
	return strings.ToUpper(strings.TrimSpace(f.AirlineCode)) + strings.TrimSpace(f.FlightNumber)
}

// IsManual reports whether the record originated from manual entry.
// Records without a source are treated as manual.
func (f FlightRecord) IsManual() bool {
	return f.Source == "" || f.Source == SourceManual
}

// FlightKeyFor builds the ingestion key for a leg, e.g. "AI-157-DEL-2026-01-30".
// The date is the departure date in the departure airport's calendar.
func FlightKeyFor(airline, number, depIATA, date string) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(strings.TrimSpace(airline)),
		strings.TrimSpace(number),
		strings.ToUpper(strings.TrimSpace(depIATA)),
		date,
	)
}

// RecordUpdate is a backfill patch for a stored record. Nil fields are left untouched.
type RecordUpdate struct {
	DepAirport         *string
	ArrAirport         *string
	DepTZ              *string
	ArrTZ              *string
	ScheduledDeparture *time.Time
	ScheduledArrival   *time.Time
}

func (u RecordUpdate) IsEmpty() bool {
	return u.DepAirport == nil && u.ArrAirport == nil &&
		u.DepTZ == nil && u.ArrTZ == nil &&
		u.ScheduledDeparture == nil && u.ScheduledArrival == nil
}
