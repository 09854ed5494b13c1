// Package derive computes delay and duration fields from a record's
// schedule blocks. The functions are pure and idempotent.
package derive

import (
	"math"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// Delay labels and their machine keys.
const (
	DelayOnTime    = "On Time"
	DelayDelayed   = "Delayed"
	DelayCancelled = "Cancelled"
	DelayUnknown   = "Unknown"

	KeyOnTime    = "on_time"
	KeyDelayed   = "delayed"
	KeyCancelled = "cancelled"
	KeyUnknown   = "unknown"
)

// DefaultDelayGrace is the lateness tolerated before a flight is Delayed.
const DefaultDelayGrace = 10 * time.Minute

// DelayResult is the outcome of Delay. Minutes is nil when no reference
// pair was available or the flight is cancelled.
type DelayResult struct {
	Status  string
	Key     string
	Minutes *int
}

func firstOf(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			return t
		}
	}
	return nil
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

// Delay compares the scheduled instant against the actual or estimated
// instant, preferring the arrival side and falling back to departure.
func Delay(rec *domain.FlightRecord, grace time.Duration) DelayResult {
	if domain.IsCancelled(rec.StatusState) {
		return DelayResult{Status: DelayCancelled, Key: KeyCancelled}
	}

	sched, observed := rec.Arr.Scheduled, firstOf(rec.Arr.Actual, rec.Arr.Estimated)
	if sched == nil || observed == nil {
		sched, observed = rec.Dep.Scheduled, firstOf(rec.Dep.Actual, rec.Dep.Estimated)
	}
	if sched == nil || observed == nil {
		return DelayResult{Status: DelayUnknown, Key: KeyUnknown}
	}

	mins := roundMinutes(observed.Sub(*sched))
	if time.Duration(mins)*time.Minute > grace {
		return DelayResult{Status: DelayDelayed, Key: KeyDelayed, Minutes: &mins}
	}
	return DelayResult{Status: DelayOnTime, Key: KeyOnTime, Minutes: &mins}
}

// DurationResult holds leg durations in whole minutes.
type DurationResult struct {
	Scheduled *int
	Estimated *int
	Actual    *int
}

// Best returns actual, then estimated, then scheduled.
func (d DurationResult) Best() *int {
	switch {
	case d.Actual != nil:
		return d.Actual
	case d.Estimated != nil:
		return d.Estimated
	default:
		return d.Scheduled
	}
}

func span(from, to *time.Time) *int {
	if from == nil || to == nil {
		return nil
	}
	d := to.Sub(*from)
	if d < 0 {
		return nil
	}
	m := roundMinutes(d)
	return &m
}

// Durations computes the scheduled, estimated and actual leg durations.
// The estimated span uses the actual instant on either end when known.
func Durations(rec *domain.FlightRecord) DurationResult {
	return DurationResult{
		Scheduled: span(rec.Dep.Scheduled, rec.Arr.Scheduled),
		Estimated: span(firstOf(rec.Dep.Actual, rec.Dep.Estimated), firstOf(rec.Arr.Actual, rec.Arr.Estimated)),
		Actual:    span(rec.Dep.Actual, rec.Arr.Actual),
	}
}

// Apply sets every derived field on rec.
func Apply(rec *domain.FlightRecord, grace time.Duration) {
	d := Delay(rec, grace)
	rec.DelayStatus = d.Status
	rec.DelayStatusKey = d.Key
	rec.DelayMinutes = d.Minutes

	dur := Durations(rec)
	rec.DurationScheduledMinutes = dur.Scheduled
	rec.DurationEstimatedMinutes = dur.Estimated
	rec.DurationActualMinutes = dur.Actual
	rec.DurationMinutes = dur.Best()
}
