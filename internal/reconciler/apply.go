package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// sideLocation is the zone for naive timestamps on one side of a flight.
func (e *Engine) sideLocation(s *domain.Side) *time.Location {
	if s.Airport.TZ != "" {
		if loc, err := normalize.LoadZone(s.Airport.TZ); err == nil {
			return loc
		}
	}
	return e.viewer
}

func (e *Engine) parseSideTime(s *domain.Side, v string) *time.Time {
	t, ok := normalize.ParseInstantIn(v, e.sideLocation(s))
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

// applyStatus merges status onto rec. Parseable instants replace the
// schedule block, airport codes only fill gaps, and terminals and gates
// replace the stored value when present.
func (e *Engine) applyStatus(rec *domain.FlightRecord, status *domain.StatusPayload) {
	rec.AssumedArrival = false
	if status == nil {
		return
	}
	e.mergeSide(&rec.Dep, status.DepIATA, status.TerminalDep, status.GateDep,
		status.DepScheduled, status.DepEstimated, status.DepActual)
	e.mergeSide(&rec.Arr, status.ArrIATA, status.TerminalArr, status.GateArr,
		status.ArrScheduled, status.ArrEstimated, status.ArrActual)
	if state := strings.TrimSpace(status.State); state != "" {
		rec.StatusState = state
	}
}

func (e *Engine) mergeSide(s *domain.Side, iata, terminal, gate, scheduled, estimated, actual string) {
	if s.Airport.IATA == "" && iata != "" {
		s.Airport.IATA = strings.ToUpper(strings.TrimSpace(iata))
	}
	if t := e.parseSideTime(s, scheduled); t != nil {
		s.Scheduled = t
	}
	if t := e.parseSideTime(s, estimated); t != nil {
		s.Estimated = t
	}
	if t := e.parseSideTime(s, actual); t != nil {
		s.Actual = t
	}
	if v := strings.TrimSpace(terminal); v != "" {
		s.Terminal = v
	}
	if v := strings.TrimSpace(gate); v != "" {
		s.Gate = v
	}
}

// dateMismatch reports whether status describes a departure on another
// calendar day than the record, both projected into the departure zone.
func (e *Engine) dateMismatch(it *item, status *domain.StatusPayload) bool {
	if status == nil || it.scheduled == nil {
		return false
	}
	t := e.parseSideTime(&it.rec.Dep, status.DepScheduled)
	if t == nil {
		return false
	}
	tz := it.rec.Dep.Airport.TZ
	return normalize.DateInTimezone(*t, tz) != normalize.DateInTimezone(it.scheduled.UTC(), tz)
}

// correct applies the state-vs-time coercion and the assumed-arrival
// inference.
func (e *Engine) correct(rec *domain.FlightRecord, now time.Time) (coerced, assumed bool) {
	if domain.IsAirborneClaim(rec.StatusState) {
		dep := normalize.BestSideInstant(rec, domain.SideDep)
		if dep != nil && dep.After(now.Add(e.heuristics.CoercionGrace)) {
			rec.StatusState = domain.StateScheduled
			coerced = true
		}
	}

	if domain.IsTerminal(rec.StatusState) {
		return coerced, false
	}
	arr := normalize.BestSideInstant(rec, domain.SideArr)
	if arr == nil {
		return coerced, false
	}
	threshold := arr.Add(e.heuristics.AssumedArrivalGrace)
	if now.After(threshold) && (rec.StatusUpdatedAt == nil || rec.StatusUpdatedAt.Before(threshold)) {
		rec.StatusState = domain.StateArrived
		rec.AssumedArrival = true
		assumed = true
	}
	return coerced, assumed
}

// fillAirports looks up missing airport timezones. Lookup failures are
// ignored.
func (e *Engine) fillAirports(ctx context.Context, rec *domain.FlightRecord, logger zerolog.Logger) {
	for _, side := range []*domain.Side{&rec.Dep, &rec.Arr} {
		side.Airport.TZ = normalize.CanonicalZone(side.Airport.TZ)
		if e.directory == nil || side.Airport.TZ != "" || side.Airport.IATA == "" {
			continue
		}
		ap, err := e.directory.GetAirport(ctx, side.Airport.IATA)
		if err != nil {
			logger.Debug().Err(err).Str("iata", side.Airport.IATA).Msg("airport lookup failed")
			continue
		}
		if ap == nil || ap.TZ == "" {
			continue
		}
		side.Airport.TZ = normalize.CanonicalZone(ap.TZ)
		if side.Airport.Name == "" {
			side.Airport.Name = ap.Name
		}
		if side.Airport.City == "" {
			side.Airport.City = ap.City
		}
	}
}

// fillTZShort renders the zone abbreviation in effect at each side's best
// known instant.
func fillTZShort(rec *domain.FlightRecord, now time.Time) {
	for _, key := range []domain.SideKey{domain.SideDep, domain.SideArr} {
		side := rec.SideOf(key)
		if side.Airport.TZ == "" {
			continue
		}
		when := now
		if t := normalize.BestSideInstant(rec, key); t != nil {
			when = *t
		}
		side.Airport.TZShort = normalize.TZShortName(side.Airport.TZ, when)
	}
}

// backfill writes newly learned airports, zones and scheduled instants back
// to the manual store. Only fields that were empty are written.
func (e *Engine) backfill(ctx context.Context, it *item, status *domain.StatusPayload, logger zerolog.Logger) {
	rec := it.rec
	if e.writer == nil || !rec.IsManual() || rec.FlightKey == "" || status == nil {
		return
	}

	var u domain.RecordUpdate
	if strings.TrimSpace(rec.DepAirport) == "" && rec.Dep.Airport.IATA != "" {
		v := rec.Dep.Airport.IATA
		u.DepAirport = &v
	}
	if strings.TrimSpace(rec.ArrAirport) == "" && rec.Arr.Airport.IATA != "" {
		v := rec.Arr.Airport.IATA
		u.ArrAirport = &v
	}
	if it.storedTZ[0] == "" && rec.Dep.Airport.TZ != "" {
		v := rec.Dep.Airport.TZ
		u.DepTZ = &v
	}
	if it.storedTZ[1] == "" && rec.Arr.Airport.TZ != "" {
		v := rec.Arr.Airport.TZ
		u.ArrTZ = &v
	}
	if rec.ScheduledDeparture == nil {
		u.ScheduledDeparture = firstTime(rec.Dep.Scheduled, e.parseSideTime(&rec.Dep, status.DepScheduled))
	}
	if rec.ScheduledArrival == nil {
		u.ScheduledArrival = firstTime(rec.Arr.Scheduled, e.parseSideTime(&rec.Arr, status.ArrScheduled))
	}
	if u.IsEmpty() {
		return
	}

	if err := e.writer.UpdateRecord(ctx, rec.FlightKey, u); err != nil {
		logger.Warn().Err(err).Msg("backfill failed")
		return
	}
	if u.DepAirport != nil {
		rec.DepAirport = *u.DepAirport
	}
	if u.ArrAirport != nil {
		rec.ArrAirport = *u.ArrAirport
	}
	if u.DepTZ != nil {
		it.storedTZ[0] = *u.DepTZ
	}
	if u.ArrTZ != nil {
		it.storedTZ[1] = *u.ArrTZ
	}
	if u.ScheduledDeparture != nil {
		rec.ScheduledDeparture = u.ScheduledDeparture
	}
	if u.ScheduledArrival != nil {
		rec.ScheduledArrival = u.ScheduledArrival
	}
	logger.Debug().Msg("backfilled manual flight")
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil && !t.IsZero() {
			c := t.UTC()
			return &c
		}
	}
	return nil
}
