// Package refresh decides when a flight should next be polled.
//
// Everything here is pure: no I/O, no clock reads, no mutation of the
// record. The reconciler passes the current instant explicitly.
package refresh

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// MinFloor is the absolute lower bound on any returned interval.
const MinFloor = 60 * time.Second

// Tier applies Interval while departure is more than Beyond away.
type Tier struct {
	Beyond   time.Duration `yaml:"beyond"`
	Interval time.Duration `yaml:"interval"`
}

// Policy is the cadence table. All thresholds are overridable from YAML.
type Policy struct {
	// ResolvedGrace stops polling this long after the best arrival instant.
	ResolvedGrace time.Duration `yaml:"resolved_grace"`
	// OrphanDepartureGrace stops polling a flight with no arrival instant
	// this long after departure.
	OrphanDepartureGrace time.Duration `yaml:"orphan_departure_grace"`
	// InFlightWindow opens the in-flight phase this long before departure.
	InFlightWindow time.Duration `yaml:"in_flight_window"`
	InFlight       time.Duration `yaml:"in_flight"`

	// PreDeparture is ordered from farthest to nearest.
	PreDeparture []Tier        `yaml:"pre_departure"`
	Imminent     time.Duration `yaml:"imminent"`
	Fallback     time.Duration `yaml:"fallback"`
}

// DefaultPolicy returns the built-in cadence table.
func DefaultPolicy() Policy {
	return Policy{
		ResolvedGrace:        6 * time.Hour,
		OrphanDepartureGrace: 24 * time.Hour,
		InFlightWindow:       time.Hour,
		InFlight:             10 * time.Minute,
		PreDeparture: []Tier{
			{Beyond: 48 * time.Hour, Interval: 12 * time.Hour},
			{Beyond: 24 * time.Hour, Interval: 6 * time.Hour},
			{Beyond: 6 * time.Hour, Interval: 2 * time.Hour},
			{Beyond: 2 * time.Hour, Interval: 30 * time.Minute},
		},
		Imminent: 10 * time.Minute,
		Fallback: time.Hour,
	}
}

// Validate checks that every interval is positive and that intervals never
// grow as departure approaches.
func (p Policy) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"resolved_grace":         p.ResolvedGrace,
		"orphan_departure_grace": p.OrphanDepartureGrace,
		"in_flight_window":       p.InFlightWindow,
		"in_flight":              p.InFlight,
		"imminent":               p.Imminent,
		"fallback":               p.Fallback,
	}
	names := make([]string, 0, len(positive))
	for name := range positive {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	for i, t := range p.PreDeparture {
		if t.Interval <= 0 || t.Beyond <= 0 {
			errs = append(errs, fmt.Errorf("pre_departure[%d]: beyond and interval must be positive", i))
			continue
		}
		if i == 0 {
			continue
		}
		prev := p.PreDeparture[i-1]
		if t.Beyond >= prev.Beyond {
			errs = append(errs, fmt.Errorf("pre_departure[%d]: beyond %s must be less than %s", i, t.Beyond, prev.Beyond))
		}
		if t.Interval > prev.Interval {
			errs = append(errs, fmt.Errorf("pre_departure[%d]: interval %s exceeds farther tier %s", i, t.Interval, prev.Interval))
		}
	}
	if n := len(p.PreDeparture); n > 0 && p.Imminent > p.PreDeparture[n-1].Interval {
		errs = append(errs, fmt.Errorf("imminent %s exceeds nearest tier %s", p.Imminent, p.PreDeparture[n-1].Interval))
	}
	if p.InFlight > p.Imminent {
		errs = append(errs, fmt.Errorf("in_flight %s exceeds imminent %s", p.InFlight, p.Imminent))
	}
	return errors.Join(errs...)
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep
// their default values.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read refresh policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse refresh policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid refresh policy %s: %w", path, err)
	}
	return p, nil
}

// Phase names the branch NextRefresh took. Used for logging.
type Phase string

const (
	PhaseUnschedulable Phase = "unschedulable"
	PhaseResolved      Phase = "resolved"
	PhaseTerminal      Phase = "terminal"
	PhaseDiverted      Phase = "diverted"
	PhaseInFlight      Phase = "in_flight"
	PhasePreDeparture  Phase = "pre_departure"
	PhaseFallback      Phase = "fallback"
)

// Decision is the full result of evaluating the policy for one record.
// Interval is zero when no further refresh is needed.
type Decision struct {
	Phase    Phase
	Interval time.Duration
}

// Stop reports whether the record needs no further polling.
func (d Decision) Stop() bool {
	return d.Interval == 0
}

// Evaluate classifies rec at now and picks its cadence.
func (p Policy) Evaluate(rec *domain.FlightRecord, now time.Time, minInterval time.Duration) Decision {
	dep := normalize.BestSideInstant(rec, domain.SideDep)
	arr := normalize.BestSideInstant(rec, domain.SideArr)

	if dep == nil && arr == nil {
		return Decision{Phase: PhaseUnschedulable}
	}
	if arr != nil && now.After(arr.Add(p.ResolvedGrace)) {
		return Decision{Phase: PhaseResolved}
	}
	if dep != nil && arr == nil && now.After(dep.Add(p.OrphanDepartureGrace)) {
		return Decision{Phase: PhaseResolved}
	}

	state := ""
	if rec != nil {
		state = rec.StatusState
	}
	if domain.IsTerminal(state) {
		return Decision{Phase: PhaseTerminal}
	}

	floor := MinFloor
	if minInterval > floor {
		floor = minInterval
	}
	floored := func(phase Phase, d time.Duration) Decision {
		if d < floor {
			d = floor
		}
		return Decision{Phase: phase, Interval: d}
	}

	if domain.IsDiverted(state) {
		return floored(PhaseDiverted, p.InFlight)
	}
	if dep != nil && !now.Before(dep.Add(-p.InFlightWindow)) && (arr == nil || !now.After(*arr)) {
		return floored(PhaseInFlight, p.InFlight)
	}
	if dep != nil && now.Before(*dep) {
		return floored(PhasePreDeparture, p.preDepartureInterval(dep.Sub(now)))
	}
	return floored(PhaseFallback, p.Fallback)
}

func (p Policy) preDepartureInterval(untilDep time.Duration) time.Duration {
	for _, t := range p.PreDeparture {
		if untilDep > t.Beyond {
			return t.Interval
		}
	}
	return p.Imminent
}

// NextRefresh returns the next check instant for rec, or false when the
// flight needs no further polling.
func (p Policy) NextRefresh(rec *domain.FlightRecord, now time.Time, minInterval time.Duration) (time.Time, bool) {
	d := p.Evaluate(rec, now, minInterval)
	if d.Stop() {
		return time.Time{}, false
	}
	return now.Add(d.Interval), true
}
