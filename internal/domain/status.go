package domain

import (
	"strings"
	"time"
)

// Coarse lifecycle labels. Providers report these in varying case; compare
// through the helpers below rather than with ==.
const (
	StateScheduled = "scheduled"
	StateActive    = "active"
	StateEnRoute   = "en-route"
	StateLanded    = "landed"
	StateArrived   = "Arrived"
	StateCancelled = "cancelled"
	StateDiverted  = "diverted"
	StateUnknown   = "unknown"
	StateTracking  = "tracking"
)

// Error markers synthesized by the reconciler rather than reported by a provider.
const (
	ErrorNoStatus = "no_status"
)

func normState(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}

// IsTerminal reports whether a coarse state needs no further polling.
func IsTerminal(state string) bool {
	switch normState(state) {
	case "landed", "arrived", "cancelled", "canceled":
		return true
	}
	return false
}

func IsCancelled(state string) bool {
	switch normState(state) {
	case "cancelled", "canceled":
		return true
	}
	return false
}

func IsDiverted(state string) bool {
	return normState(state) == StateDiverted
}

// IsAirborneClaim reports whether a state asserts the flight has at least
// departed: en route, arrived, or cancelled.
func IsAirborneClaim(state string) bool {
	switch normState(state) {
	case "active", "en-route", "enroute", "airborne", "departed",
		"landed", "arrived", "cancelled", "canceled":
		return true
	}
	return false
}

// StatusPayload is the normalized result of one provider call.
//
// Instants are kept as the provider sent them; the normalizer parses them
// when the payload is applied, and unparseable values count as absent.
type StatusPayload struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Phase    string `json:"phase,omitempty"`

	DepScheduled string `json:"dep_scheduled,omitempty"`
	DepEstimated string `json:"dep_estimated,omitempty"`
	DepActual    string `json:"dep_actual,omitempty"`
	ArrScheduled string `json:"arr_scheduled,omitempty"`
	ArrEstimated string `json:"arr_estimated,omitempty"`
	ArrActual    string `json:"arr_actual,omitempty"`

	DepIATA      string `json:"dep_iata,omitempty"`
	ArrIATA      string `json:"arr_iata,omitempty"`
	AirlineName  string `json:"airline_name,omitempty"`
	TerminalDep  string `json:"terminal_dep,omitempty"`
	GateDep      string `json:"gate_dep,omitempty"`
	TerminalArr  string `json:"terminal_arr,omitempty"`
	GateArr      string `json:"gate_arr,omitempty"`
	DelayMinutes *int   `json:"delay_minutes,omitempty"`
	ICAO24       string `json:"icao24,omitempty"`

	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Position *Position `json:"position,omitempty"`
}

// HasError reports whether the payload carries an explicit error marker.
func (p *StatusPayload) HasError() bool {
	return p != nil && (p.Error != "" || p.ErrorMessage != "")
}

// HasSignal reports whether the payload carries anything informative beyond
// its provider tag and error marker.
func (p *StatusPayload) HasSignal() bool {
	if p == nil {
		return false
	}
	if s := normState(p.State); s != "" && s != StateUnknown {
		return true
	}
	for _, v := range []string{
		p.DepScheduled, p.DepEstimated, p.DepActual,
		p.ArrScheduled, p.ArrEstimated, p.ArrActual,
		p.DepIATA, p.ArrIATA, p.TerminalDep, p.GateDep, p.TerminalArr, p.GateArr,
		p.ICAO24,
	} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return p.DelayMinutes != nil || p.Position != nil
}

// Clone returns a deep copy so cached payloads are never aliased by records.
func (p *StatusPayload) Clone() *StatusPayload {
	if p == nil {
		return nil
	}
	c := *p
	if p.DelayMinutes != nil {
		d := *p.DelayMinutes
		c.DelayMinutes = &d
	}
	if p.Position != nil {
		pos := *p.Position
		c.Position = &pos
	}
	return &c
}

// Position is a live-tracking fix merged under the payload's position key.
type Position struct {
	Source        string     `json:"source"`
	ICAO24        string     `json:"icao24,omitempty"`
	Callsign      string     `json:"callsign,omitempty"`
	OriginCountry string     `json:"origin_country,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	AltitudeM     *float64   `json:"altitude_m,omitempty"`
	OnGround      *bool      `json:"on_ground,omitempty"`
	VelocityMPS   *float64   `json:"velocity_mps,omitempty"`
	HeadingDeg    *float64   `json:"heading_deg,omitempty"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
}

// CacheEntry is the per-flight state kept across reconciliation cycles.
// A nil NextCheck after a fetch means the flight needs no further refresh.
type CacheEntry struct {
	Status    *StatusPayload `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
	NextCheck *time.Time     `json:"next_check"`
}
