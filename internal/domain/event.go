package domain

import "time"

// TriggerReason names why a rebuild was requested outside the refresh schedule.
type TriggerReason string

const (
	TriggerFlightAdded   TriggerReason = "flight_added"
	TriggerFlightRemoved TriggerReason = "flight_removed"
	TriggerForceRefresh  TriggerReason = "force_refresh"
)

// Trigger asks the rebuild loop to run a cycle now.
type Trigger struct {
	Reason    TriggerReason
	FlightKey string
	At        time.Time
}

// Force reports whether the trigger bypasses every cached next-check instant.
func (t Trigger) Force() bool {
	return t.Reason == TriggerForceRefresh
}

// StateChange is emitted when a flight's coarse state or delay status differs
// between two published snapshots.
type StateChange struct {
	FlightKey    string    `json:"flight_key"`
	FlightIATA   string    `json:"flight_iata"`
	PrevState    string    `json:"prev_state,omitempty"`
	State        string    `json:"state,omitempty"`
	PrevDelay    string    `json:"prev_delay_status,omitempty"`
	Delay        string    `json:"delay_status,omitempty"`
	DelayMinutes *int      `json:"delay_minutes,omitempty"`
	Assumed      bool      `json:"assumed_arrival,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}
