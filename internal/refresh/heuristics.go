package refresh

import "time"

// Heuristics holds the thresholds for the correction passes applied after
// a status is merged into a record.
type Heuristics struct {
	// CoercionGrace: an airborne, arrived or cancelled claim is reset to
	// scheduled while departure is still more than this far away.
	CoercionGrace time.Duration `yaml:"coercion_grace"`
	// AssumedArrivalGrace: a flight whose arrival passed more than this long
	// ago without a terminal update is assumed to have arrived.
	AssumedArrivalGrace time.Duration `yaml:"assumed_arrival_grace"`
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		CoercionGrace:       90 * time.Minute,
		AssumedArrivalGrace: 15 * time.Minute,
	}
}
