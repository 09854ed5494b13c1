package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHelpers(t *testing.T) {
	tests := []struct {
		state     string
		terminal  bool
		cancelled bool
		airborne  bool
	}{
		{"Landed", true, false, true},
		{"arrived", true, false, true},
		{"CANCELED", true, true, true},
		{"cancelled", true, true, true},
		{"en_route", false, false, true},
		{"active", false, false, true},
		{"scheduled", false, false, false},
		{"", false, false, false},
		{"diverted", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.state))
			assert.Equal(t, tt.cancelled, IsCancelled(tt.state))
			assert.Equal(t, tt.airborne, IsAirborneClaim(tt.state))
		})
	}
	assert.True(t, IsDiverted("Diverted"))
}

func TestStatusPayload_HasSignal(t *testing.T) {
	var nilPayload *StatusPayload
	assert.False(t, nilPayload.HasSignal())

	assert.False(t, (&StatusPayload{Provider: "aviationstack", Error: "rate_limited"}).HasSignal())
	assert.False(t, (&StatusPayload{Provider: "airlabs", State: "unknown"}).HasSignal())
	assert.True(t, (&StatusPayload{Provider: "airlabs", State: "scheduled"}).HasSignal())
	assert.True(t, (&StatusPayload{Provider: "airlabs", ArrEstimated: "2026-01-30T19:12:00Z"}).HasSignal())
	assert.True(t, (&StatusPayload{Provider: "airlabs", GateDep: "12"}).HasSignal())
}

func TestStatusPayload_CloneDoesNotAlias(t *testing.T) {
	d := 5
	lat := 1.5
	p := &StatusPayload{Provider: "mock", DelayMinutes: &d, Position: &Position{Latitude: &lat}}

	c := p.Clone()
	*c.DelayMinutes = 9
	c.Position.Callsign = "AIC157"

	assert.Equal(t, 5, *p.DelayMinutes)
	assert.Empty(t, p.Position.Callsign)
}

func TestParseProviderKind(t *testing.T) {
	k, err := ParseProviderKind(" FR24 ")
	require.NoError(t, err)
	assert.Equal(t, ProviderFlightradar24, k)

	k, err = ParseProviderKind("airlabs")
	require.NoError(t, err)
	assert.Equal(t, ProviderAirLabs, k)

	k, err = ParseProviderKind("same_as_status")
	require.NoError(t, err)
	assert.Equal(t, ProviderSameAsStatus, k)

	_, err = ParseProviderKind("flightaware")
	assert.Error(t, err)
}

func TestFlightKeyFor(t *testing.T) {
	assert.Equal(t, "AI-157-DEL-2026-01-30", FlightKeyFor("ai", "157", "del", "2026-01-30"))
}

func TestFlightRecord_IsManual(t *testing.T) {
	assert.True(t, FlightRecord{}.IsManual())
	assert.True(t, FlightRecord{Source: SourceManual}.IsManual())
	assert.False(t, FlightRecord{Source: SourceImport}.IsManual())
}
