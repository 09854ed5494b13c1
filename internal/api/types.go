package api

import (
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// CreateFlightRequest adds a manual flight. Naive timestamps are read in
// the departure or arrival airport's zone.
type CreateFlightRequest struct {
	AirlineCode        string   `json:"airline_code"`
	FlightNumber       string   `json:"flight_number"`
	DepAirport         string   `json:"dep_airport"`
	ArrAirport         string   `json:"arr_airport"`
	ScheduledDeparture string   `json:"scheduled_departure"`
	ScheduledArrival   string   `json:"scheduled_arrival,omitempty"`
	DepTZ              string   `json:"dep_tz,omitempty"`
	ArrTZ              string   `json:"arr_tz,omitempty"`
	Travellers         []string `json:"travellers,omitempty"`
}

type ListFlightsResponse struct {
	Flights     []domain.FlightRecord `json:"flights"`
	BuiltAt     string                `json:"built_at,omitempty"`
	NextRefresh string                `json:"next_refresh,omitempty"`
}

type ClearFlightsResponse struct {
	Deleted int64 `json:"deleted"`
}

type RefreshResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
