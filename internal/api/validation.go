package api

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

var (
	airlineCodeRe  = regexp.MustCompile(`^[A-Z0-9]{2,3}$`)
	flightNumberRe = regexp.MustCompile(`^[0-9]{1,4}[A-Z]?$`)
	iataRe         = regexp.MustCompile(`^[A-Z]{3}$`)
)

const maxTravellers = 20

func normalizeCreateFlight(req *CreateFlightRequest) {
	req.AirlineCode = strings.ToUpper(strings.TrimSpace(req.AirlineCode))
	req.FlightNumber = strings.ToUpper(strings.TrimSpace(req.FlightNumber))
	req.DepAirport = strings.ToUpper(strings.TrimSpace(req.DepAirport))
	req.ArrAirport = strings.ToUpper(strings.TrimSpace(req.ArrAirport))
	req.DepTZ = normalize.CanonicalZone(req.DepTZ)
	req.ArrTZ = normalize.CanonicalZone(req.ArrTZ)
}

func validateCreateFlight(req CreateFlightRequest) error {
	if req.AirlineCode == "" {
		return fmt.Errorf("airline_code is required")
	}
	if !airlineCodeRe.MatchString(req.AirlineCode) {
		return fmt.Errorf("invalid airline_code %q", req.AirlineCode)
	}

	if req.FlightNumber == "" {
		return fmt.Errorf("flight_number is required")
	}
	if !flightNumberRe.MatchString(req.FlightNumber) {
		return fmt.Errorf("invalid flight_number %q", req.FlightNumber)
	}

	if req.DepAirport == "" {
		return fmt.Errorf("dep_airport is required")
	}
	if !iataRe.MatchString(req.DepAirport) {
		return fmt.Errorf("invalid dep_airport %q", req.DepAirport)
	}
	if req.ArrAirport == "" {
		return fmt.Errorf("arr_airport is required")
	}
	if !iataRe.MatchString(req.ArrAirport) {
		return fmt.Errorf("invalid arr_airport %q", req.ArrAirport)
	}
	if req.DepAirport == req.ArrAirport {
		return fmt.Errorf("dep_airport and arr_airport must differ")
	}

	if strings.TrimSpace(req.ScheduledDeparture) == "" {
		return fmt.Errorf("scheduled_departure is required")
	}

	for field, tz := range map[string]string{"dep_tz": req.DepTZ, "arr_tz": req.ArrTZ} {
		if tz == "" {
			continue
		}
		if err := validateTimezone(tz); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}

	if len(req.Travellers) > maxTravellers {
		return fmt.Errorf("at most %d travellers allowed", maxTravellers)
	}
	return nil
}

func validateTimezone(tz string) error {
	_, err := normalize.LoadZone(tz)
	return err
}

// buildRecord parses the schedule of a validated request. depLoc and arrLoc
// interpret naive timestamps.
func buildRecord(req CreateFlightRequest, depLoc, arrLoc *time.Location) (domain.FlightRecord, error) {
	dep, ok := normalize.ParseInstantIn(req.ScheduledDeparture, depLoc)
	if !ok {
		return domain.FlightRecord{}, fmt.Errorf("invalid scheduled_departure %q", req.ScheduledDeparture)
	}
	dep = dep.UTC()

	rec := domain.FlightRecord{
		Source:             domain.SourceManual,
		AirlineCode:        req.AirlineCode,
		FlightNumber:       req.FlightNumber,
		DepAirport:         req.DepAirport,
		ArrAirport:         req.ArrAirport,
		ScheduledDeparture: &dep,
	}
	rec.Dep.Airport = domain.Airport{IATA: req.DepAirport, TZ: req.DepTZ}
	rec.Arr.Airport = domain.Airport{IATA: req.ArrAirport, TZ: req.ArrTZ}

	if strings.TrimSpace(req.ScheduledArrival) != "" {
		arr, ok := normalize.ParseInstantIn(req.ScheduledArrival, arrLoc)
		if !ok {
			return domain.FlightRecord{}, fmt.Errorf("invalid scheduled_arrival %q", req.ScheduledArrival)
		}
		if !arr.After(dep) {
			return domain.FlightRecord{}, fmt.Errorf("scheduled_arrival must be after scheduled_departure")
		}
		arr = arr.UTC()
		rec.ScheduledArrival = &arr
	}

	for _, name := range req.Travellers {
		if name = strings.TrimSpace(name); name != "" {
			rec.Travellers = append(rec.Travellers, name)
		}
	}

	rec.FlightKey = domain.FlightKeyFor(req.AirlineCode, req.FlightNumber, req.DepAirport,
		normalize.DateInTimezone(dep, req.DepTZ))
	return rec, nil
}
