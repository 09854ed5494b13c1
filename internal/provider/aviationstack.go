package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// Free aviationstack plans only serve plain HTTP, so it is tried first.
var aviationstackBaseURLs = []string{
	"http://api.aviationstack.com/v1",
	"https://api.aviationstack.com/v1",
}

// Aviationstack queries the aviationstack /flights endpoint by flight IATA.
type Aviationstack struct {
	accessKey string
	baseURLs  []string
	client    *http.Client
}

func NewAviationstack(accessKey string, client *http.Client) *Aviationstack {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &Aviationstack{
		accessKey: strings.TrimSpace(accessKey),
		baseURLs:  aviationstackBaseURLs,
		client:    client,
	}
}

// WithBaseURLs overrides the API endpoints (useful for testing).
func (a *Aviationstack) WithBaseURLs(urls ...string) *Aviationstack {
	a.baseURLs = urls
	return a
}

func (a *Aviationstack) Kind() domain.ProviderKind { return domain.ProviderAviationstack }

type avsEndpoint struct {
	IATA      string  `json:"iata"`
	Terminal  *string `json:"terminal"`
	Gate      *string `json:"gate"`
	Delay     *int    `json:"delay"`
	Scheduled *string `json:"scheduled"`
	Estimated *string `json:"estimated"`
	Actual    *string `json:"actual"`
}

type avsFlight struct {
	FlightDate   string      `json:"flight_date"`
	FlightStatus string      `json:"flight_status"`
	Departure    avsEndpoint `json:"departure"`
	Arrival      avsEndpoint `json:"arrival"`
	Airline      struct {
		Name string `json:"name"`
	} `json:"airline"`
	Aircraft *struct {
		ICAO24 string `json:"icao24"`
	} `json:"aircraft"`
}

type avsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type avsResponse struct {
	Data  []avsFlight `json:"data"`
	Error *avsError   `json:"error"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// FetchStatus tries each base URL with a dated query first and an undated
// one second, returning the first response that lists the flight.
func (a *Aviationstack) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	flightIATA := rec.FlightIATA()
	if strings.TrimSpace(rec.AirlineCode) == "" || strings.TrimSpace(rec.FlightNumber) == "" {
		return nil, nil
	}

	variants := []url.Values{{"flight_iata": {flightIATA}, "limit": {"10"}}}
	if date := scheduledDate(rec); date != "" {
		dated := url.Values{"flight_iata": {flightIATA}, "flight_date": {date}, "limit": {"10"}}
		variants = append([]url.Values{dated}, variants...)
	}

	var (
		apiErr       *avsError
		transportErr error
	)
	for _, base := range a.baseURLs {
		for _, v := range variants {
			params := url.Values{"access_key": {a.accessKey}}
			for k, vs := range v {
				params[k] = vs
			}

			var resp avsResponse
			err := getJSON(ctx, a.client, a.Kind(), strings.TrimRight(base, "/")+"/flights", params, nil, &resp)
			var se *StatusError
			if errors.As(err, &se) {
				// Error responses usually carry the API error object.
				if json.Unmarshal([]byte(se.Body), &resp) != nil || resp.Error == nil {
					transportErr = err
					continue
				}
			} else if err != nil {
				transportErr = err
				if ctx.Err() != nil {
					return nil, err
				}
				continue
			}
			if resp.Error != nil {
				apiErr = resp.Error
				continue
			}
			if len(resp.Data) == 0 {
				continue
			}
			return a.toPayload(bestAviationstackMatch(resp.Data, rec)), nil
		}
	}

	if apiErr != nil {
		return &domain.StatusPayload{
			Provider:     string(a.Kind()),
			State:        domain.StateUnknown,
			Error:        apiErr.Code,
			ErrorMessage: apiErr.Message,
		}, nil
	}
	if transportErr != nil {
		return nil, transportErr
	}
	return nil, nil
}

// bestAviationstackMatch prefers the entry whose route matches the record.
func bestAviationstackMatch(data []avsFlight, rec *domain.FlightRecord) avsFlight {
	dep := strings.ToUpper(strings.TrimSpace(rec.DepAirport))
	arr := strings.ToUpper(strings.TrimSpace(rec.ArrAirport))
	if dep != "" && arr != "" {
		for _, f := range data {
			if strings.EqualFold(f.Departure.IATA, dep) && strings.EqualFold(f.Arrival.IATA, arr) {
				return f
			}
		}
	}
	return data[0]
}

func (a *Aviationstack) toPayload(f avsFlight) *domain.StatusPayload {
	state := strings.ToLower(strings.TrimSpace(f.FlightStatus))
	if state == "" {
		state = domain.StateUnknown
	}
	p := &domain.StatusPayload{
		Provider:     string(a.Kind()),
		State:        state,
		DepScheduled: str(f.Departure.Scheduled),
		DepEstimated: str(f.Departure.Estimated),
		DepActual:    str(f.Departure.Actual),
		ArrScheduled: str(f.Arrival.Scheduled),
		ArrEstimated: str(f.Arrival.Estimated),
		ArrActual:    str(f.Arrival.Actual),
		DepIATA:      strings.ToUpper(f.Departure.IATA),
		ArrIATA:      strings.ToUpper(f.Arrival.IATA),
		AirlineName:  f.Airline.Name,
		TerminalDep:  str(f.Departure.Terminal),
		GateDep:      str(f.Departure.Gate),
		TerminalArr:  str(f.Arrival.Terminal),
		GateArr:      str(f.Arrival.Gate),
	}
	if f.Departure.Delay != nil {
		p.DelayMinutes = f.Departure.Delay
	} else if f.Arrival.Delay != nil {
		p.DelayMinutes = f.Arrival.Delay
	}
	if f.Aircraft != nil {
		p.ICAO24 = strings.ToLower(strings.TrimSpace(f.Aircraft.ICAO24))
	}
	return p
}

// scheduledDate returns the record's departure date in its departure
// airport's calendar, or "" when no scheduled departure is known.
func scheduledDate(rec *domain.FlightRecord) string {
	sched := rec.Dep.Scheduled
	if sched == nil {
		sched = rec.ScheduledDeparture
	}
	if sched == nil {
		return ""
	}
	return normalize.DateInTimezone(*sched, rec.Dep.Airport.TZ)
}
