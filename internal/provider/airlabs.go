package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

const airlabsBaseURL = "https://airlabs.co/api/v9"

// AirLabs queries the AirLabs /flight endpoint.
type AirLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAirLabs(apiKey string, client *http.Client) *AirLabs {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &AirLabs{apiKey: strings.TrimSpace(apiKey), baseURL: airlabsBaseURL, client: client}
}

// WithBaseURL overrides the API endpoint (useful for testing).
func (a *AirLabs) WithBaseURL(u string) *AirLabs {
	a.baseURL = u
	return a
}

func (a *AirLabs) Kind() domain.ProviderKind { return domain.ProviderAirLabs }

type airlabsFlight struct {
	Status string `json:"status"`

	DepIATA string `json:"dep_iata"`
	ArrIATA string `json:"arr_iata"`

	DepTime         string `json:"dep_time"`
	DepTimeUTC      string `json:"dep_time_utc"`
	DepEstimated    string `json:"dep_estimated"`
	DepEstimatedUTC string `json:"dep_estimated_utc"`
	DepActual       string `json:"dep_actual"`
	DepActualUTC    string `json:"dep_actual_utc"`
	ArrTime         string `json:"arr_time"`
	ArrTimeUTC      string `json:"arr_time_utc"`
	ArrEstimated    string `json:"arr_estimated"`
	ArrEstimatedUTC string `json:"arr_estimated_utc"`
	ArrActual       string `json:"arr_actual"`
	ArrActualUTC    string `json:"arr_actual_utc"`

	DepTerminal string `json:"dep_terminal"`
	DepGate     string `json:"dep_gate"`
	ArrTerminal string `json:"arr_terminal"`
	ArrGate     string `json:"arr_gate"`
	AirlineName string `json:"airline_name"`
	Delayed     *int   `json:"delayed"`
	Hex         string `json:"hex"`
}

type airlabsError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type airlabsResponse struct {
	Response *airlabsFlight `json:"response"`
	Error    *airlabsError  `json:"error"`
}

func (a *AirLabs) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	if strings.TrimSpace(rec.AirlineCode) == "" || strings.TrimSpace(rec.FlightNumber) == "" {
		return nil, nil
	}
	params := url.Values{"api_key": {a.apiKey}, "flight_iata": {rec.FlightIATA()}}

	var resp airlabsResponse
	err := getJSON(ctx, a.client, a.Kind(), strings.TrimRight(a.baseURL, "/")+"/flight", params, nil, &resp)
	var se *StatusError
	if errors.As(err, &se) {
		if json.Unmarshal([]byte(se.Body), &resp) != nil || resp.Error == nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if resp.Response == nil {
		if resp.Error != nil {
			code := resp.Error.Code
			if code == "" {
				code = "api_error"
			}
			return &domain.StatusPayload{
				Provider:     string(a.Kind()),
				State:        domain.StateUnknown,
				Error:        code,
				ErrorMessage: resp.Error.Message,
			}, nil
		}
		return nil, nil
	}
	return a.toPayload(resp.Response, rec), nil
}

func (a *AirLabs) toPayload(f *airlabsFlight, rec *domain.FlightRecord) *domain.StatusPayload {
	state := strings.ToLower(strings.TrimSpace(f.Status))
	if state == "" {
		state = domain.StateUnknown
	}
	depTZ, arrTZ := rec.Dep.Airport.TZ, rec.Arr.Airport.TZ
	return &domain.StatusPayload{
		Provider:     string(a.Kind()),
		State:        state,
		DepScheduled: airlabsTime(f.DepTimeUTC, f.DepTime, depTZ),
		DepEstimated: airlabsTime(f.DepEstimatedUTC, f.DepEstimated, depTZ),
		DepActual:    airlabsTime(f.DepActualUTC, f.DepActual, depTZ),
		ArrScheduled: airlabsTime(f.ArrTimeUTC, f.ArrTime, arrTZ),
		ArrEstimated: airlabsTime(f.ArrEstimatedUTC, f.ArrEstimated, arrTZ),
		ArrActual:    airlabsTime(f.ArrActualUTC, f.ArrActual, arrTZ),
		DepIATA:      strings.ToUpper(f.DepIATA),
		ArrIATA:      strings.ToUpper(f.ArrIATA),
		AirlineName:  f.AirlineName,
		TerminalDep:  f.DepTerminal,
		GateDep:      f.DepGate,
		TerminalArr:  f.ArrTerminal,
		GateArr:      f.ArrGate,
		DelayMinutes: f.Delayed,
		ICAO24:       strings.ToLower(strings.TrimSpace(f.Hex)),
	}
}

// airlabsTime prefers the UTC rendition. AirLabs sends both as naive
// "2006-01-02 15:04" strings, so each is pinned to its zone and rendered
// as RFC 3339. A local value is kept raw when the airport zone is unknown.
func airlabsTime(utc, local, tz string) string {
	if t, ok := normalize.ParseInstantIn(utc, time.UTC); ok {
		return t.UTC().Format(time.RFC3339)
	}
	if strings.TrimSpace(local) == "" {
		return ""
	}
	if loc, err := normalize.LoadZone(tz); err == nil {
		if t, ok := normalize.ParseInstantIn(local, loc); ok {
			return t.Format(time.RFC3339)
		}
	}
	return local
}
