package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

const openSkyBaseURL = "https://opensky-network.org/api"

// OpenSky reads ADS-B state vectors by transponder address. It needs an
// ICAO24 on the record (or on a previously fetched status) and yields
// nothing otherwise.
type OpenSky struct {
	username string
	password string
	baseURL  string
	client   *http.Client
}

func NewOpenSky(username, password string, client *http.Client) *OpenSky {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &OpenSky{
		username: strings.TrimSpace(username),
		password: strings.TrimSpace(password),
		baseURL:  openSkyBaseURL,
		client:   client,
	}
}

// WithBaseURL overrides the API endpoint (useful for testing).
func (o *OpenSky) WithBaseURL(u string) *OpenSky {
	o.baseURL = u
	return o
}

func (o *OpenSky) Kind() domain.ProviderKind { return domain.ProviderOpenSky }

type openSkyResponse struct {
	Time   int64   `json:"time"`
	States [][]any `json:"states"`
}

func recordICAO24(rec *domain.FlightRecord) string {
	if v := strings.ToLower(strings.TrimSpace(rec.ICAO24)); v != "" {
		return v
	}
	if rec.Status != nil {
		return strings.ToLower(strings.TrimSpace(rec.Status.ICAO24))
	}
	return ""
}

func (o *OpenSky) FetchPosition(ctx context.Context, rec *domain.FlightRecord) (*domain.Position, error) {
	icao24 := recordICAO24(rec)
	if icao24 == "" {
		return nil, nil
	}

	header := http.Header{}
	if o.username != "" && o.password != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(o.username+":"+o.password)))
	}
	var raw openSkyResponse
	err := getJSON(ctx, o.client, o.Kind(), strings.TrimRight(o.baseURL, "/")+"/states/all",
		url.Values{"icao24": {icao24}}, header, &raw)
	if err != nil {
		return nil, err
	}
	if len(raw.States) == 0 {
		return nil, nil
	}
	return parseStateVector(raw.States[0]), nil
}

// FetchStatus reports a "tracking" state with the position attached. OpenSky
// carries no schedule, so the payload never overrides schedule fields.
func (o *OpenSky) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	pos, err := o.FetchPosition(ctx, rec)
	if err != nil || pos == nil {
		return nil, err
	}
	return &domain.StatusPayload{
		Provider: string(o.Kind()),
		State:    domain.StateTracking,
		ICAO24:   pos.ICAO24,
		Position: pos,
	}, nil
}

// parseStateVector maps an OpenSky state vector:
// [icao24, callsign, origin_country, time_position, last_contact,
// longitude, latitude, baro_altitude, on_ground, velocity, true_track, ...]
func parseStateVector(s []any) *domain.Position {
	p := &domain.Position{Source: string(domain.ProviderOpenSky)}
	at := func(i int) any {
		if i < len(s) {
			return s[i]
		}
		return nil
	}
	num := func(i int) *float64 {
		if v, ok := at(i).(float64); ok {
			return &v
		}
		return nil
	}
	if v, ok := at(0).(string); ok {
		p.ICAO24 = strings.ToLower(v)
	}
	if v, ok := at(1).(string); ok {
		p.Callsign = strings.TrimSpace(v)
	}
	if v, ok := at(2).(string); ok {
		p.OriginCountry = v
	}
	if v, ok := at(4).(float64); ok {
		t := time.Unix(int64(v), 0).UTC()
		p.ObservedAt = &t
	}
	p.Longitude = num(5)
	p.Latitude = num(6)
	p.AltitudeM = num(7)
	if v, ok := at(8).(bool); ok {
		p.OnGround = &v
	}
	p.VelocityMPS = num(9)
	p.HeadingDeg = num(10)
	return p
}
