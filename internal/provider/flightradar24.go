package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

const (
	fr24BaseURL        = "https://fr24api.flightradar24.com"
	fr24DefaultVersion = "v1"
	fr24DateTimeLayout = "2006-01-02T15:04:05"

	// Summary search window either side of the scheduled departure.
	fr24SearchWindow = 12 * time.Hour

	feetToMeters = 0.3048
	knotsToMPS   = 0.514444
)

// Flightradar24Config holds the official FR24 API credentials.
type Flightradar24Config struct {
	APIKey     string
	SandboxKey string
	UseSandbox bool
	APIVersion string
}

// ActiveKey returns the sandbox key when the sandbox is enabled and one is
// set, else the production key.
func (c Flightradar24Config) ActiveKey() string {
	if c.UseSandbox && strings.TrimSpace(c.SandboxKey) != "" {
		return strings.TrimSpace(c.SandboxKey)
	}
	return strings.TrimSpace(c.APIKey)
}

// Flightradar24 uses flight-summary for status and live positions for
// tracking. It implements both StatusProvider and PositionProvider.
type Flightradar24 struct {
	cfg     Flightradar24Config
	baseURL string
	client  *http.Client
	clock   func() time.Time
}

func NewFlightradar24(cfg Flightradar24Config, client *http.Client) *Flightradar24 {
	if client == nil {
		client = newHTTPClient(0)
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = fr24DefaultVersion
	}
	return &Flightradar24{cfg: cfg, baseURL: fr24BaseURL, client: client, clock: time.Now}
}

// WithBaseURL overrides the API endpoint (useful for testing).
func (f *Flightradar24) WithBaseURL(u string) *Flightradar24 {
	f.baseURL = u
	return f
}

func (f *Flightradar24) Kind() domain.ProviderKind { return domain.ProviderFlightradar24 }

// url joins path onto the base, rewriting /api/... to /sandbox/api/...
// when the sandbox is enabled.
func (f *Flightradar24) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if f.cfg.UseSandbox && strings.HasPrefix(path, "/api/") {
		path = "/sandbox" + path
	}
	return strings.TrimRight(f.baseURL, "/") + path
}

func (f *Flightradar24) get(ctx context.Context, path string, params url.Values, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.cfg.ActiveKey())
	header.Set("Accept-Version", f.cfg.APIVersion)
	return getJSON(ctx, f.client, f.Kind(), f.url(path), params, header, out)
}

type fr24Summary struct {
	Flight          string `json:"flight"`
	Callsign        string `json:"callsign"`
	Hex             string `json:"hex"`
	OrigIATA        string `json:"orig_iata"`
	DestIATA        string `json:"dest_iata"`
	DestIATAActual  string `json:"dest_iata_actual"`
	DatetimeTakeoff string `json:"datetime_takeoff"`
	DatetimeLanded  string `json:"datetime_landed"`
	FlightEnded     bool   `json:"flight_ended"`
}

type fr24Live struct {
	Callsign  string   `json:"callsign"`
	Hex       string   `json:"hex"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Track     *float64 `json:"track"`
	Alt       *float64 `json:"alt"`
	GSpeed    *float64 `json:"gspeed"`
	Timestamp string   `json:"timestamp"`
	OrigIATA  string   `json:"orig_iata"`
	DestIATA  string   `json:"dest_iata"`
	ETA       string   `json:"eta"`
}

// FetchStatus looks the flight up in flight-summary around its scheduled
// departure and falls back to live positions for flights in the air.
func (f *Flightradar24) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	if strings.TrimSpace(rec.AirlineCode) == "" || strings.TrimSpace(rec.FlightNumber) == "" {
		return nil, nil
	}

	center := f.clock().UTC()
	if t := normalize.BestSideInstant(rec, domain.SideDep, domain.FieldScheduled); t != nil {
		center = *t
	}
	params := url.Values{
		"flights":              {rec.FlightIATA()},
		"flight_datetime_from": {center.Add(-fr24SearchWindow).Format(fr24DateTimeLayout)},
		"flight_datetime_to":   {center.Add(fr24SearchWindow).Format(fr24DateTimeLayout)},
	}
	var summary struct {
		Data []fr24Summary `json:"data"`
	}
	if err := f.get(ctx, "/api/flight-summary/full", params, &summary); err != nil {
		return nil, err
	}
	if len(summary.Data) > 0 {
		return f.summaryPayload(pickSummary(summary.Data, rec)), nil
	}

	live, err := f.live(ctx, rec)
	if err != nil || live == nil {
		return nil, err
	}
	return &domain.StatusPayload{
		Provider:     string(f.Kind()),
		State:        domain.StateActive,
		DepIATA:      strings.ToUpper(live.OrigIATA),
		ArrIATA:      strings.ToUpper(live.DestIATA),
		ArrEstimated: fr24Time(live.ETA),
		ICAO24:       strings.ToLower(live.Hex),
		Position:     liveToPosition(live),
	}, nil
}

// FetchPosition returns the live position of an airborne flight.
func (f *Flightradar24) FetchPosition(ctx context.Context, rec *domain.FlightRecord) (*domain.Position, error) {
	live, err := f.live(ctx, rec)
	if err != nil || live == nil {
		return nil, err
	}
	return liveToPosition(live), nil
}

func (f *Flightradar24) live(ctx context.Context, rec *domain.FlightRecord) (*fr24Live, error) {
	if rec.FlightIATA() == "" {
		return nil, nil
	}
	var resp struct {
		Data []fr24Live `json:"data"`
	}
	if err := f.get(ctx, "/api/live/flight-positions/full", url.Values{"flights": {rec.FlightIATA()}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

func pickSummary(data []fr24Summary, rec *domain.FlightRecord) fr24Summary {
	dep := strings.ToUpper(strings.TrimSpace(rec.DepAirport))
	if dep != "" {
		for _, s := range data {
			if strings.EqualFold(s.OrigIATA, dep) {
				return s
			}
		}
	}
	return data[0]
}

func (f *Flightradar24) summaryPayload(s fr24Summary) *domain.StatusPayload {
	p := &domain.StatusPayload{
		Provider:  string(f.Kind()),
		DepIATA:   strings.ToUpper(s.OrigIATA),
		ArrIATA:   strings.ToUpper(s.DestIATA),
		DepActual: fr24Time(s.DatetimeTakeoff),
		ArrActual: fr24Time(s.DatetimeLanded),
		ICAO24:    strings.ToLower(s.Hex),
	}
	switch {
	case s.DestIATAActual != "" && s.DestIATA != "" && !strings.EqualFold(s.DestIATAActual, s.DestIATA):
		p.State = domain.StateDiverted
		p.ArrIATA = strings.ToUpper(s.DestIATAActual)
	case s.FlightEnded && p.ArrActual != "":
		p.State = domain.StateLanded
	case p.DepActual != "":
		p.State = domain.StateActive
	default:
		p.State = domain.StateScheduled
	}
	return p
}

// fr24Time pins FR24's naive UTC timestamps to UTC.
func fr24Time(s string) string {
	t, ok := normalize.ParseInstantIn(s, time.UTC)
	if !ok {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func liveToPosition(l *fr24Live) *domain.Position {
	p := &domain.Position{
		Source:     string(domain.ProviderFlightradar24),
		ICAO24:     strings.ToLower(l.Hex),
		Callsign:   strings.TrimSpace(l.Callsign),
		Latitude:   l.Lat,
		Longitude:  l.Lon,
		HeadingDeg: l.Track,
	}
	if l.Alt != nil {
		m := *l.Alt * feetToMeters
		p.AltitudeM = &m
		onGround := *l.Alt <= 0
		p.OnGround = &onGround
	}
	if l.GSpeed != nil {
		v := *l.GSpeed * knotsToMPS
		p.VelocityMPS = &v
	}
	if t, ok := normalize.ParseInstantIn(l.Timestamp, time.UTC); ok {
		t = t.UTC()
		p.ObservedAt = &t
	}
	return p
}
