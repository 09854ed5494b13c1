// Package directory resolves airport metadata by IATA code.
//
// Lookups consult, in order: user overrides loaded from a YAML file, an
// OpenFlights airports.dat index downloaded once and kept for a TTL, and a
// small built-in timezone table. Override and built-in entries only carry
// a timezone; names and cities come from the index.
package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/log"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// DefaultAirportsURL is the public OpenFlights airport list.
const DefaultAirportsURL = "https://raw.githubusercontent.com/jpatokal/openflights/master/data/airports.dat"

// ErrUnknownAirport is returned when no source knows the code.
var ErrUnknownAirport = errors.New("unknown airport")

// retryBackoff limits how often a failed index download is retried by
// lookups. Refresh with force ignores it.
const retryBackoff = 10 * time.Minute

// Config holds directory configuration.
type Config struct {
	// AirportsURL is the airports.dat location. Empty disables the index.
	AirportsURL string

	// TTL is how long a downloaded index is used before it is refetched.
	// Default: 30 days.
	TTL time.Duration

	// Timeout bounds one index download.
	// Default: 30 seconds.
	Timeout time.Duration

	// Overrides maps IATA codes to IANA zone names and wins over every
	// other source.
	Overrides map[string]string
}

type Directory struct {
	cfg    Config
	client *http.Client
	clock  func() time.Time
	logger zerolog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	index    map[string]domain.Airport
	loadedAt time.Time
	failedAt time.Time
}

func New(cfg Config) *Directory {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	overrides := make(map[string]string, len(cfg.Overrides))
	for code, tz := range cfg.Overrides {
		code = strings.ToUpper(strings.TrimSpace(code))
		if tz = normalize.CanonicalZone(tz); code != "" && tz != "" {
			overrides[code] = tz
		}
	}
	cfg.Overrides = overrides
	return &Directory{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  time.Now,
		logger: log.WithComponent("directory"),
	}
}

// WithClock overrides the time source. Used by tests.
func (d *Directory) WithClock(clock func() time.Time) *Directory {
	d.clock = clock
	return d
}

// WithHTTPClient overrides the client used for index downloads.
func (d *Directory) WithHTTPClient(c *http.Client) *Directory {
	d.client = c
	return d
}

// LoadOverrides reads a YAML mapping of IATA code to zone name, e.g.
//
//	DEL: Asia/Kolkata
//	CPH: Europe/Copenhagen
//
// An empty path yields no overrides.
func LoadOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading airport overrides: %w", err)
	}
	var out map[string]string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing airport overrides %s: %w", path, err)
	}
	for code, tz := range out {
		if _, err := normalize.LoadZone(tz); err != nil {
			return nil, fmt.Errorf("airport override %s: invalid zone %q: %w", code, tz, err)
		}
	}
	return out, nil
}

// GetAirport returns what is known about iata. The index is loaded on first
// use; a failed download is logged and the remaining sources still apply.
func (d *Directory) GetAirport(ctx context.Context, iata string) (*domain.Airport, error) {
	code := strings.ToUpper(strings.TrimSpace(iata))
	if code == "" {
		return nil, ErrUnknownAirport
	}

	ap := domain.Airport{IATA: code}
	if idx, err := d.ensureIndex(ctx, false); err != nil {
		d.logger.Debug().Err(err).Str("iata", code).Msg("airport index unavailable")
	} else if entry, ok := idx[code]; ok {
		ap = entry
	}

	if tz, ok := d.cfg.Overrides[code]; ok {
		ap.TZ = tz
	}
	if ap.TZ == "" {
		ap.TZ = builtinTZ[code]
	}
	if ap.TZ == "" && ap.Name == "" {
		return nil, fmt.Errorf("%s: %w", code, ErrUnknownAirport)
	}
	ap.TZ = normalize.CanonicalZone(ap.TZ)
	return &ap, nil
}

// Refresh reloads the index when it is stale, or unconditionally when
// force is set.
func (d *Directory) Refresh(ctx context.Context, force bool) error {
	_, err := d.ensureIndex(ctx, force)
	return err
}

// Len reports the number of indexed airports.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

func (d *Directory) ensureIndex(ctx context.Context, force bool) (map[string]domain.Airport, error) {
	if d.cfg.AirportsURL == "" {
		return nil, nil
	}

	now := d.clock()
	d.mu.RLock()
	idx, loadedAt, failedAt := d.index, d.loadedAt, d.failedAt
	d.mu.RUnlock()

	if !force {
		if idx != nil && now.Sub(loadedAt) < d.cfg.TTL {
			return idx, nil
		}
		if !failedAt.IsZero() && now.Sub(failedAt) < retryBackoff {
			return idx, nil
		}
	}

	// Concurrent lookups share a single download.
	v, err, _ := d.group.Do("index", func() (any, error) {
		fresh, err := d.download(ctx)
		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			d.failedAt = d.clock()
			return nil, err
		}
		d.index, d.loadedAt, d.failedAt = fresh, d.clock(), time.Time{}
		d.logger.Info().Int("airports", len(fresh)).Msg("airport index loaded")
		return fresh, nil
	})
	if err != nil {
		// Keep serving the stale index.
		return idx, err
	}
	return v.(map[string]domain.Airport), nil
}

func (d *Directory) download(ctx context.Context) (map[string]domain.Airport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.AirportsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading airport index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading airport index: HTTP %d", resp.StatusCode)
	}
	return ParseAirports(resp.Body)
}

// ParseAirports reads an OpenFlights airports.dat stream:
// id, name, city, country, IATA, ICAO, lat, lon, altitude, utc offset,
// DST, tz database name, type, source. Rows without an IATA code are
// skipped.
func ParseAirports(r io.Reader) (map[string]domain.Airport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	index := make(map[string]domain.Airport)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing airport index: %w", err)
		}
		if len(row) < 12 {
			continue
		}
		code := strings.ToUpper(field(row[4]))
		if code == "" {
			continue
		}
		index[code] = domain.Airport{
			IATA: code,
			Name: field(row[1]),
			City: field(row[2]),
			TZ:   normalize.CanonicalZone(field(row[11])),
		}
	}
	return index, nil
}

// field trims a value and maps the OpenFlights null marker to "".
func field(s string) string {
	s = strings.TrimSpace(s)
	if s == `\N` {
		return ""
	}
	return s
}
