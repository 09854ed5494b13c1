package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/metrics"
)

// Credentials gathers every provider secret. Empty fields disable the
// corresponding adapter.
type Credentials struct {
	Flightradar24    Flightradar24Config
	AviationstackKey string
	AirLabsKey       string
	OpenSkyUsername  string
	OpenSkyPassword  string
}

// statusFallbackOrder is tried when the configured status kind is unusable.
var statusFallbackOrder = []domain.ProviderKind{
	domain.ProviderFlightradar24,
	domain.ProviderAviationstack,
	domain.ProviderAirLabs,
}

// Registry holds the adapters that can be used with the configured
// credentials.
type Registry struct {
	status   map[domain.ProviderKind]StatusProvider
	position map[domain.ProviderKind]PositionProvider
}

// NewEmptyRegistry returns a registry with no adapters. Used by tests.
func NewEmptyRegistry() *Registry {
	return &Registry{
		status:   make(map[domain.ProviderKind]StatusProvider),
		position: make(map[domain.ProviderKind]PositionProvider),
	}
}

// NewRegistry builds an adapter for every provider whose credentials are
// set. local and mock are always available. OpenSky positions work
// anonymously; OpenSky as a status source needs credentials.
func NewRegistry(creds Credentials, timeout time.Duration) *Registry {
	client := newHTTPClient(timeout)
	r := NewEmptyRegistry()

	if creds.Flightradar24.ActiveKey() != "" {
		fr24 := NewFlightradar24(creds.Flightradar24, client)
		r.RegisterStatus(fr24)
		r.RegisterPosition(fr24)
	}
	if strings.TrimSpace(creds.AviationstackKey) != "" {
		r.RegisterStatus(NewAviationstack(creds.AviationstackKey, client))
	}
	if strings.TrimSpace(creds.AirLabsKey) != "" {
		r.RegisterStatus(NewAirLabs(creds.AirLabsKey, client))
	}
	opensky := NewOpenSky(creds.OpenSkyUsername, creds.OpenSkyPassword, client)
	r.RegisterPosition(opensky)
	if strings.TrimSpace(creds.OpenSkyUsername) != "" || strings.TrimSpace(creds.OpenSkyPassword) != "" {
		r.RegisterStatus(opensky)
	}
	r.RegisterStatus(NewLocal())
	r.RegisterStatus(NewMock())
	return r
}

func (r *Registry) RegisterStatus(p StatusProvider) {
	r.status[p.Kind()] = p
}

func (r *Registry) RegisterPosition(p PositionProvider) {
	r.position[p.Kind()] = p
}

// Guard wraps every registered adapter with the breaker and metrics sink.
func (r *Registry) Guard(breaker Breaker, sink metrics.Sink) *Registry {
	for k, p := range r.status {
		r.status[k] = NewGuardedStatus(p, breaker, sink)
	}
	for k, p := range r.position {
		r.position[k] = NewGuardedPosition(p, breaker, sink)
	}
	return r
}

// ResolveStatus returns the adapter for kind when it is available, else
// the first available provider in fallback order.
func (r *Registry) ResolveStatus(kind domain.ProviderKind) (StatusProvider, bool) {
	if p, ok := r.status[kind]; ok {
		return p, true
	}
	for _, k := range statusFallbackOrder {
		if p, ok := r.status[k]; ok {
			return p, true
		}
	}
	return nil, false
}

// Lookup returns the adapter for kind without falling back.
func (r *Registry) Lookup(kind domain.ProviderKind) (StatusProvider, error) {
	p, ok := r.status[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoCredentials)
	}
	return p, nil
}

// ResolvePosition returns a distinct position adapter. It reports false
// for same_as_status, for the status kind itself, or for an unavailable kind.
func (r *Registry) ResolvePosition(kind, statusKind domain.ProviderKind) (PositionProvider, bool) {
	if kind == "" || kind == domain.ProviderSameAsStatus || kind == statusKind {
		return nil, false
	}
	p, ok := r.position[kind]
	return p, ok
}

// StatusKinds lists the available status providers, for health output.
func (r *Registry) StatusKinds() []domain.ProviderKind {
	var kinds []domain.ProviderKind
	for _, k := range domain.KnownProviders {
		if _, ok := r.status[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
