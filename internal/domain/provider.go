package domain

import (
	"fmt"
	"strings"
)

// ProviderKind selects a status or position source.
type ProviderKind string

const (
	ProviderFlightradar24 ProviderKind = "flightradar24"
	ProviderAviationstack ProviderKind = "aviationstack"
	ProviderAirLabs       ProviderKind = "airlabs"
	ProviderOpenSky       ProviderKind = "opensky"
	ProviderLocal         ProviderKind = "local"
	ProviderMock          ProviderKind = "mock"

	// ProviderSameAsStatus is only valid for the position option.
	ProviderSameAsStatus ProviderKind = "same_as_status"
)

// KnownProviders lists every kind accepted by ParseProviderKind except same_as_status.
var KnownProviders = []ProviderKind{
	ProviderFlightradar24,
	ProviderAviationstack,
	ProviderAirLabs,
	ProviderOpenSky,
	ProviderLocal,
	ProviderMock,
}

// ParseProviderKind parses a configured provider name. The aliases "fr24"
// and "adsb" are accepted for flightradar24 and opensky.
func ParseProviderKind(s string) (ProviderKind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "fr24":
		return ProviderFlightradar24, nil
	case "adsb":
		return ProviderOpenSky, nil
	case string(ProviderSameAsStatus), "same":
		return ProviderSameAsStatus, nil
	}
	for _, k := range KnownProviders {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}
