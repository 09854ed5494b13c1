package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// Options is the per-invocation configuration of the engine.
type Options struct {
	// StatusProvider is the preferred status source. When it is unavailable
	// the resolver falls back to the first configured provider.
	StatusProvider domain.ProviderKind

	// PositionProvider is an optional distinct tracking source, or
	// same_as_status to disable it.
	PositionProvider domain.ProviderKind

	// StatusTTL is the minimum interval between two fetches of one flight.
	// Default: 5 minutes. Minimum: 1 minute.
	StatusTTL time.Duration

	// DelayGrace is how late a flight may be and still count as on time.
	// Default: 10 minutes.
	DelayGrace time.Duration
}

func DefaultOptions() Options {
	return Options{
		StatusProvider:   domain.ProviderFlightradar24,
		PositionProvider: domain.ProviderSameAsStatus,
		StatusTTL:        5 * time.Minute,
		DelayGrace:       10 * time.Minute,
	}
}

// Validate reports every invalid option.
func (o Options) Validate() error {
	var errs []error
	if o.StatusProvider == domain.ProviderSameAsStatus {
		errs = append(errs, fmt.Errorf("status provider cannot be %q", o.StatusProvider))
	}
	if o.StatusTTL < time.Minute {
		errs = append(errs, fmt.Errorf("status TTL must be at least 1m, got %s", o.StatusTTL))
	}
	if o.DelayGrace < 0 {
		errs = append(errs, fmt.Errorf("delay grace must not be negative, got %s", o.DelayGrace))
	}
	return errors.Join(errs...)
}

// normalized clamps out-of-range values instead of failing the cycle.
func (o Options) normalized() Options {
	if o.StatusTTL < time.Minute {
		o.StatusTTL = time.Minute
	}
	if o.DelayGrace < 0 {
		o.DelayGrace = 0
	}
	if o.PositionProvider == "" {
		o.PositionProvider = domain.ProviderSameAsStatus
	}
	return o
}
