package provider

import (
	"context"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// Local estimates a status from the record's own schedule without any API.
type Local struct {
	clock func() time.Time
}

func NewLocal() *Local {
	return &Local{clock: time.Now}
}

func (l *Local) Kind() domain.ProviderKind { return domain.ProviderLocal }

// FetchStatus derives the phase from the scheduled instants: upcoming
// before departure, in the air until arrival, arrived after.
func (l *Local) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	dep := normalize.BestSideInstant(rec, domain.SideDep, domain.FieldScheduled)
	if dep == nil {
		return nil, nil
	}
	arr := normalize.BestSideInstant(rec, domain.SideArr, domain.FieldScheduled)
	now := l.clock().UTC()

	p := &domain.StatusPayload{
		Provider:     string(l.Kind()),
		DepScheduled: utcString(dep),
		ArrScheduled: utcString(arr),
	}
	switch {
	case now.Before(*dep):
		p.Phase, p.State = "upcoming", domain.StateScheduled
	case arr != nil && now.Before(*arr):
		p.Phase, p.State = "in_air", domain.StateActive
	case arr != nil:
		p.Phase, p.State = "arrived", domain.StateLanded
	default:
		p.Phase, p.State = domain.StateUnknown, domain.StateUnknown
	}
	return p, nil
}
