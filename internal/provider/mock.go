package provider

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
	"github.com/tubloo/hacs-flight-status-tracker/internal/normalize"
)

// Mock returns a deterministic status derived from the flight key, for
// demos and end-to-end tests. Each key gets a fixed delay of 0 to 44 minutes.
type Mock struct {
	clock func() time.Time
}

func NewMock() *Mock {
	return &Mock{clock: time.Now}
}

func (m *Mock) Kind() domain.ProviderKind { return domain.ProviderMock }

func (m *Mock) FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error) {
	dep := normalize.BestSideInstant(rec, domain.SideDep, domain.FieldScheduled)
	if dep == nil {
		return nil, nil
	}
	arr := normalize.BestSideInstant(rec, domain.SideArr, domain.FieldScheduled)

	h := fnv.New32a()
	h.Write([]byte(rec.FlightKey))
	delay := time.Duration(h.Sum32()%45) * time.Minute
	mins := int(delay / time.Minute)

	depEst := dep.Add(delay)
	p := &domain.StatusPayload{
		Provider:     string(m.Kind()),
		State:        domain.StateScheduled,
		DepScheduled: utcString(dep),
		DepEstimated: utcString(&depEst),
		DepIATA:      rec.DepAirport,
		ArrIATA:      rec.ArrAirport,
		DelayMinutes: &mins,
	}
	if arr != nil {
		arrEst := arr.Add(delay)
		p.ArrScheduled = utcString(arr)
		p.ArrEstimated = utcString(&arrEst)
	}

	now := m.clock().UTC()
	switch {
	case now.Before(depEst):
		p.State = domain.StateScheduled
	case arr == nil || now.Before(arr.Add(delay)):
		p.State = domain.StateActive
		p.DepActual = p.DepEstimated
	default:
		p.State = domain.StateLanded
		p.DepActual = p.DepEstimated
		p.ArrActual = p.ArrEstimated
	}
	return p, nil
}
