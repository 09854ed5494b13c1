// Package statuscache keeps the latest status payload and next-check instant
// per flight key. It holds no scheduling logic; callers decide staleness
// from the stored NextCheck.
package statuscache

import (
	"context"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// Store is the cache contract used by the reconciler.
//
// Get reports ok=false for a key that was never stored or has been evicted.
// Put replaces any existing entry for key.
type Store interface {
	Get(ctx context.Context, key string) (domain.CacheEntry, bool, error)
	Put(ctx context.Context, key string, status *domain.StatusPayload, now time.Time, nextCheck *time.Time) error
	Evict(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

func newEntry(status *domain.StatusPayload, now time.Time, nextCheck *time.Time) domain.CacheEntry {
	e := domain.CacheEntry{
		Status:    status.Clone(),
		UpdatedAt: now.UTC(),
	}
	if nextCheck != nil {
		nc := nextCheck.UTC()
		e.NextCheck = &nc
	}
	return e
}
