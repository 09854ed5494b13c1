package statuscache

import (
	"context"
	"sync"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// MemoryStore is a process-lifetime cache. Entries are copied on the way in
// and out so callers never share payloads with the map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.CacheEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	return newEntry(e.Status, e.UpdatedAt, e.NextCheck), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, status *domain.StatusPayload, now time.Time, nextCheck *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = newEntry(status, now, nextCheck)
	return nil
}

func (s *MemoryStore) Evict(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]domain.CacheEntry)
	return nil
}

// Len returns the number of cached flights.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
