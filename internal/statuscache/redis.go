package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

const redisKeyPrefix = "fst:status:"

// RedisStore persists entries as JSON so a restart keeps the refresh
// schedule. Every Put refreshes the key's retention expiry.
type RedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisStore returns a store backed by client. A non-positive retention
// keeps entries until they are evicted.
func NewRedisStore(client redis.UniversalClient, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, status *domain.StatusPayload, now time.Time, nextCheck *time.Time) error {
	data, err := json.Marshal(newEntry(status, now, nextCheck))
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, redisKey(key), data, 0)
	if s.retention > 0 {
		pipe.Expire(ctx, redisKey(key), s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (s *RedisStore) Evict(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every status entry under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity for the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
