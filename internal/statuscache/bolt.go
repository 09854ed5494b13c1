package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

var bucketStatus = []byte("status_cache")

// BoltStore keeps entries in a single bbolt file for single-node setups.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open status cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketStatus); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketStatus, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(ctx context.Context, key string) (domain.CacheEntry, bool, error) {
	var (
		e     domain.CacheEntry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStatus).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return e, found, nil
}

func (s *BoltStore) Put(ctx context.Context, key string, status *domain.StatusPayload, now time.Time, nextCheck *time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(newEntry(status, now, nextCheck))
		if err != nil {
			return fmt.Errorf("encode cache entry %s: %w", key, err)
		}
		return tx.Bucket(bucketStatus).Put([]byte(key), data)
	})
}

func (s *BoltStore) Evict(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStatus).Delete([]byte(key))
	})
}

func (s *BoltStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketStatus); err != nil {
			return fmt.Errorf("failed to drop bucket %s: %w", bucketStatus, err)
		}
		_, err := tx.CreateBucket(bucketStatus)
		return err
	})
}

// Ping checks that the database file is still readable.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketStatus) == nil {
			return fmt.Errorf("bucket %s missing", bucketStatus)
		}
		return nil
	})
}
