package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

var _ storage.Quarantiner = (*Storage)(nil)

// Quarantine moves the stored queue bytes, still sealed, to a side key.
func (s *Storage) Quarantine(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var key string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		data := bucket.Get([]byte(storage.QueueKey))
		if data == nil {
			return nil
		}

		var err error
		key, err = quarantine(bucket, data)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to quarantine queue: %w", err)
	}

	return key, nil
}

// Quarantined lists side keys in the order they were created.
func (s *Storage) Quarantined(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}
		// ключи отсортированы, метка времени в ключе дает хронологический порядок
		c := bucket.Cursor()
		prefix := []byte(storage.QuarantinePrefix)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined queues: %w", err)
	}

	return keys, nil
}

// Restore puts the records of a side key ahead of the live queue and deletes the side
// key. A live queue that cannot be read is itself moved aside first.
func (s *Storage) Restore(ctx context.Context, key string) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}
	if !storage.IsQuarantineKey(key) {
		return 0, fmt.Errorf("%w: %s", storage.ErrQuarantineNotFound, key)
	}

	restored := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		side := bucket.Get([]byte(key))
		if side == nil {
			return fmt.Errorf("%w: %s", storage.ErrQuarantineNotFound, key)
		}
		records, err := s.decode(side)
		if err != nil {
			return err
		}
		records, _ = storage.PurgeSucceeded(records)

		var live []*models.MutationRecord
		if data := bucket.Get([]byte(storage.QueueKey)); data != nil {
			live, err = s.decode(data)
			if err != nil {
				if _, err := quarantine(bucket, data); err != nil {
					return err
				}
				live = nil
			}
		}

		if err := s.put(bucket, storage.MergeRecords(records, live)); err != nil {
			return err
		}
		restored = len(records)
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to restore queue %s: %w", key, err)
	}

	return restored, nil
}

// quarantine copies data under a fresh side key.
func quarantine(bucket *bbolt.Bucket, data []byte) (string, error) {
	at := time.Now()
	key := storage.QuarantineKey(at)
	for bucket.Get([]byte(key)) != nil {
		at = at.Add(time.Nanosecond)
		key = storage.QuarantineKey(at)
	}

	// значение из Get действительно только до изменения bucket
	if err := bucket.Put([]byte(key), bytes.Clone(data)); err != nil {
		return "", fmt.Errorf("failed to put quarantined queue: %w", err)
	}
	return key, nil
}
