package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

var _ storage.QueueStore = (*Storage)(nil)

// Load returns the persisted queue. Success records left by an interrupted session are
// purged and the cleaned queue is written back in the same transaction.
func (s *Storage) Load(ctx context.Context) ([]*models.MutationRecord, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var records []*models.MutationRecord

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		data := bucket.Get([]byte(storage.QueueKey))
		if data == nil {
			return nil
		}

		decoded, err := s.decode(data)
		if err != nil {
			return err
		}

		kept, purged := storage.PurgeSucceeded(decoded)
		records = kept
		if !purged {
			return nil
		}

		return s.put(bucket, kept)
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	return records, nil
}

// Save overwrites the persisted queue
func (s *Storage) Save(ctx context.Context, records []*models.MutationRecord) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}
		return s.put(bucket, records)
	})

	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}

	return nil
}

// Clear removes the persisted queue
func (s *Storage) Clear(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(storage.QueueKey))
	})

	if err != nil {
		return fmt.Errorf("clear transaction failed: %w", err)
	}

	return nil
}

func (s *Storage) put(bucket *bbolt.Bucket, records []*models.MutationRecord) error {
	data, err := storage.EncodeQueue(records)
	if err != nil {
		return err
	}

	if s.sealer != nil {
		data, err = s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt queue: %w", err)
		}
	}

	if err := bucket.Put([]byte(storage.QueueKey), data); err != nil {
		return fmt.Errorf("failed to put queue: %w", err)
	}
	return nil
}

// decode opens and parses a stored queue. A sealer failure (wrong passphrase or
// tampered bytes) is reported as ErrCorruptQueue.
func (s *Storage) decode(data []byte) ([]*models.MutationRecord, error) {
	plain := data
	if s.sealer != nil {
		var err error
		plain, err = s.sealer.Open(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrCorruptQueue, err)
		}
	}
	return storage.DecodeQueue(plain)
}
