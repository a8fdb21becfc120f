package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/taskkeeper/internal/crypto"
)

const (
	keyEncryptionSalt = "queue_encryption_salt"
)

// encryptionSalt returns the salt used to derive the queue key, creating it on first use.
func (s *Storage) encryptionSalt(ctx context.Context) ([]byte, error) {
	var salt []byte

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if existing := bucket.Get([]byte(keyEncryptionSalt)); existing != nil {
			// bbolt отдает срез, валидный только внутри транзакции
			salt = append([]byte(nil), existing...)
			return nil
		}

		generated, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(keyEncryptionSalt), generated); err != nil {
			return fmt.Errorf("failed to save encryption salt: %w", err)
		}
		salt = generated
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get encryption salt: %w", err)
	}

	return salt, nil
}
