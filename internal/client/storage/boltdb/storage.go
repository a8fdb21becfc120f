package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/crypto"
)

var (
	// BoltDB bucket names
	bucketQueue    = []byte("queue")
	bucketMetadata = []byte("metadata")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db     *bbolt.DB
	sealer storage.Sealer
}

// Option configures Storage.
type Option func(*options)

type options struct {
	passphrase  string
	openTimeout time.Duration
}

// WithPassphrase enables at-rest encryption of the queue with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		o.passphrase = passphrase
	}
}

// WithOpenTimeout bounds how long New waits for the file lock held by another process.
func WithOpenTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.openTimeout = timeout
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	o := options{openTimeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: o.openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if o.passphrase != "" {
		salt, err := s.encryptionSalt(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		sealer, err := crypto.NewSealerFromPassphrase(o.passphrase, salt)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init queue encryption: %w", err)
		}
		s.sealer = sealer
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
