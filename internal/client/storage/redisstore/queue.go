// Package redisstore keeps the mutation queue in a Redis string key.
//
// Several processes may share one key. Every write bumps a revision counter stored
// next to the queue, and Save and Clear refuse with storage.ErrConcurrentUpdate when
// the counter moved since this Store last read or wrote it.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

// DefaultKeyPrefix namespaces the queue key.
const DefaultKeyPrefix = "taskkeeper:"

// revSuffix names the revision counter key.
const revSuffix = ":rev"

var _ storage.QueueStore = (*Store)(nil)

// Config holds the Redis connection settings.
type Config struct {
	Address   string
	Password  string
	KeyPrefix string
	DB        int
	PoolSize  int
}

// NewClient создает новый клиент Redis на основе конфигурации
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Store is a QueueStore backed by a single Redis key.
type Store struct {
	client *redis.Client
	prefix string
	key    string
	revKey string
	rev    int64 // rev последняя прочитанная или записанная ревизия
	mu     sync.Mutex
}

// New creates a Store. An empty prefix falls back to DefaultKeyPrefix.
func New(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: keyPrefix,
		key:    keyPrefix + storage.QueueKey,
		revKey: keyPrefix + storage.QueueKey + revSuffix,
	}
}

// Load returns the persisted queue, purging success records left by a previous session.
func (s *Store) Load(ctx context.Context) ([]*models.MutationRecord, error) {
	if s.client == nil {
		return nil, storage.ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		data *redis.StringCmd
		rev  *redis.StringCmd
	)
	// очередь и ревизия читаются атомарно
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		data = pipe.Get(ctx, s.key)
		rev = pipe.Get(ctx, s.revKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get queue from redis: %w", err)
	}

	current, err := revision(rev)
	if err != nil {
		return nil, err
	}

	val, err := data.Bytes()
	if errors.Is(err, redis.Nil) {
		s.rev = current
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue from redis: %w", err)
	}

	decoded, err := storage.DecodeQueue(val)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	s.rev = current

	kept, purged := storage.PurgeSucceeded(decoded)
	if purged {
		if err := s.saveLocked(ctx, kept); err != nil {
			return nil, err
		}
	}

	return kept, nil
}

// Save overwrites the queue key unless another writer changed it since the last Load
// or Save of this Store, in which case it returns storage.ErrConcurrentUpdate.
func (s *Store) Save(ctx context.Context, records []*models.MutationRecord) error {
	if s.client == nil {
		return storage.ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, records)
}

func (s *Store) saveLocked(ctx context.Context, records []*models.MutationRecord) error {
	data, err := storage.EncodeQueue(records)
	if err != nil {
		return err
	}

	var next *redis.IntCmd
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := revision(tx.Get(ctx, s.revKey))
		if err != nil {
			return err
		}
		if current != s.rev {
			return storage.ErrConcurrentUpdate
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			next = pipe.Incr(ctx, s.revKey)
			return nil
		})
		return err
	}, s.revKey)

	switch {
	case errors.Is(err, storage.ErrConcurrentUpdate), errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("failed to set queue in redis: %w", storage.ErrConcurrentUpdate)
	case err != nil:
		return fmt.Errorf("failed to set queue in redis: %w", err)
	}

	s.rev = next.Val()
	return nil
}

// Clear deletes the queue key under the same revision check as Save. Other writers
// see the deletion as a concurrent update.
func (s *Store) Clear(ctx context.Context) error {
	if s.client == nil {
		return storage.ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next *redis.IntCmd
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := revision(tx.Get(ctx, s.revKey))
		if err != nil {
			return err
		}
		if current != s.rev {
			return storage.ErrConcurrentUpdate
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			next = pipe.Incr(ctx, s.revKey)
			return nil
		})
		return err
	}, s.revKey)

	switch {
	case errors.Is(err, storage.ErrConcurrentUpdate), errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("failed to delete queue from redis: %w", storage.ErrConcurrentUpdate)
	case err != nil:
		return fmt.Errorf("failed to delete queue from redis: %w", err)
	}

	s.rev = next.Val()
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// revision reads the counter; a missing key is revision zero.
func revision(cmd *redis.StringCmd) (int64, error) {
	rev, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read queue revision: %w", err)
	}
	return rev, nil
}
