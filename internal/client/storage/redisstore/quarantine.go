package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

var _ storage.Quarantiner = (*Store)(nil)

// Quarantine renames the queue key to a side key. The returned key has no prefix.
func (s *Store) Quarantine(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", storage.ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		key  string
		next *redis.IntCmd
	)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, s.key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		key = storage.QuarantineKey(time.Now())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Rename(ctx, s.key, s.prefix+key)
			next = pipe.Incr(ctx, s.revKey)
			return nil
		})
		return err
	}, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to quarantine queue in redis: %w", err)
	}

	if next != nil {
		s.rev = next.Val()
	}
	return key, nil
}

// Quarantined lists side keys, oldest first, without the prefix.
func (s *Store) Quarantined(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, storage.ErrStorageClosed
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+storage.QuarantinePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan quarantined queues: %w", err)
	}

	slices.Sort(keys)
	return keys, nil
}

// Restore puts the records of a side key ahead of the live queue and deletes the side
// key. A live queue that cannot be decoded is moved aside first.
func (s *Store) Restore(ctx context.Context, key string) (int, error) {
	if s.client == nil {
		return 0, storage.ErrStorageClosed
	}
	if !storage.IsQuarantineKey(key) {
		return 0, fmt.Errorf("%w: %s", storage.ErrQuarantineNotFound, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	side := s.prefix + key
	var (
		restored int
		next     *redis.IntCmd
	)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, side).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", storage.ErrQuarantineNotFound, key)
		}
		if err != nil {
			return err
		}
		records, err := storage.DecodeQueue(raw)
		if err != nil {
			return err
		}
		records, _ = storage.PurgeSucceeded(records)

		var (
			live    []*models.MutationRecord
			setLive string
		)
		data, err := tx.Get(ctx, s.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			live, err = storage.DecodeQueue(data)
			if err != nil {
				// текущая очередь тоже нечитаема: откладываем, а не затираем
				setLive = s.prefix + storage.QuarantineKey(time.Now())
				live = nil
			}
		}

		merged, err := storage.EncodeQueue(storage.MergeRecords(records, live))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if setLive != "" {
				pipe.Set(ctx, setLive, data, 0)
			}
			pipe.Set(ctx, s.key, merged, 0)
			pipe.Del(ctx, side)
			next = pipe.Incr(ctx, s.revKey)
			return nil
		})
		restored = len(records)
		return err
	}, side, s.key, s.revKey)
	if err != nil {
		return 0, fmt.Errorf("failed to restore queue %s: %w", key, err)
	}

	s.rev = next.Val()
	return restored, nil
}
