// Package memstore keeps the serialized queue in process memory.
// It is used for ephemeral sessions and in tests of the layers above storage.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

var _ storage.Quarantiner = (*Store)(nil)

// Store holds the encoded queue so callers never share record pointers with it.
type Store struct {
	side  map[string][]byte
	data  []byte
	saves int
	mu    sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{side: make(map[string][]byte)}
}

// Load decodes the stored queue, dropping succeeded records.
func (s *Store) Load(_ context.Context) ([]*models.MutationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := storage.DecodeQueue(s.data)
	if err != nil {
		return nil, err
	}
	records, _ = storage.PurgeSucceeded(records)
	return records, nil
}

// Save replaces the stored queue.
func (s *Store) Save(_ context.Context, records []*models.MutationRecord) error {
	data, err := storage.EncodeQueue(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Clear removes the stored queue.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Raw returns the encoded queue as last saved; nil after Clear.
func (s *Store) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// SetRaw replaces the stored bytes verbatim.
func (s *Store) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Quarantine moves the stored bytes to a side key.
func (s *Store) Quarantine(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return "", nil
	}
	key := s.freeKeyLocked()
	s.side[key] = s.data
	s.data = nil
	return key, nil
}

// Quarantined lists side keys, oldest first.
func (s *Store) Quarantined(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.side))
	for k := range s.side {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Restore puts the records of a side key ahead of the stored queue.
func (s *Store) Restore(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.side[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrQuarantineNotFound, key)
	}
	records, err := storage.DecodeQueue(raw)
	if err != nil {
		return 0, err
	}
	records, _ = storage.PurgeSucceeded(records)

	live, err := storage.DecodeQueue(s.data)
	if err != nil {
		aside := s.freeKeyLocked()
		s.side[aside] = s.data
		live = nil
	}

	data, err := storage.EncodeQueue(storage.MergeRecords(records, live))
	if err != nil {
		return 0, err
	}
	s.data = data
	delete(s.side, key)
	return len(records), nil
}

func (s *Store) freeKeyLocked() string {
	if s.side == nil {
		s.side = make(map[string][]byte)
	}
	at := time.Now()
	key := storage.QuarantineKey(at)
	for _, taken := s.side[key]; taken; _, taken = s.side[key] {
		at = at.Add(time.Nanosecond)
		key = storage.QuarantineKey(at)
	}
	return key
}
