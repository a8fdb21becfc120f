package storage

import (
	"context"
	"strings"
	"time"

	"github.com/iudanet/taskkeeper/internal/models"
)

//go:generate moq -out queuestore_mock.go . QueueStore

// QuarantinePrefix starts every key an unreadable queue is moved to.
const QuarantinePrefix = QueueKey + ".corrupt-"

// QueueStore persists the mutation queue across restarts.
// It is pure storage: ordering, retries and fail-open policy belong to the queue.
type QueueStore interface {
	// Load returns the persisted records in queue order.
	// Records already in success state are purged from storage and not returned.
	Load(ctx context.Context) ([]*models.MutationRecord, error)

	// Save overwrites the persisted queue with records (idempotent).
	Save(ctx context.Context, records []*models.MutationRecord) error

	// Clear removes all persisted records.
	Clear(ctx context.Context) error
}

// Sealer encrypts the serialized queue at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Quarantiner is implemented by stores that can move an unreadable queue to a side key
// instead of letting the next save overwrite it.
type Quarantiner interface {
	// Quarantine moves the stored queue bytes verbatim to a new side key and returns
	// that key. An empty key means nothing was stored.
	Quarantine(ctx context.Context) (string, error)

	// Quarantined lists side keys, oldest first.
	Quarantined(ctx context.Context) ([]string, error)

	// Restore decodes a side key with the current settings, puts its records ahead of
	// the live queue and deletes the side key. It returns the number of records restored.
	Restore(ctx context.Context, key string) (int, error)
}

// QuarantineKey returns the side key for a queue set aside at t.
func QuarantineKey(t time.Time) string {
	return QuarantinePrefix + t.UTC().Format("20060102T150405.000000000Z")
}

// IsQuarantineKey reports whether key was produced by QuarantineKey.
func IsQuarantineKey(key string) bool {
	return strings.HasPrefix(key, QuarantinePrefix) && len(key) > len(QuarantinePrefix)
}
