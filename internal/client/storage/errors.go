package storage

import "errors"

// Common client storage errors
var (
	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrCorruptQueue indicates that the persisted queue could not be decoded
	ErrCorruptQueue = errors.New("persisted queue is corrupt")

	// ErrUnsupportedVersion indicates a queue written by a newer format version
	ErrUnsupportedVersion = errors.New("unsupported queue format version")

	// ErrConcurrentUpdate indicates that another writer changed the queue since it was last read
	ErrConcurrentUpdate = errors.New("queue was changed by another writer")

	// ErrQuarantineNotFound indicates that no set-aside queue exists under the given key
	ErrQuarantineNotFound = errors.New("quarantined queue not found")
)
