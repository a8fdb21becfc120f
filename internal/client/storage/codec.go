package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iudanet/taskkeeper/internal/models"
)

// QueueKey is the key under which backends store the serialized queue.
const QueueKey = "offlineSyncQueue"

// FormatVersion is written into every persisted queue envelope.
const FormatVersion = 1

// envelope is the persisted layout of the queue.
type envelope struct {
	Records []*models.MutationRecord `json:"records"`
	Version int                      `json:"version"`
}

// EncodeQueue serializes records into the versioned envelope.
func EncodeQueue(records []*models.MutationRecord) ([]byte, error) {
	if records == nil {
		records = []*models.MutationRecord{}
	}
	data, err := json.Marshal(envelope{Version: FormatVersion, Records: records})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue: %w", err)
	}
	return data, nil
}

// DecodeQueue parses a persisted queue. A bare JSON array (unversioned layout) is
// accepted as version 0.
func DecodeQueue(data []byte) ([]*models.MutationRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []*models.MutationRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
		}
		return records, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return env.Records, nil
}

// PurgeSucceeded drops records in success state and nil entries.
// The second return value reports whether anything was dropped.
func PurgeSucceeded(records []*models.MutationRecord) ([]*models.MutationRecord, bool) {
	kept := make([]*models.MutationRecord, 0, len(records))
	for _, r := range records {
		if r == nil || r.SyncStatus == models.StatusSuccess {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(kept) != len(records)
}

// MergeRecords returns first followed by the records of second whose ids are not in
// first. Relative order within each slice is kept.
func MergeRecords(first, second []*models.MutationRecord) []*models.MutationRecord {
	seen := make(map[string]struct{}, len(first))
	out := make([]*models.MutationRecord, 0, len(first)+len(second))
	for _, r := range first {
		if r == nil {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	for _, r := range second {
		if r == nil {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
