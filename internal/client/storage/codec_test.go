package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskkeeper/internal/models"
)

func TestEncodeDecodeQueue(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []*models.MutationRecord{
		{
			ID:         "rec-1",
			EntityType: models.EntityTask,
			Action:     models.ActionCreate,
			Payload:    models.Payload{"title": "Buy milk"},
			CreatedAt:  created,
			SyncStatus: models.StatusPending,
			RetryCount: 2,
		},
	}

	data, err := EncodeQueue(records)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)

	got, err := DecodeQueue(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].ID, got[0].ID)
	assert.Equal(t, records[0].EntityType, got[0].EntityType)
	assert.Equal(t, records[0].Action, got[0].Action)
	assert.Equal(t, records[0].Payload, got[0].Payload)
	assert.Equal(t, records[0].RetryCount, got[0].RetryCount)
	assert.True(t, created.Equal(got[0].CreatedAt))
}

func TestDecodeQueue_LegacyArray(t *testing.T) {
	got, err := DecodeQueue([]byte(`[{"id":"a","entity_type":"note","action":"delete","payload":{"id":3},"sync_status":"pending"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].EntityID())
}

func TestDecodeQueue_Errors(t *testing.T) {
	_, err := DecodeQueue([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrCorruptQueue)

	_, err = DecodeQueue([]byte(`{"version":99,"records":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	got, err := DecodeQueue(nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestPurgeSucceeded(t *testing.T) {
	records := []*models.MutationRecord{
		{ID: "a", SyncStatus: models.StatusPending},
		{ID: "b", SyncStatus: models.StatusSuccess},
		nil,
		{ID: "c", SyncStatus: models.StatusConflict},
	}

	kept, purged := PurgeSucceeded(records)
	assert.True(t, purged)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)

	_, purged = PurgeSucceeded(kept)
	assert.False(t, purged)
}

func TestMergeRecords(t *testing.T) {
	first := []*models.MutationRecord{{ID: "b"}, {ID: "a"}}
	second := []*models.MutationRecord{{ID: "a", RetryCount: 2}, nil, {ID: "c"}, {ID: "d"}}

	merged := MergeRecords(first, second)
	ids := make([]string, 0, len(merged))
	for _, r := range merged {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
	// при совпадении id побеждает первая копия
	assert.Equal(t, 0, merged[1].RetryCount)
}

func TestQuarantineKey(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 5, time.FixedZone("MSK", 3*3600))

	key := QuarantineKey(at)
	assert.Equal(t, "offlineSyncQueue.corrupt-20250601T063000.000000005Z", key)
	assert.True(t, IsQuarantineKey(key))
	assert.False(t, IsQuarantineKey(QueueKey))
	assert.False(t, IsQuarantineKey(QuarantinePrefix))
}
