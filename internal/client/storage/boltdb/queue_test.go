package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

func createTestStorage(t *testing.T, opts ...Option) (*Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	store, err := New(context.Background(), dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, dbPath
}

func testRecords() []*models.MutationRecord {
	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return []*models.MutationRecord{
		{
			ID:         "rec-1",
			EntityType: models.EntityTask,
			Action:     models.ActionCreate,
			Payload:    models.Payload{"title": "Buy milk"},
			CreatedAt:  created,
			SyncStatus: models.StatusPending,
		},
		{
			ID:         "rec-2",
			EntityType: models.EntityNote,
			Action:     models.ActionUpdate,
			Payload:    models.Payload{"id": float64(3), "content": "draft"},
			CreatedAt:  created.Add(time.Second),
			SyncStatus: models.StatusFailed,
			RetryCount: 3,
		},
	}
}

func TestQueue_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	// Пустое хранилище - пустая очередь
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	records := testRecords()
	require.NoError(t, store.Save(ctx, records))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rec-1", got[0].ID)
	assert.Equal(t, "rec-2", got[1].ID)
	assert.Equal(t, records[1].Payload, got[1].Payload)
	assert.Equal(t, 3, got[1].RetryCount)
}

func TestQueue_SaveIsIdempotentOverwrite(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	records := testRecords()
	require.NoError(t, store.Save(ctx, records))
	require.NoError(t, store.Save(ctx, records))
	require.NoError(t, store.Save(ctx, records[:1]))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rec-1", got[0].ID)
}

func TestQueue_LoadPurgesSucceeded(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	records := testRecords()
	records[0].SyncStatus = models.StatusSuccess
	require.NoError(t, store.Save(ctx, records))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rec-2", got[0].ID)

	// Очищенная очередь записана обратно
	err = store.db.View(func(tx *bbolt.Tx) error {
		decoded, err := storage.DecodeQueue(tx.Bucket(bucketQueue).Get([]byte(storage.QueueKey)))
		require.NoError(t, err)
		assert.Len(t, decoded, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestQueue_Clear(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	require.NoError(t, store.Save(ctx, testRecords()))
	require.NoError(t, store.Clear(ctx))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueue_CorruptData(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Put([]byte(storage.QueueKey), []byte("{garbage"))
	})
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrCorruptQueue)
}

func TestQueue_ClosedStorage(t *testing.T) {
	ctx := context.Background()
	store, _ := createTestStorage(t)
	require.NoError(t, store.Close())

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.Save(ctx, nil), storage.ErrStorageClosed)
	assert.ErrorIs(t, store.Clear(ctx), storage.ErrStorageClosed)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, dbPath := createTestStorage(t)

	require.NoError(t, store.Save(ctx, testRecords()))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueue_Encrypted(t *testing.T) {
	ctx := context.Background()
	store, dbPath := createTestStorage(t, WithPassphrase("s3cret"))
	require.NotNil(t, store.sealer)

	require.NoError(t, store.Save(ctx, testRecords()))

	// На диске нет открытого текста
	err := store.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketQueue).Get([]byte(storage.QueueKey))
		assert.NotContains(t, string(raw), "Buy milk")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath, WithPassphrase("s3cret"))
	require.NoError(t, err)
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, reopened.Close())

	// Неверная passphrase - очередь нельзя прочитать
	wrong, err := New(ctx, dbPath, WithPassphrase("other"))
	require.NoError(t, err)
	defer func() { _ = wrong.Close() }()
	_, err = wrong.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrCorruptQueue)
}
