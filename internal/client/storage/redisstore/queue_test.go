package redisstore

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

func TestStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	store := New(client, "")
	ctx := context.Background()

	records := []*models.MutationRecord{
		{
			ID:         "rec-1",
			EntityType: models.EntityTask,
			Action:     models.ActionCreate,
			Payload:    models.Payload{"title": "Buy milk"},
			CreatedAt:  time.Now().UTC(),
			SyncStatus: models.StatusPending,
		},
		{
			ID:         "rec-2",
			EntityType: models.EntityTask,
			Action:     models.ActionDelete,
			Payload:    models.Payload{"id": float64(7)},
			CreatedAt:  time.Now().UTC(),
			SyncStatus: models.StatusSuccess,
		},
	}

	t.Run("LoadEmpty", func(t *testing.T) {
		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SaveAndLoadPurgesSucceeded", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, records))
		assert.True(t, s.Exists("taskkeeper:offlineSyncQueue"))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "rec-1", got[0].ID)

		// Очищенная очередь сохранена обратно
		raw, err := s.Get("taskkeeper:offlineSyncQueue")
		require.NoError(t, err)
		assert.NotContains(t, raw, "rec-2")
	})

	t.Run("Corrupt", func(t *testing.T) {
		require.NoError(t, s.Set("taskkeeper:offlineSyncQueue", "not json"))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrCorruptQueue)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, records[:1]))
		require.NoError(t, store.Clear(ctx))
		assert.False(t, s.Exists("taskkeeper:offlineSyncQueue"))
	})

	t.Run("Unavailable", func(t *testing.T) {
		s.SetError("LOADING")
		defer s.SetError("")

		_, err := store.Load(ctx)
		assert.Error(t, err)
	})
}

func TestStore_CustomPrefix(t *testing.T) {
	s := miniredis.RunT(t)

	client := NewClient(Config{Address: s.Addr()})
	store := New(client, "user-42:")
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Save(context.Background(), nil))
	assert.True(t, s.Exists("user-42:offlineSyncQueue"))
}

func TestStore_DetectsConcurrentWriter(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()

	first := New(NewClient(Config{Address: s.Addr()}), "")
	second := New(NewClient(Config{Address: s.Addr()}), "")
	defer func() { _ = first.Close() }()
	defer func() { _ = second.Close() }()

	_, err := first.Load(ctx)
	require.NoError(t, err)
	_, err = second.Load(ctx)
	require.NoError(t, err)

	a := []*models.MutationRecord{{ID: "a", SyncStatus: models.StatusPending, Payload: models.Payload{}}}
	require.NoError(t, first.Save(ctx, a))

	err = second.Save(ctx, []*models.MutationRecord{{ID: "b", SyncStatus: models.StatusPending, Payload: models.Payload{}}})
	assert.ErrorIs(t, err, storage.ErrConcurrentUpdate)

	// после перечитывания запись разрешена
	got, err := second.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, second.Save(ctx, append(got, &models.MutationRecord{ID: "b", SyncStatus: models.StatusPending, Payload: models.Payload{}})))

	// Clear тоже виден другим писателям
	require.NoError(t, second.Clear(ctx))
	assert.ErrorIs(t, first.Save(ctx, a), storage.ErrConcurrentUpdate)
}

func TestQueue_TwoWritersShareKey(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var tick atomic.Int64
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }

	newQueue := func() *queue.Queue {
		store := New(NewClient(Config{Address: s.Addr()}), "")
		t.Cleanup(func() { _ = store.Close() })
		q := queue.New(store, logger, queue.WithClock(clock))
		q.Load(ctx)
		return q
	}
	titles := func(records []*models.MutationRecord) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.Payload["title"].(string))
		}
		return out
	}

	daemon := newQueue()
	a, err := daemon.Enqueue(ctx, models.EntityTask, models.Payload{"title": "A"}, models.ActionCreate)
	require.NoError(t, err)

	cli := newQueue()
	_, err = cli.Enqueue(ctx, models.EntityTask, models.Payload{"title": "B from CLI"}, models.ActionCreate)
	require.NoError(t, err)

	_, err = daemon.Enqueue(ctx, models.EntityTask, models.Payload{"title": "C"}, models.ActionCreate)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B from CLI", "C"}, titles(newQueue().Records()))
	assert.Equal(t, []string{"A", "B from CLI", "C"}, titles(daemon.Records()))

	// запись, отправленная демоном, не возвращается из старой копии CLI
	require.NoError(t, daemon.Remove(ctx, a))
	_, err = cli.Enqueue(ctx, models.EntityNote, models.Payload{"title": "D"}, models.ActionCreate)
	require.NoError(t, err)

	assert.Equal(t, []string{"B from CLI", "C", "D"}, titles(newQueue().Records()))
	assert.Equal(t, []string{"B from CLI", "C", "D"}, titles(cli.Records()))

	// демон отправил все, что видит: второй проход подхватывает D, сохраненную CLI
	for range 2 {
		for _, r := range daemon.Records() {
			if r.SyncStatus == models.StatusSuccess {
				continue
			}
			require.NoError(t, daemon.Update(ctx, r.ID, func(r *models.MutationRecord) { r.SyncStatus = models.StatusSuccess }))
		}
	}
	require.Len(t, daemon.Records(), 3)

	// устаревшая копия CLI не возвращает отправленные демоном записи
	_, err = cli.Enqueue(ctx, models.EntityTask, models.Payload{"title": "E"}, models.ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, []string{"E"}, titles(cli.Records()))

	assert.Equal(t, 3, daemon.RemoveSucceeded(ctx))
	assert.Equal(t, []string{"E"}, titles(daemon.Records()))
	assert.Equal(t, []string{"E"}, titles(newQueue().Records()))
}

func TestStore_QuarantineAndRestore(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()
	store := New(NewClient(Config{Address: s.Addr()}), "")
	defer func() { _ = store.Close() }()

	key, err := store.Quarantine(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	old := `{"version":1,"records":[{"id":"old","entity_type":"task","action":"create","payload":{"title":"kept"},"sync_status":"pending"}]}`
	require.NoError(t, s.Set("taskkeeper:offlineSyncQueue", old))

	key, err = store.Quarantine(ctx)
	require.NoError(t, err)
	assert.True(t, storage.IsQuarantineKey(key))
	assert.False(t, s.Exists("taskkeeper:offlineSyncQueue"))

	raw, err := s.Get("taskkeeper:" + key)
	require.NoError(t, err)
	assert.Equal(t, old, raw)

	require.NoError(t, store.Save(ctx, []*models.MutationRecord{
		{ID: "new", EntityType: models.EntityNote, Action: models.ActionCreate, SyncStatus: models.StatusPending, Payload: models.Payload{}},
	}))

	keys, err := store.Quarantined(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	n, err := store.Restore(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.Exists("taskkeeper:"+key))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].ID)
	assert.Equal(t, "new", got[1].ID)

	_, err = store.Restore(ctx, key)
	assert.ErrorIs(t, err, storage.ErrQuarantineNotFound)
}
