package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskkeeper/internal/client/api"
	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/client/storage/memstore"
	"github.com/iudanet/taskkeeper/internal/models"
)

type offlineFlag struct {
	atomic.Bool
}

func (f *offlineFlag) IsOffline() bool {
	return f.Load()
}

type countingRecorder struct {
	outcomes map[string]int
	drains   int
	mu       gosync.Mutex
}

func (r *countingRecorder) RecordOutcome(_ models.EntityType, _ models.Action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) ObserveDrain(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drains++
}

type testEnv struct {
	engine  *Engine
	queue   *queue.Queue
	store   *memstore.Store
	api     *RemoteAPIMock
	offline *offlineFlag
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, remote *RemoteAPIMock, opts ...Option) *testEnv {
	t.Helper()

	store := memstore.New()
	q := queue.New(store, testLogger())
	q.Load(context.Background())

	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond

	offline := &offlineFlag{}
	engine := NewEngine(q, DefaultRegistry(remote), offline, cfg, testLogger(), opts...)

	return &testEnv{engine: engine, queue: q, store: store, api: remote, offline: offline}
}

func enqueue(t *testing.T, q *queue.Queue, entityType models.EntityType, payload models.Payload, action models.Action) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), entityType, payload, action)
	require.NoError(t, err)
	return id
}

func networkErr() error {
	return &api.Error{Kind: api.KindNetwork, Err: errors.New("connection refused")}
}

func TestSyncPendingData_OfflineMakesNoRemoteCalls(t *testing.T) {
	env := newTestEnv(t, &RemoteAPIMock{})
	env.offline.Store(true)

	first := enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "a"}, models.ActionCreate)
	second := enqueue(t, env.queue, models.EntityNote, models.Payload{"title": "b"}, models.ActionCreate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Ran)

	// очередь сохранена в порядке постановки
	persisted, err := env.store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, first, persisted[0].ID)
	assert.Equal(t, second, persisted[1].ID)

	assert.Empty(t, env.api.CreateEntityCalls())
	assert.Equal(t, time.Time{}, env.engine.Session().LastSyncTime)
}

func TestSyncPendingData_EmptyQueueIsNoop(t *testing.T) {
	env := newTestEnv(t, &RemoteAPIMock{})

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Ran)
	assert.False(t, env.engine.InProgress())
}

func TestSyncPendingData_EndToEndCreate(t *testing.T) {
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			return models.Payload{"id": float64(1), "title": payload["title"]}, nil
		},
	}
	env := newTestEnv(t, remote)

	env.offline.Store(true)
	enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "Buy milk"}, models.ActionCreate)
	assert.Equal(t, 1, env.queue.PendingCount())

	env.offline.Store(false)
	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Removed)

	calls := remote.CreateEntityCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.EntityTask, calls[0].EntityType)
	assert.Equal(t, "Buy milk", calls[0].Payload["title"])

	assert.Equal(t, 0, env.queue.Len())
	assert.Nil(t, env.store.Raw())

	session := env.engine.Session()
	assert.Equal(t, 1, session.SuccessCount)
	assert.False(t, session.InProgress)
	assert.False(t, session.LastSyncTime.IsZero())
}

func TestSyncPendingData_FIFOOrder(t *testing.T) {
	var mu gosync.Mutex
	var order []string
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, payload["title"].(string))
			return models.Payload{"id": float64(len(order))}, nil
		},
	}
	env := newTestEnv(t, remote)

	for _, title := range []string{"one", "two", "three"} {
		enqueue(t, env.queue, models.EntityTask, models.Payload{"title": title}, models.ActionCreate)
	}

	_, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestSyncPendingData_ConcurrentDrainIsNoop(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once gosync.Once
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			once.Do(func() { close(entered) })
			<-release
			return models.Payload{"id": float64(1)}, nil
		},
	}
	env := newTestEnv(t, remote)
	enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "a"}, models.ActionCreate)

	done := make(chan *DrainResult)
	go func() {
		result, _ := env.engine.SyncPendingData(context.Background())
		done <- result
	}()

	<-entered
	assert.True(t, env.engine.InProgress())

	second, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Ran)

	close(release)
	first := <-done
	assert.True(t, first.Ran)
	assert.Len(t, remote.CreateEntityCalls(), 1)
}

func TestSyncPendingData_RetryBound(t *testing.T) {
	remote := &RemoteAPIMock{
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return nil, networkErr()
		},
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": float64(5)}, nil
		},
	}
	recorder := &countingRecorder{}
	env := newTestEnv(t, remote, WithRecorder(recorder))

	id := enqueue(t, env.queue, models.EntityTask, models.Payload{"id": float64(5), "title": "x"}, models.ActionUpdate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	assert.Len(t, remote.UpdateEntityCalls(), DefaultMaxRetries)

	record, ok := env.queue.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, record.SyncStatus)
	assert.Equal(t, DefaultMaxRetries, record.RetryCount)
	require.NotNil(t, record.LastError)
	assert.Contains(t, *record.LastError, "connection refused")

	assert.Equal(t, 1, env.engine.Session().FailureCount)
	assert.Equal(t, DefaultMaxRetries-1, recorder.outcomes[OutcomeRetry])
	assert.Equal(t, 1, recorder.outcomes[OutcomeFailed])
	assert.Equal(t, 1, recorder.drains)

	// следующий проход не трогает failed запись
	_, err = env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Len(t, remote.UpdateEntityCalls(), DefaultMaxRetries)
}

func TestSyncPendingData_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			if calls.Add(1) == 1 {
				return nil, &api.Error{Kind: api.KindServer, StatusCode: 503, Message: "unavailable"}
			}
			return models.Payload{"id": float64(9)}, nil
		},
	}
	env := newTestEnv(t, remote)
	enqueue(t, env.queue, models.EntityNote, models.Payload{"title": "n"}, models.ActionCreate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, env.queue.Len())
}

func TestSyncPendingData_NonTransientFailsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "unauthorized", err: &api.Error{Kind: api.KindUnauthorized, StatusCode: 401}},
		{name: "bad request", err: &api.Error{Kind: api.KindBadRequest, StatusCode: 400}},
		{name: "update target missing", err: &api.Error{Kind: api.KindNotFound, StatusCode: 404}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &RemoteAPIMock{
				GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
					return nil, &api.Error{Kind: api.KindNotFound, StatusCode: 404}
				},
				UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
					return nil, tt.err
				},
			}
			env := newTestEnv(t, remote)
			id := enqueue(t, env.queue, models.EntityTask, models.Payload{"id": float64(3), "title": "x"}, models.ActionUpdate)

			_, err := env.engine.SyncPendingData(context.Background())
			require.NoError(t, err)

			assert.Len(t, remote.UpdateEntityCalls(), 1)
			record, _ := env.queue.Get(id)
			assert.Equal(t, models.StatusFailed, record.SyncStatus)
			assert.Equal(t, 0, record.RetryCount)
		})
	}
}

func TestSyncPendingData_DeleteNotFoundIsSuccess(t *testing.T) {
	remote := &RemoteAPIMock{
		DeleteEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) error {
			return &api.Error{Kind: api.KindNotFound, StatusCode: 404}
		},
	}
	env := newTestEnv(t, remote)
	enqueue(t, env.queue, models.EntityNote, models.Payload{"id": float64(8)}, models.ActionDelete)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, env.queue.Len())
	assert.Equal(t, "8", remote.DeleteEntityCalls()[0].ID)
}

func TestSyncPendingData_TimestampConflict(t *testing.T) {
	t0 := "2025-03-01T10:00:00Z"
	t1 := "2025-03-01T11:00:00Z"
	remote := &RemoteAPIMock{
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": float64(1), "title": "server", "updated_at": t1}, nil
		},
	}
	env := newTestEnv(t, remote)
	id := enqueue(t, env.queue, models.EntityTask,
		models.Payload{"id": float64(1), "title": "local", "updated_at": t0}, models.ActionUpdate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Empty(t, remote.UpdateEntityCalls())

	record, ok := env.queue.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusConflict, record.SyncStatus)

	conflicts := env.engine.Session().Conflicts
	require.Len(t, conflicts, 1)
	assert.Equal(t, id, conflicts[0].RecordID)
	assert.Equal(t, "1", conflicts[0].EntityID)
	assert.Equal(t, "server", conflicts[0].ServerVersion["title"])
	assert.Equal(t, "local", conflicts[0].LocalVersion["title"])
}

func TestSyncPendingData_OlderServerVersionIsNotConflict(t *testing.T) {
	remote := &RemoteAPIMock{
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": float64(1), "updated_at": "2025-03-01T10:00:00Z"}, nil
		},
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return payload, nil
		},
	}
	env := newTestEnv(t, remote)
	enqueue(t, env.queue, models.EntityTask,
		models.Payload{"id": float64(1), "updated_at": "2025-03-01T10:00:00Z"}, models.ActionUpdate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, remote.UpdateEntityCalls(), 1)
}

func TestSyncPendingData_ServerRejectsStaleUpdate(t *testing.T) {
	remote := &RemoteAPIMock{
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return nil, &api.Error{
				Kind:       api.KindConflict,
				StatusCode: 409,
				Message:    "stale",
				Current:    models.Payload{"id": float64(2), "content": "server"},
			}
		},
	}
	env := newTestEnv(t, remote)
	env.engine.cfg.ConflictCheck = false

	id := enqueue(t, env.queue, models.EntityNote, models.Payload{"id": float64(2), "content": "local"}, models.ActionUpdate)

	_, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remote.GetEntityCalls())

	conflicts := env.engine.Session().Conflicts
	require.Len(t, conflicts, 1)
	assert.Equal(t, id, conflicts[0].RecordID)
	assert.Equal(t, "server", conflicts[0].ServerVersion["content"])
}

func TestSyncPendingData_AmendedUpdatesCollapse(t *testing.T) {
	remote := &RemoteAPIMock{
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": float64(4)}, nil
		},
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return payload, nil
		},
	}
	env := newTestEnv(t, remote)
	env.offline.Store(true)

	id := enqueue(t, env.queue, models.EntityTask, models.Payload{"id": float64(4), "completed": true}, models.ActionUpdate)
	require.NoError(t, env.queue.Amend(context.Background(), id, models.Payload{"title": "X"}))

	env.offline.Store(false)
	_, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)

	calls := remote.UpdateEntityCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "4", calls[0].ID)
	assert.Equal(t, models.Payload{"id": float64(4), "completed": true, "title": "X"}, calls[0].Payload)
}

func TestSyncPendingData_LocalIDRemap(t *testing.T) {
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			return models.Payload{"id": float64(42), "title": payload["title"]}, nil
		},
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": float64(42)}, nil
		},
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return payload, nil
		},
	}
	env := newTestEnv(t, remote)

	enqueue(t, env.queue, models.EntityTask, models.Payload{"id": "local-abc", "title": "X"}, models.ActionCreate)
	enqueue(t, env.queue, models.EntityTask, models.Payload{"id": "local-abc", "completed": true}, models.ActionUpdate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	// локальный id не уходит на сервер
	_, hasID := remote.CreateEntityCalls()[0].Payload["id"]
	assert.False(t, hasID)

	updates := remote.UpdateEntityCalls()
	require.Len(t, updates, 1)
	assert.Equal(t, "42", updates[0].ID)
}

func TestSyncPendingData_UnsyncedReferenceWaits(t *testing.T) {
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			return nil, &api.Error{Kind: api.KindBadRequest, StatusCode: 400}
		},
	}
	env := newTestEnv(t, remote)

	enqueue(t, env.queue, models.EntityTask, models.Payload{"id": "local-abc", "title": ""}, models.ActionCreate)
	update := enqueue(t, env.queue, models.EntityTask, models.Payload{"id": "local-abc", "completed": true}, models.ActionUpdate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)

	record, _ := env.queue.Get(update)
	assert.Equal(t, models.StatusPending, record.SyncStatus)
	assert.Empty(t, remote.UpdateEntityCalls())
}

func TestSyncPendingData_UnknownEntityTypeStaysPending(t *testing.T) {
	env := newTestEnv(t, &RemoteAPIMock{})
	id := enqueue(t, env.queue, "reminder", models.Payload{"title": "x"}, models.ActionCreate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	record, ok := env.queue.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, record.SyncStatus)
	assert.Equal(t, 0, record.RetryCount)
}

func TestSyncPendingData_CancelDuringBackoffLeavesPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			cancel()
			return nil, networkErr()
		},
	}
	env := newTestEnv(t, remote)
	env.engine.cfg.BaseDelay = time.Hour

	id := enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "a"}, models.ActionCreate)

	_, err := env.engine.SyncPendingData(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	record, _ := env.queue.Get(id)
	assert.Equal(t, models.StatusPending, record.SyncStatus)
	assert.False(t, env.engine.InProgress())
}

func TestSyncPendingData_StopsWhenConnectionDrops(t *testing.T) {
	var env *testEnv
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			// связь пропадает сразу после первой отправки
			env.offline.Store(true)
			return models.Payload{"id": float64(1)}, nil
		},
	}
	env = newTestEnv(t, remote)

	enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "one"}, models.ActionCreate)
	second := enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "two"}, models.ActionCreate)
	third := enqueue(t, env.queue, models.EntityNote, models.Payload{"title": "three"}, models.ActionCreate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, remote.CreateEntityCalls(), 1)

	for _, id := range []string{second, third} {
		record, ok := env.queue.Get(id)
		require.True(t, ok)
		assert.Equal(t, models.StatusPending, record.SyncStatus)
		assert.Equal(t, 0, record.RetryCount)
	}
}

func TestSyncPendingData_TransientFailureWhileGoingOffline(t *testing.T) {
	var env *testEnv
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			env.offline.Store(true)
			return nil, networkErr()
		},
	}
	env = newTestEnv(t, remote)

	first := enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "one"}, models.ActionCreate)
	second := enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "two"}, models.ActionCreate)

	result, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Skipped)

	// одна попытка без повторов с задержкой
	assert.Len(t, remote.CreateEntityCalls(), 1)

	record, _ := env.queue.Get(first)
	assert.Equal(t, models.StatusPending, record.SyncStatus)
	assert.Equal(t, 1, record.RetryCount)

	record, _ = env.queue.Get(second)
	assert.Equal(t, models.StatusPending, record.SyncStatus)
	assert.Equal(t, 0, record.RetryCount)
}

func TestForceSync_RefusesOffline(t *testing.T) {
	env := newTestEnv(t, &RemoteAPIMock{})
	env.offline.Store(true)
	enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "a"}, models.ActionCreate)

	_, err := env.engine.ForceSync(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestResetCounters(t *testing.T) {
	remote := &RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			return models.Payload{"id": float64(1)}, nil
		},
	}
	env := newTestEnv(t, remote)
	enqueue(t, env.queue, models.EntityTask, models.Payload{"title": "a"}, models.ActionCreate)

	_, err := env.engine.SyncPendingData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, env.engine.Session().SuccessCount)

	env.engine.ResetCounters()
	assert.Equal(t, 0, env.engine.Session().SuccessCount)
}

func TestNextDelaySchedule(t *testing.T) {
	env := newTestEnv(t, &RemoteAPIMock{})
	env.engine.cfg.BaseDelay = time.Second

	b := env.engine.newBackoff()
	assert.Equal(t, time.Second, nextDelay(b))
	assert.Equal(t, 2*time.Second, nextDelay(b))
	assert.Equal(t, 4*time.Second, nextDelay(b))

	env.engine.cfg.BaseDelay = 0
	assert.Equal(t, time.Duration(0), nextDelay(env.engine.newBackoff()))
}
