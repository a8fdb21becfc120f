package offline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/taskkeeper/internal/client/api"
	"github.com/iudanet/taskkeeper/internal/client/connectivity"
	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/client/storage/memstore"
	"github.com/iudanet/taskkeeper/internal/client/sync"
	"github.com/iudanet/taskkeeper/internal/models"
	"github.com/iudanet/taskkeeper/internal/validation"
)

type testService struct {
	*Service
	signal *connectivity.ManualSignal
	remote *sync.RemoteAPIMock
	store  *memstore.Store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, remote *sync.RemoteAPIMock, offline bool) *testService {
	t.Helper()

	logger := testLogger()
	signal := connectivity.NewManualSignal(offline)
	monitor := connectivity.NewMonitor(signal, logger, connectivity.WithSettleDelay(5*time.Millisecond))

	store := memstore.New()
	q := queue.New(store, logger)
	q.Load(context.Background())

	cfg := sync.DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	engine := sync.NewEngine(q, sync.DefaultRegistry(remote), monitor, cfg, logger)

	return &testService{
		Service: NewService(monitor, q, engine, remote, logger),
		signal:  signal,
		remote:  remote,
		store:   store,
	}
}

func echoRemote() *sync.RemoteAPIMock {
	next := 100.0
	return &sync.RemoteAPIMock{
		CreateEntityFunc: func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
			next++
			out := payload.Clone()
			out["id"] = next
			return out, nil
		},
		UpdateEntityFunc: func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
			return payload, nil
		},
		DeleteEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) error {
			return nil
		},
		GetEntityFunc: func(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error) {
			return models.Payload{"id": id}, nil
		},
	}
}

func TestService_OfflineCreateIsQueued(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	res, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "Buy milk"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.NotEmpty(t, res.RecordID)
	assert.True(t, strings.HasPrefix(res.Entity.EntityID(), models.LocalIDPrefix))
	assert.Equal(t, "Buy milk", res.Entity["title"])

	assert.Equal(t, 1, svc.PendingCount())
	assert.Empty(t, svc.remote.CreateEntityCalls())

	st := svc.GetSyncStatus()
	assert.True(t, st.Offline)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, "Offline: 1 change waiting to sync", st.Indicator())
}

func TestService_OnlineWritesGoDirect(t *testing.T) {
	svc := newTestService(t, echoRemote(), false)
	ctx := context.Background()

	res, err := svc.Create(ctx, models.EntityNote, models.Payload{"title": "n"})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, float64(101), res.Entity["id"])

	_, err = svc.Update(ctx, models.EntityNote, "101", models.Payload{"content": "c"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, models.EntityNote, "101")
	require.NoError(t, err)

	assert.Equal(t, 0, svc.PendingCount())
	assert.Len(t, svc.remote.UpdateEntityCalls(), 1)
	assert.Len(t, svc.remote.DeleteEntityCalls(), 1)
}

func TestService_NetworkErrorFallsBackToQueue(t *testing.T) {
	remote := echoRemote()
	remote.CreateEntityFunc = func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
		return nil, &api.Error{Kind: api.KindNetwork, Err: errors.New("dial tcp: connection refused")}
	}
	svc := newTestService(t, remote, false)

	res, err := svc.Create(context.Background(), models.EntityTask, models.Payload{"title": "x"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, 1, svc.PendingCount())
}

func TestService_ServerRejectionIsReturned(t *testing.T) {
	remote := echoRemote()
	remote.CreateEntityFunc = func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
		return nil, &api.Error{Kind: api.KindBadRequest, StatusCode: 400, Message: "title required"}
	}
	svc := newTestService(t, remote, false)

	_, err := svc.Create(context.Background(), models.EntityTask, models.Payload{"title": "dup"})
	assert.ErrorIs(t, err, api.ErrBadRequest)
	assert.Equal(t, 0, svc.PendingCount())
}

func TestService_InvalidWritesAreRejectedLocally(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.EntityTask, models.Payload{"completed": true})
	assert.ErrorIs(t, err, validation.ErrInvalid)

	_, err = svc.Update(ctx, models.EntityTask, "7", models.Payload{"priority": "asap"})
	assert.ErrorIs(t, err, validation.ErrInvalid)

	assert.Equal(t, 0, svc.PendingCount())
	assert.Empty(t, svc.remote.CreateEntityCalls())
}

func TestService_OfflineUpdatesCollapse(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	first, err := svc.Update(ctx, models.EntityTask, "7", models.Payload{"completed": true})
	require.NoError(t, err)
	second, err := svc.Update(ctx, models.EntityTask, "7", models.Payload{"title": "X"})
	require.NoError(t, err)

	assert.Equal(t, first.RecordID, second.RecordID)
	assert.Equal(t, 1, svc.PendingCount())

	svc.signal.SetOffline(false)
	_, err = svc.ForceSync(ctx)
	require.NoError(t, err)

	calls := svc.remote.UpdateEntityCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.Payload{"id": "7", "completed": true, "title": "X"}, calls[0].Payload)
}

func TestService_OfflineCreateThenDeleteCollapses(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "tmp"})
	require.NoError(t, err)

	res, err := svc.Delete(ctx, models.EntityTask, created.Entity.EntityID())
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, 0, svc.PendingCount())
}

func TestService_OfflineUpdateThenDelete(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	upd, err := svc.Update(ctx, models.EntityNote, "3", models.Payload{"content": "x"})
	require.NoError(t, err)
	del, err := svc.Delete(ctx, models.EntityNote, "3")
	require.NoError(t, err)
	assert.Equal(t, upd.RecordID, del.RecordID)

	_, err = svc.Update(ctx, models.EntityNote, "3", models.Payload{"content": "y"})
	assert.ErrorIs(t, err, ErrEntityDeleted)

	again, err := svc.Delete(ctx, models.EntityNote, "3")
	require.NoError(t, err)
	assert.Equal(t, del.RecordID, again.RecordID)
	assert.Equal(t, 1, svc.PendingCount())
}

func TestService_OnlineWriteSendsWaitingRecordsFirst(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "first"})
	require.NoError(t, err)

	// связь вернулась, но первая запись еще в очереди: она уходит раньше новой
	svc.signal.SetOffline(false)
	res, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "second"})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, float64(102), res.Entity["id"])

	calls := svc.remote.CreateEntityCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Payload["title"])
	assert.Equal(t, "second", calls[1].Payload["title"])
	assert.Equal(t, 0, svc.PendingCount())
}

func TestService_WritesQueueBehindUnsentRecords(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	// update сущности, create которой еще не отправлен, остается pending после прохода
	_, err := svc.Enqueue(ctx, models.EntityTask, models.Payload{"id": models.LocalIDPrefix + "x", "title": "t"}, models.ActionUpdate)
	require.NoError(t, err)

	svc.signal.SetOffline(false)
	res, err := svc.Update(ctx, models.EntityNote, "9", models.Payload{"content": "c"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, res.Offline)
	assert.Empty(t, svc.remote.UpdateEntityCalls())
	assert.Equal(t, 2, svc.PendingCount())
}

func TestService_UnreachableServerQueuesWithoutSending(t *testing.T) {
	logger := testLogger()
	signal := connectivity.NewManualSignal(true)
	pinger := &connectivity.PingerMock{
		PingFunc: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}
	monitor := connectivity.NewMonitor(signal, logger,
		connectivity.WithPinger(pinger), connectivity.WithSettleDelay(5*time.Millisecond))
	q := queue.New(memstore.New(), logger)
	q.Load(context.Background())
	remote := echoRemote()
	engine := sync.NewEngine(q, sync.DefaultRegistry(remote), monitor, sync.DefaultConfig(), logger)
	svc := NewService(monitor, q, engine, remote, logger)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "first"})
	require.NoError(t, err)

	// платформа считает сеть доступной, но сервер не отвечает
	signal.SetOffline(false)
	res, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "second"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Offline)
	assert.Empty(t, remote.CreateEntityCalls())
	assert.Len(t, pinger.PingCalls(), 1)
	assert.Equal(t, 2, svc.PendingCount())
}

func TestService_ConflictDoesNotHoldBackOnlineWrites(t *testing.T) {
	remote := echoRemote()
	remote.UpdateEntityFunc = func(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error) {
		return nil, &api.Error{Kind: api.KindConflict, StatusCode: 409, Message: "stale"}
	}
	svc := newTestService(t, remote, true)
	ctx := context.Background()

	_, err := svc.Update(ctx, models.EntityTask, "5", models.Payload{"title": "mine"})
	require.NoError(t, err)

	svc.signal.SetOffline(false)
	_, err = svc.ForceSync(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusConflict, svc.Records()[0].SyncStatus)

	res, err := svc.Create(ctx, models.EntityNote, models.Payload{"title": "unrelated"})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	require.Len(t, svc.remote.CreateEntityCalls(), 1)
	assert.Len(t, svc.Records(), 1)
}

func TestService_DeleteAfterUncertainCreate(t *testing.T) {
	remote := echoRemote()
	remote.CreateEntityFunc = func(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error) {
		return nil, &api.Error{Kind: api.KindNetwork, Err: errors.New("i/o timeout")}
	}
	svc := newTestService(t, remote, false)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "maybe"})
	require.NoError(t, err)
	require.True(t, created.Queued)

	// create мог дойти до сервера: попытки исчерпаны, но запись не выбрасывается
	_, err = svc.ForceSync(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, svc.Records()[0].SyncStatus)

	res, err := svc.Delete(ctx, models.EntityTask, created.Entity.EntityID())
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.NotEqual(t, created.RecordID, res.RecordID)

	records := svc.Records()
	require.Len(t, records, 2)
	assert.Equal(t, models.ActionCreate, records[0].Action)
	assert.Equal(t, models.ActionDelete, records[1].Action)
	assert.Equal(t, created.Entity.EntityID(), records[1].EntityID())
}

func TestService_ForceSyncOffline(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	_, err := svc.Enqueue(context.Background(), models.EntityTask, models.Payload{"title": "x"}, models.ActionCreate)
	require.NoError(t, err)

	_, err = svc.ForceSync(context.Background())
	assert.ErrorIs(t, err, sync.ErrOffline)
}

func TestService_RunDrainsWhenConnectionReturns(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)

	_, err := svc.Create(context.Background(), models.EntityTask, models.Payload{"title": "Buy milk"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	svc.signal.SetOffline(false)
	assert.Eventually(t, func() bool { return svc.PendingCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	calls := svc.remote.CreateEntityCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Buy milk", calls[0].Payload["title"])
	assert.Nil(t, svc.store.Raw())
}

func TestService_ClearOfflineData(t *testing.T) {
	svc := newTestService(t, echoRemote(), true)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.EntityTask, models.Payload{"title": "a"})
	require.NoError(t, err)

	require.NoError(t, svc.ClearOfflineData(ctx))
	assert.Equal(t, 0, svc.PendingCount())
	assert.Nil(t, svc.store.Raw())
	assert.Empty(t, svc.GetSyncStatus().Records)
}
