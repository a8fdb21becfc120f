// Package offline wires connectivity, the mutation queue and the sync engine into the
// surface the application uses: writes that survive being offline and a sync status.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iudanet/taskkeeper/internal/client/api"
	"github.com/iudanet/taskkeeper/internal/client/connectivity"
	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/client/status"
	"github.com/iudanet/taskkeeper/internal/client/sync"
	"github.com/iudanet/taskkeeper/internal/models"
	"github.com/iudanet/taskkeeper/internal/validation"
)

// ErrEntityDeleted indicates an edit to an entity whose deletion is already queued
var ErrEntityDeleted = errors.New("entity is queued for deletion")

// WriteResult describes the outcome of a write.
type WriteResult struct {
	Entity   models.Payload // Entity серверная версия или оптимистичная локальная
	RecordID string         // RecordID id записи в очереди, если запись отложена
	Queued   bool           // Queued запись отложена в очередь
	Offline  bool           // Offline запись отложена из-за отсутствия связи
}

// Service is the root composition of the offline layer.
type Service struct {
	monitor  *connectivity.Monitor
	queue    *queue.Queue
	engine   *sync.Engine
	remote   sync.RemoteAPI
	reporter *status.Reporter
	logger   *slog.Logger
}

// NewService composes the offline layer. The queue is expected to be loaded.
func NewService(monitor *connectivity.Monitor, q *queue.Queue, engine *sync.Engine, remote sync.RemoteAPI, logger *slog.Logger) *Service {
	s := &Service{
		monitor: monitor,
		queue:   q,
		engine:  engine,
		remote:  remote,
		logger:  logger,
	}
	s.reporter = status.NewReporter(s)
	return s
}

// Run drains once if online and then follows connectivity until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.monitor.OnOnline(func(ctx context.Context) {
		s.drain(ctx)
	})

	if s.monitor.Probe(ctx) {
		s.drain(ctx)
	}

	s.monitor.Run(ctx)
}

func (s *Service) drain(ctx context.Context) {
	if _, err := s.engine.SyncPendingData(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Sync pass interrupted", "error", err)
	}
}

// IsOffline reports the combined connectivity state.
func (s *Service) IsOffline() bool {
	return s.monitor.IsOffline()
}

// Records returns a snapshot of the queue.
func (s *Service) Records() []*models.MutationRecord {
	return s.queue.Records()
}

// Session returns the sync session state.
func (s *Service) Session() sync.Session {
	return s.engine.Session()
}

// Enqueue queues a mutation directly.
func (s *Service) Enqueue(ctx context.Context, entityType models.EntityType, payload models.Payload, action models.Action) (string, error) {
	return s.queue.Enqueue(ctx, entityType, payload, action)
}

// PendingCount returns the number of unsynced mutations.
func (s *Service) PendingCount() int {
	return s.queue.PendingCount()
}

// GetSyncStatus returns the current status snapshot.
func (s *Service) GetSyncStatus() status.Status {
	return s.reporter.Status()
}

// ForceSync drains on explicit request. It probes first so a stale offline verdict
// does not block a user who just reconnected.
func (s *Service) ForceSync(ctx context.Context) (*sync.DrainResult, error) {
	s.monitor.Probe(ctx)
	return s.engine.ForceSync(ctx)
}

// ResolveConflict settles a conflict, see sync.Engine.ResolveConflict.
func (s *Service) ResolveConflict(ctx context.Context, recordID string, useServerVersion bool) error {
	return s.engine.ResolveConflict(ctx, recordID, useServerVersion)
}

// RetryFailedSyncs re-queues failed records with retry budget left.
func (s *Service) RetryFailedSyncs(ctx context.Context) int {
	return s.engine.RetryFailedSyncs(ctx)
}

// RetryRecord re-queues one failed record with a fresh budget.
func (s *Service) RetryRecord(ctx context.Context, recordID string) error {
	return s.engine.RetryRecord(ctx, recordID)
}

// DiscardRecord drops a record.
func (s *Service) DiscardRecord(ctx context.Context, recordID string) error {
	return s.engine.DiscardRecord(ctx, recordID)
}

// ClearOfflineData wipes the queue, its persisted copy and the session state.
func (s *Service) ClearOfflineData(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return err
	}
	s.engine.ClearSession()
	s.logger.Info("Offline data cleared")
	return nil
}

// shouldQueue reports whether a write must go through the queue. Older mutations
// still waiting to be sent go first to keep server-side order: when online they are
// drained now, and the write queues behind whatever is still unsent afterwards.
// Conflict and failed records wait for the user and do not hold writes back. An
// entity still known only by its local id cannot be addressed on the server at all.
func (s *Service) shouldQueue(ctx context.Context, entityID string) bool {
	if s.monitor.IsOffline() || models.IsLocalID(entityID) {
		return true
	}
	if !s.queue.HasUnsent() {
		return false
	}
	// проверка связи до прохода, чтобы не ждать повторов при недоступном сервере
	if !s.monitor.Probe(ctx) {
		return true
	}
	s.drain(ctx)
	return s.monitor.IsOffline() || s.queue.HasUnsent()
}

// Create stores a new entity. Queued creates get a local id the caller can use
// until the server assigns the real one.
func (s *Service) Create(ctx context.Context, entityType models.EntityType, payload models.Payload) (*WriteResult, error) {
	// Невалидная запись упала бы на сервере только при синхронизации
	if err := validation.ValidateFields(string(entityType), payload, true); err != nil {
		return nil, err
	}

	if !s.shouldQueue(ctx, payload.EntityID()) {
		created, err := s.remote.CreateEntity(ctx, entityType, payload)
		if err == nil {
			return &WriteResult{Entity: created}, nil
		}
		if !api.IsNetwork(err) {
			return nil, fmt.Errorf("failed to create %s: %w", entityType, err)
		}
		s.logger.Info("Server unreachable, queueing create", "entity_type", entityType, "error", err)
	}

	local := payload.Clone()
	if local == nil {
		local = models.Payload{}
	}
	if local.EntityID() == "" {
		local[models.FieldID] = models.LocalIDPrefix + uuid.NewString()
	}

	recordID, err := s.queue.Enqueue(ctx, entityType, local, models.ActionCreate)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Entity: local, RecordID: recordID, Queued: true, Offline: s.monitor.IsOffline()}, nil
}

// Update changes fields of an entity. Offline edits to an entity that already has a
// queued create or update are merged into that record.
func (s *Service) Update(ctx context.Context, entityType models.EntityType, entityID string, fields models.Payload) (*WriteResult, error) {
	if err := validation.ValidateFields(string(entityType), fields, false); err != nil {
		return nil, err
	}

	payload := fields.Clone()
	if payload == nil {
		payload = models.Payload{}
	}
	payload[models.FieldID] = entityID

	if !s.shouldQueue(ctx, entityID) {
		updated, err := s.remote.UpdateEntity(ctx, entityType, entityID, payload)
		if err == nil {
			return &WriteResult{Entity: updated}, nil
		}
		if !api.IsNetwork(err) {
			return nil, fmt.Errorf("failed to update %s %s: %w", entityType, entityID, err)
		}
		s.logger.Info("Server unreachable, queueing update", "entity_type", entityType, "entity_id", entityID, "error", err)
	}

	if active, ok := s.queue.FindActive(entityType, entityID); ok {
		if active.Action == models.ActionDelete {
			return nil, fmt.Errorf("%w: %s %s", ErrEntityDeleted, entityType, entityID)
		}
		delete(payload, models.FieldID)
		if err := s.queue.Amend(ctx, active.ID, payload); err != nil {
			return nil, err
		}
		merged, _ := s.queue.Get(active.ID)
		return &WriteResult{Entity: merged.Payload, RecordID: active.ID, Queued: true, Offline: s.monitor.IsOffline()}, nil
	}

	recordID, err := s.queue.Enqueue(ctx, entityType, payload, models.ActionUpdate)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Entity: payload, RecordID: recordID, Queued: true, Offline: s.monitor.IsOffline()}, nil
}

// Delete removes an entity. Deleting an entity whose create never reached the server
// just drops the queued create; see queue.Queue.MarkDeleted for creates whose fate is
// unknown.
func (s *Service) Delete(ctx context.Context, entityType models.EntityType, entityID string) (*WriteResult, error) {
	if !s.shouldQueue(ctx, entityID) {
		err := s.remote.DeleteEntity(ctx, entityType, entityID)
		if err == nil || errors.Is(err, api.ErrNotFound) {
			return &WriteResult{}, nil
		}
		if !api.IsNetwork(err) {
			return nil, fmt.Errorf("failed to delete %s %s: %w", entityType, entityID, err)
		}
		s.logger.Info("Server unreachable, queueing delete", "entity_type", entityType, "entity_id", entityID, "error", err)
	}

	if active, ok := s.queue.FindActive(entityType, entityID); ok {
		if active.Action == models.ActionDelete {
			return &WriteResult{RecordID: active.ID, Queued: true, Offline: s.monitor.IsOffline()}, nil
		}
		recordID, dropped, err := s.queue.MarkDeleted(ctx, active.ID)
		if err != nil {
			return nil, err
		}
		if dropped {
			return &WriteResult{}, nil
		}
		return &WriteResult{RecordID: recordID, Queued: true, Offline: s.monitor.IsOffline()}, nil
	}

	recordID, err := s.queue.Enqueue(ctx, entityType, models.Payload{models.FieldID: entityID}, models.ActionDelete)
	if err != nil {
		return nil, err
	}
	return &WriteResult{RecordID: recordID, Queued: true, Offline: s.monitor.IsOffline()}, nil
}
