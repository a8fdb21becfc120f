package sync

import (
	"context"
	"fmt"

	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/models"
)

// ResolveConflict settles a conflicted record. Server wins drops the local change;
// client wins re-queues it with a fresh retry budget and drains if online.
// In both cases the conflict leaves the session list.
func (e *Engine) ResolveConflict(ctx context.Context, recordID string, useServerVersion bool) error {
	record, ok := e.queue.Get(recordID)
	if !ok || record.SyncStatus != models.StatusConflict {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, recordID)
	}

	e.mu.Lock()
	var server models.Payload
	for _, c := range e.conflicts {
		if c.RecordID == recordID {
			server = c.ServerVersion
		}
	}
	e.conflicts = removeConflict(e.conflicts, recordID)
	e.mu.Unlock()

	if !useServerVersion && server == nil {
		server = e.fetchServerVersion(ctx, record)
	}

	if useServerVersion {
		if err := e.queue.Update(ctx, recordID, func(r *models.MutationRecord) {
			r.SyncStatus = models.StatusSuccess
			r.SetError(nil)
		}); err != nil {
			return err
		}
		e.queue.RemoveSucceeded(ctx)
		e.logger.Info("Conflict resolved with server version", "record_id", recordID)
		return nil
	}

	if err := e.queue.Update(ctx, recordID, func(r *models.MutationRecord) {
		r.SyncStatus = models.StatusPending
		r.RetryCount = 0
		r.SetError(nil)
		// правка теперь основана на серверной версии, чтобы повторная проверка не нашла конфликт
		if serverTime, ok := server.UpdatedAt(); ok {
			r.Payload[models.FieldUpdatedAt] = serverTime.Format(models.TimestampLayout)
		}
	}); err != nil {
		return err
	}
	e.logger.Info("Conflict resolved with local version", "record_id", recordID)

	e.drainIfOnline(ctx)
	return nil
}

// fetchServerVersion reads the entity when the conflict was detected by an earlier
// process and its server version is no longer in memory.
func (e *Engine) fetchServerVersion(ctx context.Context, record *models.MutationRecord) models.Payload {
	if e.offline.IsOffline() {
		return nil
	}
	h, ok := e.registry.Handler(record.EntityType)
	if !ok {
		return nil
	}
	server, err := h.Get(ctx, record.EntityID())
	if err != nil {
		e.logger.Warn("Failed to fetch server version for conflict", "record_id", record.ID, "error", err)
		return nil
	}
	return server
}

// RetryFailedSyncs returns failed records that still have retry budget to pending and
// drains if online. It returns the number of records reset.
func (e *Engine) RetryFailedSyncs(ctx context.Context) int {
	reset := 0
	for _, id := range e.queue.IDsWithStatus(models.StatusFailed) {
		_ = e.queue.Update(ctx, id, func(r *models.MutationRecord) {
			if r.SyncStatus == models.StatusFailed && r.RetryCount < e.cfg.MaxRetries {
				r.SyncStatus = models.StatusPending
				reset++
			}
		})
	}

	if reset > 0 {
		e.logger.Info("Failed records re-queued", "count", reset)
		e.drainIfOnline(ctx)
	}
	return reset
}

// RetryRecord re-queues one failed record with a fresh retry budget, including records
// that exhausted their attempts.
func (e *Engine) RetryRecord(ctx context.Context, recordID string) error {
	record, ok := e.queue.Get(recordID)
	if !ok {
		return queue.ErrRecordNotFound
	}
	if record.SyncStatus != models.StatusFailed {
		return fmt.Errorf("%w: %s is %s", ErrNotFailed, recordID, record.SyncStatus)
	}

	if err := e.queue.Update(ctx, recordID, func(r *models.MutationRecord) {
		r.SyncStatus = models.StatusPending
		r.RetryCount = 0
	}); err != nil {
		return err
	}

	e.drainIfOnline(ctx)
	return nil
}

// DiscardRecord drops a record the user gave up on. Records being sent cannot be discarded.
func (e *Engine) DiscardRecord(ctx context.Context, recordID string) error {
	record, ok := e.queue.Get(recordID)
	if !ok {
		return queue.ErrRecordNotFound
	}
	if record.SyncStatus == models.StatusSyncing {
		return fmt.Errorf("%w: %s", queue.ErrNotAmendable, record.SyncStatus)
	}

	e.mu.Lock()
	e.conflicts = removeConflict(e.conflicts, recordID)
	e.mu.Unlock()

	if err := e.queue.Remove(ctx, recordID); err != nil {
		return err
	}
	e.logger.Info("Record discarded", "record_id", recordID, "entity_type", record.EntityType, "action", record.Action)
	return nil
}

// ClearSession drops the conflict list and counters, used when offline data is wiped.
func (e *Engine) ClearSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts = nil
	e.successCount = 0
	e.failureCount = 0
}

func (e *Engine) drainIfOnline(ctx context.Context) {
	if e.offline.IsOffline() {
		return
	}
	if _, err := e.SyncPendingData(ctx); err != nil {
		e.logger.Warn("Sync interrupted", "error", err)
	}
}
