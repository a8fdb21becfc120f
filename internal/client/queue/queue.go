// Package queue holds the ordered list of pending mutations and keeps it in step with
// the durable queue store.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/models"
)

var (
	// ErrRecordNotFound indicates that no record with the given id is queued
	ErrRecordNotFound = errors.New("mutation record not found")

	// ErrNotAmendable indicates that the record is being synced or already resolved
	ErrNotAmendable = errors.New("mutation record cannot be changed in its current state")

	// ErrInvalidMutation indicates a malformed enqueue request
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrQuarantineUnsupported indicates a store that cannot set an unreadable queue aside
	ErrQuarantineUnsupported = errors.New("queue store does not keep unreadable queues")

	// errInterrupted is recorded on records that were mid-send when the process stopped
	errInterrupted = errors.New("interrupted while syncing")
)

// maxMergeAttempts bounds how often a save is retried after another writer changed the store.
const maxMergeAttempts = 3

// Queue is the in-memory FIFO of mutation records. Every change is persisted to the
// store before the method returns. Persistence failures are logged and do not fail the
// caller: the in-memory queue stays authoritative until the next successful save.
//
// A stored queue that could not be loaded is never overwritten. Before the first save
// the queue reads the store again and merges what it finds, or, if the bytes are still
// unreadable, moves them aside with storage.Quarantiner. Stores that cannot do either
// are not written to until Clear.
type Queue struct {
	store      storage.QueueStore
	logger     *slog.Logger
	now        func() time.Time
	onSave     func(pending int)
	unreadable error               // unreadable ошибка Load, пока сохраненная очередь не отложена
	stored     map[string]string // stored версии записей при последнем чтении или записи хранилища
	records    []*models.MutationRecord
	mu         sync.Mutex
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithSaveHook registers a callback invoked with the pending count after every change.
func WithSaveHook(fn func(pending int)) Option {
	return func(q *Queue) {
		q.onSave = fn
	}
}

// New creates an empty queue backed by store. Call Load to restore persisted records.
func New(store storage.QueueStore, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load restores the queue from the store and returns the number of records.
// An unreadable store yields an empty queue; the stored bytes are kept until they can
// be read or set aside. Records left syncing by a crash are reverted to pending so the
// engine re-attempts them.
func (q *Queue) Load(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.store.Load(ctx)
	if err != nil {
		q.logger.Warn("Failed to load offline queue, starting empty", "error", err)
		q.unreadable = err
		q.stored = nil
		q.records = nil
		return 0
	}

	q.unreadable = nil
	q.rememberStored(records)
	recovered := recoverInterrupted(records)

	q.records = records
	if recovered > 0 {
		q.logger.Info("Recovered records interrupted mid-sync", "count", recovered)
		q.persistLocked(ctx)
	}

	q.logger.Info("Offline queue loaded", "count", len(records))
	return len(records)
}

// Enqueue appends a pending record and returns its id for optimistic local use.
func (q *Queue) Enqueue(ctx context.Context, entityType models.EntityType, payload models.Payload, action models.Action) (string, error) {
	if entityType == "" {
		return "", fmt.Errorf("%w: empty entity type", ErrInvalidMutation)
	}
	if !action.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidMutation, action)
	}
	if action != models.ActionCreate && payload.EntityID() == "" {
		return "", fmt.Errorf("%w: %s requires an entity id", ErrInvalidMutation, action)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate record id: %w", err)
	}

	record := &models.MutationRecord{
		ID:         id.String(),
		EntityType: entityType,
		Action:     action,
		Payload:    payload.Clone(),
		CreatedAt:  q.now(),
		SyncStatus: models.StatusPending,
	}
	if record.Payload == nil {
		record.Payload = models.Payload{}
	}
	if action == models.ActionDelete {
		record.Payload = models.Payload{models.FieldID: payload[models.FieldID]}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = append(q.records, record)
	q.persistLocked(ctx)

	q.logger.Debug("Mutation queued",
		"record_id", record.ID,
		"entity_type", entityType,
		"action", action)

	return record.ID, nil
}

// Amend merges partial into the payload of a record that has not been dispatched yet.
// Order and status are unchanged.
func (q *Queue) Amend(ctx context.Context, id string, partial models.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	record := q.findLocked(id)
	if record == nil {
		return ErrRecordNotFound
	}
	if !amendable(record) {
		return fmt.Errorf("%w: %s", ErrNotAmendable, record.SyncStatus)
	}

	record.Payload.Merge(partial.Clone())
	q.persistLocked(ctx)
	return nil
}

// MarkDeleted records the deletion of the entity a queued record refers to and returns
// the id of the record that now carries the delete.
//
// A create that certainly never reached the server is dropped, since there is nothing
// to delete remotely; the returned bool reports this. A create that may have reached
// the server (a send timed out or was interrupted) is kept and a delete is queued
// behind it, so the entity is removed once the create resolves. Any other record is
// turned into a delete in place.
func (q *Queue) MarkDeleted(ctx context.Context, id string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record := q.findLocked(id)
	if record == nil {
		return "", false, ErrRecordNotFound
	}
	if !amendable(record) {
		return "", false, fmt.Errorf("%w: %s", ErrNotAmendable, record.SyncStatus)
	}

	if record.Action == models.ActionCreate {
		if neverSent(record) {
			q.removeLocked(id)
			q.persistLocked(ctx)
			return "", true, nil
		}

		deleteID, err := uuid.NewV7()
		if err != nil {
			return "", false, fmt.Errorf("failed to generate record id: %w", err)
		}
		q.records = append(q.records, &models.MutationRecord{
			ID:         deleteID.String(),
			EntityType: record.EntityType,
			Action:     models.ActionDelete,
			Payload:    models.Payload{models.FieldID: record.Payload[models.FieldID]},
			CreatedAt:  q.now(),
			SyncStatus: models.StatusPending,
		})
		q.persistLocked(ctx)
		q.logger.Info("Create may already exist on the server, queued delete behind it",
			"record_id", id,
			"delete_record_id", deleteID.String())
		return deleteID.String(), false, nil
	}

	record.Action = models.ActionDelete
	record.Payload = models.Payload{models.FieldID: record.Payload[models.FieldID]}
	q.persistLocked(ctx)
	return id, false, nil
}

// HasUnsent reports whether any record is waiting to be sent or is being sent.
// Conflict and failed records need the user and do not count.
func (q *Queue) HasUnsent() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.records {
		if r.SyncStatus == models.StatusPending || r.SyncStatus == models.StatusSyncing {
			return true
		}
	}
	return false
}

// LoadError returns the error of the last Load while the stored queue it could not
// read is still in place.
func (q *Queue) LoadError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unreadable
}

// Quarantined lists the keys of queues set aside because they could not be read.
func (q *Queue) Quarantined(ctx context.Context) ([]string, error) {
	qr, ok := q.store.(storage.Quarantiner)
	if !ok {
		return nil, ErrQuarantineUnsupported
	}
	return qr.Quarantined(ctx)
}

// Restore moves the records of a set-aside queue back ahead of the live queue and
// reloads. It fails when the set-aside bytes still cannot be read, for example under
// a different passphrase.
func (q *Queue) Restore(ctx context.Context, key string) (int, error) {
	qr, ok := q.store.(storage.Quarantiner)
	if !ok {
		return 0, ErrQuarantineUnsupported
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.settleLocked(ctx) {
		return 0, fmt.Errorf("failed to restore %s: %w", key, q.unreadable)
	}
	// несохраненные изменения не должны потеряться при перечитывании
	if err := q.saveLocked(ctx); err != nil {
		return 0, fmt.Errorf("failed to restore %s: %w", key, err)
	}

	restored, err := qr.Restore(ctx, key)
	if err != nil {
		return 0, err
	}

	records, err := q.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reload restored queue: %w", err)
	}
	q.rememberStored(records)
	recoverInterrupted(records)
	q.records = records
	q.notifyLocked()

	q.logger.Info("Restored set-aside offline queue", "key", key, "count", restored)
	return restored, nil
}

// PendingCount returns the number of records not yet confirmed by the server.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, r := range q.records {
		if r.SyncStatus != models.StatusSuccess {
			count++
		}
	}
	return count
}

// Len returns the number of records held, including succeeded ones awaiting removal.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Records returns copies of all records in queue order.
func (q *Queue) Records() []*models.MutationRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.MutationRecord, 0, len(q.records))
	for _, r := range q.records {
		out = append(out, r.Clone())
	}
	return out
}

// Get returns a copy of the record with the given id.
func (q *Queue) Get(id string) (*models.MutationRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record := q.findLocked(id)
	if record == nil {
		return nil, false
	}
	return record.Clone(), true
}

// FindActive returns the most recent not-yet-dispatched record for an entity.
func (q *Queue) FindActive(entityType models.EntityType, entityID string) (*models.MutationRecord, bool) {
	if entityID == "" {
		return nil, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(q.records) - 1; i >= 0; i-- {
		r := q.records[i]
		if r.EntityType == entityType && r.EntityID() == entityID && amendable(r) {
			return r.Clone(), true
		}
	}
	return nil, false
}

// IDsWithStatus returns ids of records in the given status, in FIFO order.
func (q *Queue) IDsWithStatus(status models.SyncStatus) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, r := range q.records {
		if r.SyncStatus == status {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Update applies fn to the record and persists the result.
func (q *Queue) Update(ctx context.Context, id string, fn func(r *models.MutationRecord)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	record := q.findLocked(id)
	if record == nil {
		return ErrRecordNotFound
	}

	fn(record)
	q.persistLocked(ctx)
	return nil
}

// RewriteEntityID replaces references to a client-assigned entity id with the id the
// server assigned, in records that have not been dispatched yet. It returns the number
// of records changed.
func (q *Queue) RewriteEntityID(ctx context.Context, entityType models.EntityType, from, to string, serverID any) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for _, r := range q.records {
		if r.EntityType != entityType || r.SyncStatus == models.StatusSuccess || r.EntityID() != from {
			continue
		}
		r.Payload[models.FieldID] = serverID
		changed++
	}
	if changed > 0 {
		q.persistLocked(ctx)
		q.logger.Debug("Rewrote local entity id", "entity_type", entityType, "from", from, "to", to, "records", changed)
	}
	return changed
}

// Remove drops a record regardless of its status.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.removeLocked(id) {
		return ErrRecordNotFound
	}
	q.persistLocked(ctx)
	return nil
}

// RemoveSucceeded drops all success records and returns how many were removed.
// When nothing is left the durable store is cleared entirely.
func (q *Queue) RemoveSucceeded(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.records[:0]
	removed := 0
	for _, r := range q.records {
		if r.SyncStatus == models.StatusSuccess {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	q.records = kept

	if len(q.records) == 0 && q.unreadable == nil {
		q.records = nil
		if err := q.clearStoreLocked(ctx); err != nil {
			q.logger.Error("Failed to clear offline queue storage", "error", err)
		}
		q.notifyLocked()
		return removed
	}

	if removed > 0 {
		q.persistLocked(ctx)
	}
	return removed
}

// Clear drops every record and the persisted queue. A stored queue that could not be
// loaded is set aside first where the store supports it.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.settleLocked(ctx)
	q.unreadable = nil
	q.stored = nil
	q.records = nil
	q.notifyLocked()

	err := q.store.Clear(ctx)
	if errors.Is(err, storage.ErrConcurrentUpdate) {
		// явная очистка удаляет и записи других писателей
		if _, loadErr := q.store.Load(ctx); loadErr == nil {
			err = q.store.Clear(ctx)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to clear offline queue: %w", err)
	}
	return nil
}

// clearStoreLocked removes the persisted copy of an emptied queue. Records another
// writer saved in the meantime are merged in and written instead.
func (q *Queue) clearStoreLocked(ctx context.Context) error {
	err := q.store.Clear(ctx)
	if !errors.Is(err, storage.ErrConcurrentUpdate) {
		if err == nil {
			q.stored = nil
		}
		return err
	}

	if err := q.mergeStoredLocked(ctx); err != nil {
		return err
	}
	if len(q.records) == 0 {
		return q.store.Clear(ctx)
	}
	return q.saveLocked(ctx)
}

func (q *Queue) findLocked(id string) *models.MutationRecord {
	for _, r := range q.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (q *Queue) removeLocked(id string) bool {
	for i, r := range q.records {
		if r.ID == id {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) persistLocked(ctx context.Context) {
	defer q.notifyLocked()

	if !q.settleLocked(ctx) {
		q.logger.Error("Offline queue kept in memory only, stored queue is unreadable",
			"error", q.unreadable,
			"count", len(q.records))
		return
	}
	if err := q.saveLocked(ctx); err != nil {
		q.logger.Error("Failed to persist offline queue", "error", err, "count", len(q.records))
	}
}

// saveLocked writes the queue, merging in changes of other writers sharing the store.
func (q *Queue) saveLocked(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err = q.store.Save(ctx, q.records)
		if err == nil {
			q.rememberStored(q.records)
			return nil
		}
		if !errors.Is(err, storage.ErrConcurrentUpdate) {
			return err
		}
		if err := q.mergeStoredLocked(ctx); err != nil {
			return err
		}
	}
	return err
}

// mergeStoredLocked folds in what another writer saved since this queue last read or
// wrote the store. For records both sides hold, the local version wins if it changed
// here, otherwise the stored one is taken. Records the other writer added are taken;
// records it removed are dropped here too.
func (q *Queue) mergeStoredLocked(ctx context.Context) error {
	remote, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload offline queue: %w", err)
	}

	inRemote := make(map[string]*models.MutationRecord, len(remote))
	for _, r := range remote {
		if r.Payload == nil {
			r.Payload = models.Payload{}
		}
		inRemote[r.ID] = r
	}

	merged := make([]*models.MutationRecord, 0, len(q.records)+len(remote))
	local := make(map[string]struct{}, len(q.records))
	dropped := 0
	for _, r := range q.records {
		theirs, stillStored := inRemote[r.ID]
		version, wasStored := q.stored[r.ID]
		switch {
		case wasStored && !stillStored:
			// другой процесс уже отправил или удалил запись
			dropped++
			continue
		case wasStored && version == fingerprint(r):
			r = theirs
		}
		local[r.ID] = struct{}{}
		merged = append(merged, r)
	}

	added := 0
	for _, r := range remote {
		if _, ok := local[r.ID]; ok {
			continue
		}
		if _, wasStored := q.stored[r.ID]; wasStored {
			// удалена здесь
			continue
		}
		merged = append(merged, r)
		added++
	}

	slices.SortStableFunc(merged, func(a, b *models.MutationRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	q.records = merged
	q.rememberStored(remote)
	q.logger.Info("Merged offline queue changes from another writer", "added", added, "dropped", dropped)
	return nil
}

// settleLocked makes the store safe to write after a failed Load. It reports false
// while the stored bytes can neither be read nor set aside.
func (q *Queue) settleLocked(ctx context.Context) bool {
	if q.unreadable == nil {
		return true
	}

	if records, err := q.store.Load(ctx); err == nil {
		recoverInterrupted(records)
		q.records = storage.MergeRecords(records, q.records)
		q.rememberStored(records)
		q.unreadable = nil
		q.logger.Info("Stored offline queue readable again, merged", "count", len(records))
		return true
	}

	qr, ok := q.store.(storage.Quarantiner)
	if !ok {
		return false
	}
	key, err := qr.Quarantine(ctx)
	if err != nil {
		q.logger.Error("Failed to set unreadable offline queue aside", "error", err)
		return false
	}

	q.logger.Warn("Unreadable offline queue set aside", "key", key, "error", q.unreadable)
	q.unreadable = nil
	q.stored = nil
	return true
}

func (q *Queue) rememberStored(records []*models.MutationRecord) {
	q.stored = make(map[string]string, len(records))
	for _, r := range records {
		q.stored[r.ID] = fingerprint(r)
	}
}

// fingerprint identifies a record version; records are plain JSON data.
func fingerprint(r *models.MutationRecord) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

func (q *Queue) notifyLocked() {
	if q.onSave == nil {
		return
	}
	pending := 0
	for _, r := range q.records {
		if r.SyncStatus != models.StatusSuccess {
			pending++
		}
	}
	q.onSave(pending)
}

// recoverInterrupted reverts records left syncing to pending and returns their number.
// Such a record may have reached the server, which is noted in LastError.
func recoverInterrupted(records []*models.MutationRecord) int {
	recovered := 0
	for _, r := range records {
		if r.SyncStatus == models.StatusSyncing {
			r.SyncStatus = models.StatusPending
			r.SetError(errInterrupted)
			recovered++
		}
		if r.Payload == nil {
			r.Payload = models.Payload{}
		}
	}
	return recovered
}

// neverSent reports whether a record certainly did not reach the server: it was never
// dispatched, or the server rejected it outright. Transient failures count attempts,
// interrupted sends leave a LastError on a pending record.
func neverSent(r *models.MutationRecord) bool {
	if r.RetryCount > 0 {
		return false
	}
	return r.SyncStatus == models.StatusFailed || r.LastError == nil
}

// amendable reports whether a record may still be edited locally.
func amendable(r *models.MutationRecord) bool {
	return r.SyncStatus == models.StatusPending || r.SyncStatus == models.StatusFailed
}
