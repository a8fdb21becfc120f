// Package sync replays queued mutations against the server: sequential FIFO drain,
// bounded retries with exponential backoff, and conflict detection.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/taskkeeper/internal/client/api"
	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/models"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Outcome labels reported to the Recorder.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
	OutcomeRetry    = "retry"
	OutcomeSkipped  = "skipped"
)

var (
	// ErrUnknownEntityType indicates that no handler is registered for a record's entity type
	ErrUnknownEntityType = errors.New("no sync handler for entity type")

	// ErrOffline indicates that an explicit sync was requested while offline
	ErrOffline = errors.New("cannot sync while offline")

	// ErrConflictNotFound indicates that the record is not in conflict state
	ErrConflictNotFound = errors.New("no conflict for record")

	// ErrNotFailed indicates that the record is not in failed state
	ErrNotFailed = errors.New("record is not failed")

	// errUnsyncedReference marks a record that references an entity whose create has not synced yet
	errUnsyncedReference = errors.New("entity has not been created on the server yet")
)

// OfflineChecker reports current connectivity.
type OfflineChecker interface {
	IsOffline() bool
}

// Recorder receives sync metrics.
type Recorder interface {
	RecordOutcome(entityType models.EntityType, action models.Action, outcome string)
	ObserveDrain(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(models.EntityType, models.Action, string) {}
func (nopRecorder) ObserveDrain(time.Duration)                             {}

// Config holds the retry and conflict policy.
type Config struct {
	MaxRetries    int           // MaxRetries число попыток отправки одной записи
	BaseDelay     time.Duration // BaseDelay задержка перед второй попыткой, далее удваивается
	ConflictCheck bool          // ConflictCheck читать серверную версию перед update
}

// DefaultConfig returns the standard policy: 3 attempts, 1s base delay, conflict pre-read on.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    DefaultMaxRetries,
		BaseDelay:     DefaultBaseDelay,
		ConflictCheck: true,
	}
}

// Session is a snapshot of in-memory sync state. It is not persisted.
type Session struct {
	LastSyncTime time.Time         // LastSyncTime начало последнего прохода
	Conflicts    []models.Conflict // Conflicts неразрешенные конфликты
	SuccessCount int               // SuccessCount успешно отправленные записи
	FailureCount int               // FailureCount записи, исчерпавшие попытки или отклоненные сервером
	InProgress   bool              // InProgress идет проход по очереди
}

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Duration  time.Duration
	Attempted int // Attempted количество обработанных записей
	Succeeded int // Succeeded количество успешно отправленных
	Failed    int // Failed количество перешедших в failed
	Conflicts int // Conflicts количество новых конфликтов
	Skipped   int // Skipped записи, оставшиеся pending (неизвестный тип и т.п.)
	Removed   int // Removed удалено успешных записей из очереди
	Ran       bool
}

// Engine drains the mutation queue.
type Engine struct {
	lastSync     time.Time
	offline      OfflineChecker
	recorder     Recorder
	queue        *queue.Queue
	registry     *Registry
	logger       *slog.Logger
	now          func() time.Time
	conflicts    []models.Conflict
	cfg          Config
	successCount int
	failureCount int
	mu           gosync.Mutex
	inProgress   atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. A zero MaxRetries falls back to DefaultMaxRetries.
func NewEngine(q *queue.Queue, registry *Registry, offline OfflineChecker, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	e := &Engine{
		queue:    q,
		registry: registry,
		offline:  offline,
		cfg:      cfg,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxRetries returns the configured attempt bound.
func (e *Engine) MaxRetries() int {
	return e.cfg.MaxRetries
}

// InProgress reports whether a drain is running.
func (e *Engine) InProgress() bool {
	return e.inProgress.Load()
}

// Session returns a copy of the session state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Session{
		InProgress:   e.inProgress.Load(),
		LastSyncTime: e.lastSync,
		SuccessCount: e.successCount,
		FailureCount: e.failureCount,
		Conflicts:    append([]models.Conflict(nil), e.conflicts...),
	}
}

// ResetCounters zeroes the success and failure counters.
func (e *Engine) ResetCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successCount = 0
	e.failureCount = 0
}

// SyncPendingData drains pending records in FIFO order. It returns immediately with
// Ran=false when offline, when the queue is empty or when another drain is running.
// Per-record failures never abort the pass. Context cancellation stops it, leaving the
// current record pending, and so does losing the connection, leaving every record not
// yet sent pending with its retry budget.
func (e *Engine) SyncPendingData(ctx context.Context) (*DrainResult, error) {
	result := &DrainResult{}

	if e.offline.IsOffline() || e.queue.Len() == 0 {
		return result, nil
	}
	if !e.inProgress.CompareAndSwap(false, true) {
		e.logger.Debug("Sync already in progress, skipping")
		return result, nil
	}
	defer e.inProgress.Store(false)

	start := e.now()
	e.mu.Lock()
	e.lastSync = start
	e.mu.Unlock()

	result.Ran = true
	ids := e.queue.IDsWithStatus(models.StatusPending)
	e.logger.Info("Starting synchronization", "pending", len(ids))

	var err error
	for i, id := range ids {
		if err = ctx.Err(); err != nil {
			break
		}
		if e.offline.IsOffline() {
			// оставшиеся записи ждут связи, не расходуя попытки
			e.logger.Info("Connection lost, stopping synchronization", "left_pending", len(ids)-i)
			break
		}
		outcome, procErr := e.processRecord(ctx, id)
		if procErr != nil {
			err = procErr
			break
		}
		switch outcome {
		case "":
			continue
		case OutcomeSuccess:
			result.Succeeded++
		case OutcomeConflict:
			result.Conflicts++
		case OutcomeFailed:
			result.Failed++
		case OutcomeSkipped:
			result.Skipped++
		}
		result.Attempted++
	}

	result.Removed = e.queue.RemoveSucceeded(ctx)
	result.Duration = time.Since(start)
	e.recorder.ObserveDrain(result.Duration)

	e.logger.Info("Synchronization completed",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"conflicts", result.Conflicts,
		"skipped", result.Skipped,
		"remaining", e.queue.PendingCount())

	return result, err
}

// ForceSync runs a drain on explicit user request and refuses when offline.
func (e *Engine) ForceSync(ctx context.Context) (*DrainResult, error) {
	if e.offline.IsOffline() {
		return nil, ErrOffline
	}
	return e.SyncPendingData(ctx)
}

// processRecord sends one record, retrying transient failures with backoff.
// An empty outcome means the record was no longer pending. A non-nil error is
// returned only for context cancellation.
func (e *Engine) processRecord(ctx context.Context, id string) (string, error) {
	record, ok := e.queue.Get(id)
	if !ok || record.SyncStatus != models.StatusPending {
		return "", nil
	}

	handler, ok := e.registry.Handler(record.EntityType)
	if !ok {
		e.logger.Warn("No sync handler for entity type, leaving record pending",
			"record_id", id,
			"entity_type", record.EntityType)
		e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeSkipped)
		return OutcomeSkipped, nil
	}

	backoff := e.newBackoff()
	for {
		if record.RetryCount >= e.cfg.MaxRetries {
			// запись с исчерпанным лимитом (например после RetryFailedSyncs) сразу в failed
			e.markFailed(ctx, record, nil)
			return OutcomeFailed, nil
		}

		e.setStatus(ctx, id, models.StatusSyncing)

		server, err := e.dispatch(ctx, handler, record)
		switch {
		case err == nil:
			e.markSucceeded(ctx, record, server)
			return OutcomeSuccess, nil

		case ctx.Err() != nil:
			// отмена не расходует попытку
			e.setStatus(ctx, id, models.StatusPending)
			return "", ctx.Err()

		case errors.Is(err, errUnsyncedReference):
			e.logger.Debug("Record waits for its entity to be created", "record_id", id, "entity_id", record.EntityID())
			e.setStatus(ctx, id, models.StatusPending)
			e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeSkipped)
			return OutcomeSkipped, nil

		case errors.Is(err, api.ErrConflict):
			e.markConflict(ctx, record, err)
			return OutcomeConflict, nil

		case !retryable(err):
			e.logger.Warn("Record rejected by server",
				"record_id", id,
				"entity_type", record.EntityType,
				"action", record.Action,
				"error", err)
			e.markFailed(ctx, record, err)
			return OutcomeFailed, nil
		}

		// временная ошибка: расходуем попытку
		record.RetryCount++
		record.SetError(err)
		if record.RetryCount >= e.cfg.MaxRetries {
			e.logger.Warn("Record exhausted retries",
				"record_id", id,
				"attempts", record.RetryCount,
				"error", err)
			e.markFailed(ctx, record, err)
			return OutcomeFailed, nil
		}

		retryCount := record.RetryCount
		_ = e.queue.Update(ctx, id, func(r *models.MutationRecord) {
			r.SyncStatus = models.StatusPending
			r.RetryCount = retryCount
			r.SetError(err)
		})
		e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeRetry)

		if e.offline.IsOffline() {
			e.logger.Info("Connection lost, record waits for the next pass",
				"record_id", id,
				"attempt", retryCount)
			return OutcomeSkipped, nil
		}

		delay := nextDelay(backoff)
		e.logger.Info("Retrying record after transient failure",
			"record_id", id,
			"attempt", retryCount,
			"delay", delay,
			"error", err)

		if err := sleep(ctx, delay); err != nil {
			return "", err
		}

		// запись могла быть изменена (amend) или удалена во время ожидания
		record, ok = e.queue.Get(id)
		if !ok || record.SyncStatus != models.StatusPending {
			return "", nil
		}
	}
}

// dispatch performs the remote call for the record's action and returns the server's
// version of the entity where available.
func (e *Engine) dispatch(ctx context.Context, h Handler, record *models.MutationRecord) (models.Payload, error) {
	switch record.Action {
	case models.ActionCreate:
		return h.Create(ctx, record.Payload)

	case models.ActionUpdate:
		entityID := record.EntityID()
		if models.IsLocalID(entityID) {
			return nil, errUnsyncedReference
		}
		if e.cfg.ConflictCheck {
			if err := e.checkConflict(ctx, h, record); err != nil {
				return nil, err
			}
		}
		return h.Update(ctx, entityID, record.Payload)

	case models.ActionDelete:
		entityID := record.EntityID()
		if models.IsLocalID(entityID) {
			return nil, errUnsyncedReference
		}
		err := h.Delete(ctx, entityID)
		if errors.Is(err, api.ErrNotFound) {
			// уже удалено на сервере
			return nil, nil
		}
		return nil, err

	default:
		return nil, &api.Error{Kind: api.KindBadRequest, Message: fmt.Sprintf("unknown action %q", record.Action)}
	}
}

// checkConflict reads the server version and reports a conflict when it is strictly
// newer than the version the local edit was based on. A missing server entity is not
// a conflict: the update itself will report not-found.
func (e *Engine) checkConflict(ctx context.Context, h Handler, record *models.MutationRecord) error {
	server, err := h.Get(ctx, record.EntityID())
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		return err
	}

	serverTime, ok := server.UpdatedAt()
	if !ok {
		return nil
	}
	localTime, ok := record.Payload.UpdatedAt()
	if !ok {
		return nil
	}
	if serverTime.After(localTime) {
		return &api.Error{
			Kind:    api.KindConflict,
			Message: "server version is newer than local changes",
			Current: server,
		}
	}
	return nil
}

func (e *Engine) markSucceeded(ctx context.Context, record *models.MutationRecord, server models.Payload) {
	_ = e.queue.Update(ctx, record.ID, func(r *models.MutationRecord) {
		r.SyncStatus = models.StatusSuccess
		r.SetError(nil)
	})

	if record.Action == models.ActionCreate && server != nil {
		localID := record.EntityID()
		if models.IsLocalID(localID) && server.EntityID() != "" {
			e.queue.RewriteEntityID(ctx, record.EntityType, localID, server.EntityID(), server[models.FieldID])
		}
	}

	e.mu.Lock()
	e.successCount++
	e.mu.Unlock()

	e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeSuccess)
	e.logger.Debug("Record synced",
		"record_id", record.ID,
		"entity_type", record.EntityType,
		"action", record.Action)
}

// markFailed moves the record to failed. A nil err keeps the previous LastError.
func (e *Engine) markFailed(ctx context.Context, record *models.MutationRecord, err error) {
	retryCount := record.RetryCount
	_ = e.queue.Update(ctx, record.ID, func(r *models.MutationRecord) {
		r.SyncStatus = models.StatusFailed
		r.RetryCount = retryCount
		if err != nil {
			r.SetError(err)
		}
	})

	e.mu.Lock()
	e.failureCount++
	e.mu.Unlock()

	e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeFailed)
}

func (e *Engine) markConflict(ctx context.Context, record *models.MutationRecord, err error) {
	_ = e.queue.Update(ctx, record.ID, func(r *models.MutationRecord) {
		r.SyncStatus = models.StatusConflict
		r.SetError(err)
	})

	var server models.Payload
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		server = apiErr.Current.Clone()
	}

	conflict := models.Conflict{
		RecordID:      record.ID,
		EntityType:    record.EntityType,
		EntityID:      record.EntityID(),
		ServerVersion: server,
		LocalVersion:  record.Payload.Clone(),
		DetectedAt:    e.now(),
		Reason:        err.Error(),
	}

	e.mu.Lock()
	e.conflicts = removeConflict(e.conflicts, record.ID)
	e.conflicts = append(e.conflicts, conflict)
	e.mu.Unlock()

	e.recorder.RecordOutcome(record.EntityType, record.Action, OutcomeConflict)
	e.logger.Warn("Sync conflict detected",
		"record_id", record.ID,
		"entity_type", record.EntityType,
		"entity_id", conflict.EntityID)
}

func (e *Engine) setStatus(ctx context.Context, id string, status models.SyncStatus) {
	_ = e.queue.Update(ctx, id, func(r *models.MutationRecord) {
		r.SyncStatus = status
	})
}

func (e *Engine) newBackoff() retry.Backoff {
	if e.cfg.BaseDelay <= 0 {
		return nil
	}
	return retry.WithMaxRetries(uint64(e.cfg.MaxRetries), retry.NewExponential(e.cfg.BaseDelay))
}

// nextDelay returns baseDelay * 2^(attempt-1) for successive calls.
func nextDelay(b retry.Backoff) time.Duration {
	if b == nil {
		return 0
	}
	d, stop := b.Next()
	if stop {
		return 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether err may clear on its own. Errors that are not classified
// remote API errors are treated as transient.
func retryable(err error) bool {
	if api.KindOf(err) == 0 {
		return true
	}
	return api.IsTransient(err)
}

func removeConflict(conflicts []models.Conflict, recordID string) []models.Conflict {
	out := conflicts[:0]
	for _, c := range conflicts {
		if c.RecordID != recordID {
			out = append(out, c)
		}
	}
	return out
}
