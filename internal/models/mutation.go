package models

import (
	"time"
)

// EntityType identifies the domain entity a mutation targets.
// The set is open: new types are added by registering a sync handler for them.
type EntityType string

const (
	EntityTask EntityType = "task"
	EntityNote EntityType = "note"
)

// Action is the kind of write a mutation replays against the server.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// SyncStatus drives the sync engine state machine for a single record.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSyncing  SyncStatus = "syncing"
	StatusSuccess  SyncStatus = "success"
	StatusFailed   SyncStatus = "failed"
	StatusConflict SyncStatus = "conflict"
)

// MutationRecord представляет одно отложенное намерение пользователя
// (create/update/delete), ожидающее отправки на сервер.
type MutationRecord struct {
	CreatedAt  time.Time  `json:"created_at"`  // CreatedAt время постановки в очередь
	LastError  *string    `json:"last_error"`  // LastError причина последней неудачи (nil если не было)
	Payload    Payload    `json:"payload"`     // Payload данные сущности (для delete только id)
	ID         string     `json:"id"`          // ID локальный идентификатор записи (UUIDv7)
	EntityType EntityType `json:"entity_type"` // EntityType тип сущности: "task", "note"
	Action     Action     `json:"action"`      // Action create, update или delete
	SyncStatus SyncStatus `json:"sync_status"` // SyncStatus текущее состояние синхронизации
	RetryCount int        `json:"retry_count"` // RetryCount количество неудачных попыток
}

// EntityID returns the identifier of the entity the record targets, if known.
func (r *MutationRecord) EntityID() string {
	return r.Payload.EntityID()
}

// SetError stores err as the record's last failure reason; nil clears it.
func (r *MutationRecord) SetError(err error) {
	if err == nil {
		r.LastError = nil
		return
	}
	msg := err.Error()
	r.LastError = &msg
}

// Clone создает глубокую копию записи
func (r *MutationRecord) Clone() *MutationRecord {
	clone := *r
	clone.Payload = r.Payload.Clone()
	if r.LastError != nil {
		msg := *r.LastError
		clone.LastError = &msg
	}
	return &clone
}
