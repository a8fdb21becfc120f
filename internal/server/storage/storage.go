package storage

import (
	"context"
	"errors"

	"github.com/iudanet/taskkeeper/pkg/api"
)

// ErrNotFound indicates that the task or note does not exist
var ErrNotFound = errors.New("entity not found")

// TaskFilter narrows ListTasks. A nil Completed returns all tasks.
type TaskFilter struct {
	Completed *bool
}

// TaskStorage persists tasks.
type TaskStorage interface {
	// CreateTask inserts a task and fills ID, CreatedAt and UpdatedAt
	CreateTask(ctx context.Context, task *api.Task) error

	// GetTask returns ErrNotFound if the task doesn't exist
	GetTask(ctx context.Context, id int64) (*api.Task, error)

	// ListTasks returns tasks newest first
	ListTasks(ctx context.Context, filter TaskFilter) ([]*api.Task, error)

	// UpdateTask overwrites all mutable fields; returns ErrNotFound if the task doesn't exist
	UpdateTask(ctx context.Context, task *api.Task) error

	// DeleteTask returns ErrNotFound if the task doesn't exist
	DeleteTask(ctx context.Context, id int64) error
}

// NoteStorage persists notes.
type NoteStorage interface {
	CreateNote(ctx context.Context, note *api.Note) error
	GetNote(ctx context.Context, id int64) (*api.Note, error)
	ListNotes(ctx context.Context) ([]*api.Note, error)
	UpdateNote(ctx context.Context, note *api.Note) error
	DeleteNote(ctx context.Context, id int64) error
}
