package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/taskkeeper/internal/server/storage"
	"github.com/iudanet/taskkeeper/pkg/api"
)

const taskColumns = `id, title, description, completed, priority, category,
	due_date, reminder_time, created_at, updated_at`

// CreateTask inserts a task and fills ID, CreatedAt and UpdatedAt
func (s *Storage) CreateTask(ctx context.Context, task *api.Task) error {
	now := s.now().UTC()

	query := `
		INSERT INTO tasks (title, description, completed, priority, category,
		                   due_date, reminder_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		task.Priority,
		task.Category,
		nullableTime(task.DueDate),
		nullableTime(task.ReminderTime),
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get task id: %w", err)
	}

	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetTask retrieves a task by ID
// Returns storage.ErrNotFound if the task doesn't exist
func (s *Storage) GetTask(ctx context.Context, id int64) (*api.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks newest first, optionally filtered by completion
func (s *Storage) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]*api.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if filter.Completed != nil {
		query += ` WHERE completed = ?`
		args = append(args, boolToInt(*filter.Completed))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*api.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return tasks, nil
}

// UpdateTask overwrites mutable fields and sets UpdatedAt
// Returns storage.ErrNotFound if the task doesn't exist
func (s *Storage) UpdateTask(ctx context.Context, task *api.Task) error {
	now := s.now().UTC()

	query := `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, priority = ?, category = ?,
		    due_date = ?, reminder_time = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		task.Priority,
		task.Category,
		nullableTime(task.DueDate),
		nullableTime(task.ReminderTime),
		now.UnixNano(),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if err := expectOneRow(res); err != nil {
		return err
	}
	task.UpdatedAt = now
	return nil
}

// DeleteTask removes a task
// Returns storage.ErrNotFound if the task doesn't exist
func (s *Storage) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*api.Task, error) {
	task := &api.Task{}
	var description sql.NullString
	var completed int
	var dueDate, reminder sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&completed,
		&task.Priority,
		&task.Category,
		&dueDate,
		&reminder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		task.Description = &description.String
	}
	task.Completed = completed == 1
	task.DueDate = timeFromNullable(dueDate)
	task.ReminderTime = timeFromNullable(reminder)
	task.CreatedAt = time.Unix(0, createdAt).UTC()
	task.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return task, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
