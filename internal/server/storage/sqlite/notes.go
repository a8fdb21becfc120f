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

// CreateNote inserts a note and fills ID, CreatedAt and UpdatedAt
func (s *Storage) CreateNote(ctx context.Context, note *api.Note) error {
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (title, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		note.Title, note.Content, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get note id: %w", err)
	}

	note.ID = id
	note.CreatedAt = now
	note.UpdatedAt = now
	return nil
}

// GetNote returns storage.ErrNotFound if the note doesn't exist
func (s *Storage) GetNote(ctx context.Context, id int64) (*api.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?`, id)

	note, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

func (s *Storage) ListNotes(ctx context.Context) ([]*api.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*api.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return notes, nil
}

func (s *Storage) UpdateNote(ctx context.Context, note *api.Note) error {
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		note.Title, note.Content, now.UnixNano(), note.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	if err := expectOneRow(res); err != nil {
		return err
	}
	note.UpdatedAt = now
	return nil
}

func (s *Storage) DeleteNote(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return expectOneRow(res)
}

func scanNote(row rowScanner) (*api.Note, error) {
	note := &api.Note{}
	var createdAt, updatedAt int64

	if err := row.Scan(&note.ID, &note.Title, &note.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	note.CreatedAt = time.Unix(0, createdAt).UTC()
	note.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return note, nil
}
