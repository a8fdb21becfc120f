package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/taskkeeper/internal/server/storage"
	"github.com/iudanet/taskkeeper/internal/validation"
	"github.com/iudanet/taskkeeper/pkg/api"
)

// NoteHandler serves /api/notes/
type NoteHandler struct {
	logger  *slog.Logger
	storage storage.NoteStorage
}

func NewNoteHandler(logger *slog.Logger, storage storage.NoteStorage) *NoteHandler {
	return &NoteHandler{
		logger:  logger,
		storage: storage,
	}
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.storage.ListNotes(r.Context())
	if err != nil {
		h.logger.Error("Failed to list notes", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list notes")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, notes)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := decodePatch(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	note := &api.Note{}
	if err := p.applyTo(note); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateNote(note); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.storage.CreateNote(r.Context(), note); err != nil {
		h.logger.Error("Failed to create note", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to create note")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, note)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, note)
}

// Update merges the body onto the stored note, see TaskHandler.Update
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}

	p, err := decodePatch(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.checkFresh(note.UpdatedAt); err != nil {
		h.logger.Info("Rejected stale note update", "id", note.ID, "server_updated_at", note.UpdatedAt)
		writeConflict(w, h.logger, note)
		return
	}

	if err := p.applyTo(note); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateNote(note); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.storage.UpdateNote(r.Context(), note); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "note not found")
			return
		}
		h.logger.Error("Failed to update note", "id", note.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to update note")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid note id")
		return
	}

	if err := h.storage.DeleteNote(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "note not found")
			return
		}
		h.logger.Error("Failed to delete note", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) load(w http.ResponseWriter, r *http.Request) (*api.Note, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid note id")
		return nil, false
	}

	note, err := h.storage.GetNote(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "note not found")
			return nil, false
		}
		h.logger.Error("Failed to get note", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to get note")
		return nil, false
	}

	return note, true
}
