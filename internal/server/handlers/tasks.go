package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/taskkeeper/internal/server/storage"
	"github.com/iudanet/taskkeeper/internal/validation"
	"github.com/iudanet/taskkeeper/pkg/api"
)

// TaskHandler serves /api/tasks/
type TaskHandler struct {
	logger  *slog.Logger
	storage storage.TaskStorage
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(logger *slog.Logger, storage storage.TaskStorage) *TaskHandler {
	return &TaskHandler{
		logger:  logger,
		storage: storage,
	}
}

// List обрабатывает GET /api/tasks/
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, storage.TaskFilter{})
}

// Completed обрабатывает GET /api/tasks/completed/
func (h *TaskHandler) Completed(w http.ResponseWriter, r *http.Request) {
	completed := true
	h.list(w, r, storage.TaskFilter{Completed: &completed})
}

// Pending обрабатывает GET /api/tasks/pending/
func (h *TaskHandler) Pending(w http.ResponseWriter, r *http.Request) {
	completed := false
	h.list(w, r, storage.TaskFilter{Completed: &completed})
}

func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request, filter storage.TaskFilter) {
	tasks, err := h.storage.ListTasks(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list tasks", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, tasks)
}

// Create обрабатывает POST /api/tasks/
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := decodePatch(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	task := &api.Task{Priority: api.PriorityMedium, Category: api.CategoryOther}
	if err := p.applyTo(task); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateTask(task); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.storage.CreateTask(r.Context(), task); err != nil {
		h.logger.Error("Failed to create task", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.logger.Debug("Task created", "id", task.ID)
	writeJSON(w, h.logger, http.StatusCreated, task)
}

// Get обрабатывает GET /api/tasks/{id}/
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, task)
}

// Update обрабатывает PUT и PATCH /api/tasks/{id}/
// Поля из тела накладываются на сохраненную задачу. Если тело несет updated_at
// старше серверного, отвечаем 409 с текущей версией.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}

	p, err := decodePatch(r.Body)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.checkFresh(task.UpdatedAt); err != nil {
		h.logger.Info("Rejected stale task update", "id", task.ID, "server_updated_at", task.UpdatedAt)
		writeConflict(w, h.logger, task)
		return
	}

	if err := p.applyTo(task); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateTask(task); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.storage.UpdateTask(r.Context(), task); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("Failed to update task", "id", task.ID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, task)
}

// Delete обрабатывает DELETE /api/tasks/{id}/
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.storage.DeleteTask(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("Failed to delete task", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// load читает задачу по {id} и сам отвечает клиенту при ошибке
func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*api.Task, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid task id")
		return nil, false
	}

	task, err := h.storage.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "task not found")
			return nil, false
		}
		h.logger.Error("Failed to get task", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "failed to get task")
		return nil, false
	}

	return task, true
}
