package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/taskkeeper/pkg/api"
)

// writeJSON сериализует v в ответ с заданным статусом
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError отвечает телом api.ErrorResponse
func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// writeConflict отвечает 409 и отдает текущую серверную версию сущности
func writeConflict(w http.ResponseWriter, logger *slog.Logger, current any) {
	writeJSON(w, logger, http.StatusConflict, api.ErrorResponse{
		Error:   http.StatusText(http.StatusConflict),
		Message: errStaleUpdate.Error(),
		Current: toMap(current),
	})
}

// pathID извлекает числовой {id} из пути
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// toMap переводит сущность в map того же вида, что видит клиент
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
