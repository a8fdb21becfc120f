package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/taskkeeper/pkg/api"
)

// writeError отвечает телом api.ErrorResponse, как и обработчики
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
