package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/taskkeeper/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the number of bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

type routeKey struct{}

// routeLabel хранит шаблон маршрута, выбранный роутером
type routeLabel struct {
	pattern string
}

// routeOf returns the pattern recorded by Route, or "" outside LoggingMiddleware.
func routeOf(r *http.Request) string {
	if label, ok := r.Context().Value(routeKey{}).(*routeLabel); ok {
		return label.pattern
	}
	return ""
}

// Route wraps a handler registered under pattern so LoggingMiddleware can label
// the request with the pattern instead of the raw path.
func Route(pattern string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeKey{}).(*routeLabel); ok {
			label.pattern = pattern
		}
		h.ServeHTTP(w, r)
	})
}

// LoggingMiddleware создает middleware для логирования HTTP запросов
// Логирует метод, путь, статус, время выполнения, размер ответа и
// считает запросы в метрике server_http_requests_total
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			label := &routeLabel{pattern: "unmatched"}
			r = r.WithContext(context.WithValue(r.Context(), routeKey{}, label))

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			// Уровень логирования зависит от статуса
			logLevel := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				logLevel = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				logLevel = slog.LevelWarn
			}

			logger.Log(r.Context(), logLevel, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", label.pattern,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"bytes_written", wrapped.written,
			)

			metrics.IncHTTP(label.pattern, wrapped.statusCode)
		})
	}
}
