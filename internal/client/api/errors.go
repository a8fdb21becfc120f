package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/iudanet/taskkeeper/internal/models"
)

// ErrorKind classifies a failed remote call so the sync engine can decide between
// retrying, surfacing a conflict or giving up.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindTimeout
	KindNotFound
	KindConflict
	KindServer
	KindUnauthorized
	KindBadRequest
)

// Sentinel errors matched with errors.Is against any *Error of the same kind.
var (
	ErrNetwork      = errors.New("network unreachable")
	ErrTimeout      = errors.New("request timed out")
	ErrNotFound     = errors.New("entity not found")
	ErrConflict     = errors.New("conflicting server version")
	ErrServer       = errors.New("server error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindServer:
		return ErrServer
	case KindUnauthorized:
		return ErrUnauthorized
	case KindBadRequest:
		return ErrBadRequest
	default:
		return nil
	}
}

// String returns the kind name used in logs and metrics labels.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Error is a classified remote API failure.
type Error struct {
	Err        error          // Err исходная транспортная ошибка (может быть nil)
	Current    models.Payload // Current серверная версия сущности при 409
	Message    string
	Kind       ErrorKind
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the classification of err, or 0 if err is not a remote API error.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsTransient reports whether a retry may succeed: unreachable network, timeouts and 5xx.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return false
}

// IsNetwork reports whether err means the server could not be reached at all.
// The offline write path uses it to fall back to the queue.
func IsNetwork(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	}
	return false
}

// classifyTransport converts an http.Client.Do failure.
// Cancellation of the caller's context is returned as-is: it is not a network failure.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// classifyStatus maps a non-2xx HTTP status to an error kind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusConflict || code == http.StatusPreconditionFailed:
		return KindConflict
	case code == http.StatusRequestTimeout:
		return KindTimeout
	case code == http.StatusTooManyRequests || code >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}
