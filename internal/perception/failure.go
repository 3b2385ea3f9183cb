package perception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureClass classifies a failed backend call.
type FailureClass string

const (
	// Transient: eligible for one fallback attempt.
	FailureRateLimited FailureClass = "rate_limited"
	FailureOverloaded  FailureClass = "overloaded"
	FailureServerError FailureClass = "server_error"
	FailureConnection  FailureClass = "connection"

	// Permanent: surfaced immediately.
	FailureAuthQuota     FailureClass = "auth_quota"
	FailureMalformed     FailureClass = "malformed_request"
	FailureSafetyBlocked FailureClass = "safety_blocked"
	FailureGeneric       FailureClass = "generic"
)

// Transient reports whether the class is eligible for fallback.
func (c FailureClass) Transient() bool {
	switch c {
	case FailureRateLimited, FailureOverloaded, FailureServerError, FailureConnection:
		return true
	}
	return false
}

// BackendError is the typed failure of one backend call.
type BackendError struct {
	Class      FailureClass
	Backend    string // backend identity
	StatusCode int    // HTTP status when known
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: %s (status %d): %s", e.Backend, e.Class, e.StatusCode, msg)
	}
	return fmt.Sprintf("backend %s: %s: %s", e.Backend, e.Class, msg)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a transient BackendError.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class.Transient()
	}
	return false
}

// ClassOf returns the failure class carried by err, or FailureGeneric.
func ClassOf(err error) FailureClass {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}
	return FailureGeneric
}

// ClassifyStatus maps an HTTP status code to a failure class.
func ClassifyStatus(code int) FailureClass {
	switch {
	case code == http.StatusTooManyRequests:
		return FailureRateLimited
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return FailureAuthQuota
	case code == http.StatusBadRequest:
		return FailureMalformed
	case code == http.StatusServiceUnavailable:
		return FailureOverloaded
	case code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusGatewayTimeout:
		return FailureServerError
	}
	return FailureGeneric
}

// statusError builds a BackendError from an HTTP status.
func statusError(backend string, code int, message string, err error) *BackendError {
	return &BackendError{
		Class:      ClassifyStatus(code),
		Backend:    backend,
		StatusCode: code,
		Message:    message,
		Err:        err,
	}
}

// transportError classifies an error that occurred before any status was
// received. Caller cancellation is permanent; timeouts and network failures
// are connection failures.
func transportError(backend string, err error) *BackendError {
	class := FailureGeneric
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, context.DeadlineExceeded):
		class = FailureConnection
	case errors.As(err, &netErr):
		class = FailureConnection
	}
	return &BackendError{Class: class, Backend: backend, Message: err.Error(), Err: err}
}
