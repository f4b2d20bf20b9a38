package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrorUnauthorized = "unauthorized"
	ErrorNotFound     = "not_found"
	ErrorClient       = "client_error"
	ErrorServer       = "server_error"
	ErrorTimeout      = "timeout"
	ErrorTransport    = "transport"
)

// ErrRegistrationFailed marks a bot whose account could neither log in nor register.
var ErrRegistrationFailed = errors.New("registration failed")

// StatusError is a non-2xx corridor response.
type StatusError struct {
	Op         string
	StatusCode int
	Category   string
	Detail     string
}

func (e *StatusError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Category, e.StatusCode)
	}

	return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Category, e.StatusCode, e.Detail)
}

func newStatusError(op string, status int, detail string) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: status,
		Category:   categoryForStatus(status),
		Detail:     detail,
	}
}

func categoryForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorUnauthorized
	case status == http.StatusNotFound:
		return ErrorNotFound
	case status >= 500:
		return ErrorServer
	default:
		return ErrorClient
	}
}

// CategoryFromError returns the stable category for a corridor call failure.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	return ErrorTransport
}
