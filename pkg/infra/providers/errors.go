package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error normalizes provider SDK failures to an HTTP-style status code so
// the retry policy can classify them without importing SDK error types.
// StatusCode 0 means no response was received (connection failure).
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: connection failure: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewError(provider string, statusCode int, message string, cause error) *Error {
	return &Error{Provider: provider, StatusCode: statusCode, Message: message, cause: cause}
}

// IsPermanent reports whether the failure is a client-error class that a
// retry cannot fix: malformed request, bad credentials, forbidden.
func IsPermanent(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsTimeout reports whether the call exceeded its deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
