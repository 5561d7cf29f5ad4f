package analysis

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind classifies a failure of the analysis pipeline. The HTTP layer maps
// kinds to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindRateLimitExceeded
	KindValidationFailed
	KindServiceError
	KindTimeout
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindValidationFailed:
		return "validation_failed"
	case KindServiceError:
		return "analysis_service_error"
	case KindTimeout:
		return "analysis_timeout"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

// Error is the typed error every failure is converted to before it crosses
// the dispatcher boundary. Message is already sanitized.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds, only set for rate-limit rejections
	cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match on kind sentinels built with NewError(kind, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: Sanitize(message)}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: Sanitize(message), cause: cause}
}

func NewRateLimitError(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
		RetryAfter: retryAfter,
	}
}

// KindOf extracts the kind from any error chain, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ipPattern    = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	credPattern  = regexp.MustCompile(`(?i)(?:bearer|api[_-]?key|token|secret)[=:\s]+[A-Za-z0-9._\-]{8,}`)
	pathPattern  = regexp.MustCompile(`(?:/[\w.\-]+){2,}`)
)

// Sanitize strips IPs, emails, credential-like substrings and file paths
// from a message before it leaves the process.
func Sanitize(message string) string {
	s := credPattern.ReplaceAllString(message, "[redacted]")
	s = emailPattern.ReplaceAllString(s, "[redacted]")
	s = ipPattern.ReplaceAllString(s, "[redacted]")
	s = pathPattern.ReplaceAllString(s, "[path]")
	return s
}
