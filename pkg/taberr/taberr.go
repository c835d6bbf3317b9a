// Package taberr defines the error taxonomy shared by handlers, adapters,
// and the query translator. Every surfaced error carries a Kind plus a
// human-readable message so the calling query executor can present it
// without inspecting wrapped causes.
package taberr

import (
	"errors"
	"fmt"
)

// Kind classifies a handler error.
type Kind string

const (
	// KindConnection indicates a session could not be established.
	KindConnection Kind = "connection"

	// KindAuthentication indicates rejected credentials. Never retried.
	KindAuthentication Kind = "authentication"

	// KindUnsupportedQuery indicates the structured query references an
	// unknown column or table, or writes to a non-writable table.
	KindUnsupportedQuery Kind = "unsupported_query"

	// KindSchemaMismatch indicates materialization type coercion failed.
	KindSchemaMismatch Kind = "schema_mismatch"

	// KindPagination indicates the continuation protocol was violated or
	// the page-count safety bound was exceeded.
	KindPagination Kind = "pagination"

	// KindAPI indicates the upstream returned an error status.
	KindAPI Kind = "api"

	// KindTimeout indicates an outbound call exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindPrediction is a per-row failure in batch prediction.
	KindPrediction Kind = "prediction"
)

// Error is a classified handler error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from err, or "" when err carries no kind.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retriable reports whether err may be retried locally with backoff.
// Timeouts and upstream server errors are transient; everything else,
// notably authentication and unsupported-query errors, is surfaced
// immediately.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindConnection:
		return true
	case KindAPI:
		var se *StatusError
		if errors.As(err, &se) {
			return se.Retriable()
		}
		return false
	default:
		return false
	}
}

// StatusError records an upstream HTTP status for an API error cause.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Retriable reports whether the status is worth retrying: rate limiting
// and server errors are, client errors are not.
func (e *StatusError) Retriable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
