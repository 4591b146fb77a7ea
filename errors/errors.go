// Package errors provides error handling for jobpulse.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping, hints and details from one import:
//
//	if err := client.StartJob(ctx, id); err != nil {
//	    return errors.Wrapf(err, "failed to start job %s", id)
//	}
//
// Remote failures are classified against the sentinels below so callers
// can tell "job is gone" from "try again later" with errors.Is.
package errors

import (
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	Mark               = crdb.Mark
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinels for remote job API failures. Wrap or Mark these to add context
// while keeping errors.Is working.
var (
	// ErrNotFound indicates the job does not exist on the remote side
	ErrNotFound = New("not found")

	// ErrConflict indicates the job is no longer in a startable state
	ErrConflict = New("conflict")

	// ErrInvalidRequest indicates the request was malformed or rejected as invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the API token was missing or rejected
	ErrUnauthorized = New("unauthorized")

	// ErrServiceUnavailable indicates the remote API is down or the breaker is open
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates a remote call timed out
	ErrTimeout = New("operation timed out")

	// ErrRemote indicates the API answered with an application-level {"error": ...} body
	ErrRemote = New("remote error")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsRemoteError checks if an error is or wraps ErrRemote
func IsRemoteError(err error) bool {
	return err != nil && Is(err, ErrRemote)
}

// IsTransient reports whether a failure is expected to clear up on its own
// (network trouble, 5xx, open breaker, timeouts). Not-found, conflict,
// unauthorized and invalid-request errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsAny(err, ErrNotFound, ErrConflict, ErrUnauthorized, ErrInvalidRequest)
}

// NewRemoteError builds an ErrRemote carrying the message the API returned
func NewRemoteError(message string) error {
	return Mark(Newf("remote API error: %s", message), ErrRemote)
}

// FromStatus maps an HTTP status code onto a sentinel-marked error.
// Returns nil for 2xx.
func FromStatus(code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}

	err := Newf("unexpected HTTP status %d", code)
	if body != "" {
		err = WithDetail(err, body)
	}

	switch {
	case code == http.StatusNotFound:
		return Mark(err, ErrNotFound)
	case code == http.StatusConflict:
		return Mark(err, ErrConflict)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Mark(err, ErrUnauthorized)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return Mark(err, ErrTimeout)
	case code >= 500:
		return Mark(err, ErrServiceUnavailable)
	case code >= 400:
		return Mark(err, ErrInvalidRequest)
	default:
		return err
	}
}
