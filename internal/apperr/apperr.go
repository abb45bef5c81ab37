// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apperr provides the shared error taxonomy for the sync and
// streaming engine.
//
// Low-level failures are classified into sentinel errors and HTTPError
// values; the AppError wrapper further classifies them for the UI layer,
// attaching a stable debug code for support correlation.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// LOW-LEVEL ERROR KINDS
// =============================================================================

// Sentinel errors for the transport-level taxonomy. Compare with errors.Is.
var (
	// ErrUnauthorized indicates a 401/403 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooManyRequests indicates a 429 response.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrValidation indicates a 422 response or a client-side validation
	// failure such as a blank question.
	ErrValidation = errors.New("validation failed")

	// ErrNotAuthenticated indicates an operation required a session and
	// none was available.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// NetworkError wraps a connectivity or transport failure, preserving the
// underlying message.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error { return e.Err }

// Network wraps err as a NetworkError. Returns nil for a nil err.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return &NetworkError{Err: err}
}

// HTTPError is a generic non-2xx HTTP response.
type HTTPError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Code)
}

// Is maps the special-cased status codes onto their sentinels so callers
// can match with errors.Is(err, ErrUnauthorized) and friends.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrTooManyRequests:
		return e.Code == http.StatusTooManyRequests
	case ErrValidation:
		return e.Code == http.StatusUnprocessableEntity
	}
	return false
}

// FromStatus converts an HTTP status and body message into the taxonomy.
// Returns nil for 2xx codes.
func FromStatus(code int, message string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &HTTPError{Code: code, Message: message}
}

// =============================================================================
// APP-LEVEL CLASSIFICATION
// =============================================================================

// Kind is the high-level failure class surfaced to the UI layer.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindAuth     Kind = "auth"
	KindAPI      Kind = "api"
	KindDatabase Kind = "database"
	KindUnknown  Kind = "unknown"
)

// Stable debug codes, one per kind; API errors also carry the status code.
const (
	codeNetwork  = "E-APP-001"
	codeAuth     = "E-APP-002"
	codeAPI      = "E-APP-003"
	codeDatabase = "E-APP-004"
	codeUnknown  = "E-APP-005"
)

// supportSuffix is appended to every user-facing error message.
const supportSuffix = "If this keeps happening, contact support with the code above."

// AppError is the user-facing classification of a failure.
type AppError struct {
	Kind       Kind
	StatusCode int // only set for KindAPI
	Message    string
	DebugCode  string
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.DebugCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error { return e.Err }

// Display composes the user-facing string:
// "<message> (<debugCode>). <support suffix>"
func (e *AppError) Display() string {
	return fmt.Sprintf("%s (%s). %s", e.Message, e.DebugCode, supportSuffix)
}

// Classify wraps err into an AppError, matching the taxonomy exhaustively.
// Returns nil for a nil err; an err that is already an AppError passes
// through unchanged.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return &AppError{
			Kind:      KindNetwork,
			Message:   "Could not reach the server. Check your connection.",
			DebugCode: codeNetwork,
			Err:       err,
		}
	}

	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotAuthenticated) {
		return &AppError{
			Kind:      KindAuth,
			Message:   "Your session has expired. Please sign in again.",
			DebugCode: codeAuth,
			Err:       err,
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return &AppError{
			Kind:       KindAPI,
			StatusCode: httpErr.Code,
			Message:    fmt.Sprintf("The server returned an error (%d).", httpErr.Code),
			DebugCode:  codeAPI,
			Err:        err,
		}
	}

	// Client-side validation failures carry no HTTPError; server-side 422s
	// were already handled above with their status code.
	if errors.Is(err, ErrValidation) {
		return &AppError{
			Kind:      KindAPI,
			Message:   "That input was not valid. Please adjust it and try again.",
			DebugCode: codeAPI,
			Err:       err,
		}
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return &AppError{
			Kind:      KindDatabase,
			Message:   "A local storage error occurred.",
			DebugCode: codeDatabase,
			Err:       err,
		}
	}

	return &AppError{
		Kind:      KindUnknown,
		Message:   "Something went wrong.",
		DebugCode: codeUnknown,
		Err:       err,
	}
}

// =============================================================================
// DATABASE ERRORS
// =============================================================================

// DatabaseError wraps a local-store failure.
type DatabaseError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error { return e.Err }

// Database wraps err as a DatabaseError for the given operation.
// Returns nil for a nil err.
func Database(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}
