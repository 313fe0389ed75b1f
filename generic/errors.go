/*
errors.go - Centralized error types for the report synchronization engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every remote call made by the Repository surfaces one of these; the
  engine classifies and rethrows, it never swallows a store error.

ERROR CATEGORIES:
  1. FetchError    - transport failure or non-2xx on a read
  2. ConflictError - the store rejected a create (uniqueness it enforces)
  3. ServerError   - non-2xx on a write not otherwise classified
  4. KeyError      - a record could not be given a RecordKey when one was required

USAGE:
  Callers branch with errors.Is on the sentinels or errors.As on the
  structured types:

    if errors.Is(err, generic.ErrConflict) {
        // another tab already submitted today's report
    }

RETRIES:
  None. IsRetryable only tells the form layer whether offering a manual
  "refresh" makes sense.

SEE ALSO:
  - repository.go: Produces these errors
  - api/client.go: Classifies HTTP responses into these errors
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFetch is the category of read failures (network or non-2xx).
	ErrFetch = errors.New("fetch failed")

	// ErrConflict is returned when the store rejects a create.
	ErrConflict = errors.New("conflict")

	// ErrServer is returned for write failures that are not conflicts.
	ErrServer = errors.New("server error")

	// ErrKey is returned when a RecordKey is required but cannot be derived.
	ErrKey = errors.New("record key unavailable")

	// ErrNotFound is returned by stores when an id does not exist.
	// The Repository treats it as success on delete.
	ErrNotFound = errors.New("report not found")

	// ErrNotVerified marks an ExistsForKey probe that could not reach the store.
	// The answer is unknown, not "no".
	ErrNotVerified = errors.New("existence not verified")

	// ErrInvalidMode is returned for an unknown save mode.
	ErrInvalidMode = errors.New("invalid save mode")

	// ErrInvalidPayload is returned when a payload cannot be saved as sent.
	ErrInvalidPayload = errors.New("invalid payload")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FetchError describes a failed read against the store.
type FetchError struct {
	Type       string // report type being listed, if any
	StatusCode int    // 0 for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %q: status %d: %v", e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %q: %v", e.Type, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// ConflictError describes a create rejected by the store.
type ConflictError struct {
	Type           string
	IdempotencyKey string
	Message        string
}

func (e *ConflictError) Error() string {
	if e.IdempotencyKey != "" {
		return fmt.Sprintf("conflict creating %q (key %s): %s", e.Type, e.IdempotencyKey, e.Message)
	}
	return fmt.Sprintf("conflict creating %q: %s", e.Type, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ServerError describes a failed write.
type ServerError struct {
	Op         string // create, update, delete
	ID         string
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string {
	target := e.Op
	if e.ID != "" {
		target = fmt.Sprintf("%s %s", e.Op, e.ID)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", target, e.Err)
}

func (e *ServerError) Unwrap() []error { return []error{ErrServer, e.Err} }

// KeyError reports which part of the (type, branch, day) triple was missing.
type KeyError struct {
	Type   string
	ID     string
	Reason string
}

func (e *KeyError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("no record key for %q (%s): %s", e.Type, e.ID, e.Reason)
	}
	return fmt.Sprintf("no record key for %q: %s", e.Type, e.Reason)
}

func (e *KeyError) Unwrap() error { return ErrKey }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if a manual retry by the user might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrNotVerified)
}

// IsConflict returns true if the store rejected a create.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrKey) || errors.Is(err, ErrInvalidMode) || errors.Is(err, ErrInvalidPayload)
}

// IsNotFound returns true if the error indicates a missing report.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
