package store

import (
	"errors"
	"fmt"
	"net/url"
)

// ClientError is used for store client sentinel errors.
type ClientError string

func (err ClientError) Error() string {
	return string(err)
}

// Store client sentinel errors.
const (
	// ErrNotFound is returned when the requested bucket, collection,
	// group or record doesn't exist.
	ErrNotFound ClientError = "not found"
)

// ConflictError is returned when a conditional write fails its If-Match
// precondition because the resource was modified concurrently.
type ConflictError struct {
	Location Location
	Message  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Location, e.Message)
}

// IsConflict checks if the error was caused by a failed write
// precondition.
func IsConflict(err error) bool {
	var ce ConflictError

	return errors.As(err, &ce)
}

// PermissionError is returned when the store rejects a request because the
// authenticated principal lacks the required permission.
type PermissionError struct {
	Resource string
	Message  string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("permission denied on %s: %s", e.Resource, e.Message)
}

// IsPermissionDenied checks if the error was a store-side permission
// rejection.
func IsPermissionDenied(err error) bool {
	var pe PermissionError

	return errors.As(err, &pe)
}

// IsTransient checks if the error was a transport-level failure rather
// than an error response from the store. Transient failures are safe to
// retry for reads, but must not be blindly retried for writes.
func IsTransient(err error) bool {
	var ue *url.Error

	return errors.As(err, &ue)
}
