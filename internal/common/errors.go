// Package common defines shared constants and sentinel errors used across
// client and server layers of IntakeKeeper. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Patch rejected by the section catalog or malformed input.
	ErrValidation = errors.New("validation error")

	// Draft is archived and no longer accepts writes.
	ErrArchived = errors.New("intake archived")

	// Lifecycle transition not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Transient errors: safe to retry with identical parameters.
	ErrUnavailable = errors.New("server unavailable")
	ErrRateLimited = errors.New("rate limited")

	// The atomic write mechanism itself failed.
	ErrStorage = errors.New("storage failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Returned by exit guards while local edits have not been saved.
	ErrUnsavedChanges = errors.New("unsaved changes")
)

// ConflictError is returned by versioned writes when the stored version does
// not match the expected one. It matches ErrVersionConflict via errors.Is.
type ConflictError struct {
	Entity   string
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: version conflict: expected %d, current %d", e.Entity, e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// Class groups errors by how the caller is expected to react.
type Class int

const (
	ClassNone Class = iota
	ClassConflict
	ClassTransient
	ClassValidation
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassConflict:
		return "conflict"
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	default:
		return "fatal"
	}
}

// Classify maps err onto the error taxonomy. Unknown errors are fatal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrVersionConflict):
		return ClassConflict
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrRateLimited):
		return ClassTransient
	case errors.Is(err, ErrValidation), errors.Is(err, ErrArchived), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrorNotFound):
		return ClassValidation
	default:
		return ClassFatal
	}
}
