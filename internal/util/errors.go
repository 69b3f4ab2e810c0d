package util

import (
	"errors"
	"fmt"
)

var (
	ErrTestNotFound         = errors.New("test not found")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionNotInProgress = errors.New("session not in progress")
	ErrAlreadySubmitted     = errors.New("test already submitted")
	ErrSubmissionPending    = errors.New("previous submission is not saved yet")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrPermissionDenied     = errors.New("permission denied")
)

// PersistenceError reports that the shared store could not durably accept a write.
// The caller keeps its in-memory state authoritative.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports malformed input, e.g. a test without questions.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// CollaboratorError reports a failed or unusable call to an external text-generation service.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
