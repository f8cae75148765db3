package engine

import (
	"errors"
	"fmt"
)

// ErrConflict matches every ConflictError.
var ErrConflict = errors.New("conflict")

// ConflictError reports an operation that lost against the current state.
type ConflictError struct {
	Resource string
	ID       string
	State    string
	Reason   string
}

func (e ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
	}
	if e.State == "" {
		return fmt.Sprintf("%s %s is no longer pending", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s %s is already %s", e.Resource, e.ID, e.State)
}

func (e ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InvalidArgumentError reports a malformed or unacceptable input field.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return InvalidArgumentError{Field: field, Reason: reason}
}
