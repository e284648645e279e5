package records

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is returned when a write would violate a uniqueness rule.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned when an operation names a record that does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInUse is returned when removing configuration still referenced by
	// active records.
	ErrInUse = errors.New("record in use")

	// ErrAuthFailed is returned for unknown users, inactive users and wrong
	// passwords alike.
	ErrAuthFailed = errors.New("invalid username or password")
)

// DuplicateKeyError describes a rejected write and the record it collided
// with, so the caller can name it (for example the conflicting receipt).
type DuplicateKeyError struct {
	Collection  string
	Field       string
	Value       string
	ConflictID  int64
	ConflictRef string
}

func (e *DuplicateKeyError) Error() string {
	msg := fmt.Sprintf("duplicate %s in %s: %s already used", e.Field, e.Collection, e.Value)
	if e.ConflictRef != "" {
		msg += fmt.Sprintf(" by %s", e.ConflictRef)
	} else if e.ConflictID != 0 {
		msg += fmt.Sprintf(" by id %d", e.ConflictID)
	}
	return msg
}

// Is reports DuplicateKeyError as ErrDuplicateKey for errors.Is.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
