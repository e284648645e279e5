package storage

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned when the engine refuses a write for lack of space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrBackendUnavailable is returned when no engine could be opened.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrUnsupported is returned when the active engine lacks a capability.
	ErrUnsupported = errors.New("operation not supported by storage backend")

	// ErrClosed is returned for operations on a closed backend.
	ErrClosed = errors.New("storage backend closed")
)

// QuotaError describes a write rejected for lack of space.
//
// Its message carries the guidance shown to the operator, because a rejected
// write here usually means a fee or salary payment was not recorded.
type QuotaError struct {
	Key   string
	Used  int64 // bytes in use before the write, 0 if unknown
	Limit int64 // capacity in bytes, 0 if unknown
	Err   error // engine error, if any
}

func (e *QuotaError) Error() string {
	msg := fmt.Sprintf("storage quota exceeded writing %q", e.Key)
	if e.Limit > 0 {
		msg += fmt.Sprintf(" (%d of %d bytes used)", e.Used, e.Limit)
	}
	msg += ": export a backup, delete old records, or free disk space before retrying"
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Is reports QuotaError as ErrQuotaExceeded for errors.Is.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// IsQuotaError returns true if err is or wraps a quota failure.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// classifyWriteError maps engine-specific "disk full" conditions onto
// QuotaError. Other errors are returned unchanged.
func classifyWriteError(key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return &QuotaError{Key: key, Err: err}
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrFull {
		return &QuotaError{Key: key, Err: err}
	}
	return err
}
