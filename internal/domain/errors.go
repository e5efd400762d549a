// Package domain contains the tab model and domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrConflict           = errors.New("stale change token")
	ErrNotFoundIdentifier = errors.New("file id unknown to the server")
	ErrInvalidFilename    = errors.New("invalid filename")
	ErrContentTooLarge    = errors.New("content exceeds size limit")
	ErrPermissionDenied   = errors.New("data directory is not writable")
	ErrTransientIO        = errors.New("transient read failure")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
)

// Error codes for client responses.
const (
	ErrCodeConflict           = "CONFLICT"
	ErrCodeNotFoundIdentifier = "NOT_FOUND_IDENTIFIER"
	ErrCodeInvalidFilename    = "INVALID_FILENAME"
	ErrCodeContentTooLarge    = "CONTENT_TOO_LARGE"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// StorageError represents a failed operation on the data directory.
type StorageError struct {
	Op       string // Operation that failed
	Filename string // Tab filename, empty for directory-level operations
	Err      error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Filename, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, filename string, err error) *StorageError {
	return &StorageError{
		Op:       op,
		Filename: filename,
		Err:      err,
	}
}

// FilenameError reports why a filename was rejected. It matches ErrInvalidFilename.
type FilenameError struct {
	Filename string
	Reason   string
}

func (e *FilenameError) Error() string {
	return fmt.Sprintf("invalid filename %q: %s", e.Filename, e.Reason)
}

func (e *FilenameError) Is(target error) bool {
	return target == ErrInvalidFilename
}

// ErrorCode maps an error to the code reported to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return ErrCodeConflict
	case errors.Is(err, ErrNotFoundIdentifier):
		return ErrCodeNotFoundIdentifier
	case errors.Is(err, ErrInvalidFilename), errors.Is(err, ErrInvalidSnapshot):
		return ErrCodeInvalidFilename
	case errors.Is(err, ErrContentTooLarge):
		return ErrCodeContentTooLarge
	case errors.Is(err, ErrPermissionDenied):
		return ErrCodePermissionDenied
	default:
		return ErrCodeInternalError
	}
}
