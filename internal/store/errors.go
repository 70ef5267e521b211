package store

import (
	"context"
	"errors"
	"strings"
)

// IsBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLockedError checks if the error is a "database is locked" error.
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsConflictError reports either form of SQLite lock contention.
func IsConflictError(err error) bool {
	return IsBusyError(err) || IsLockedError(err)
}

// isClosedError reports use of a closed handle.
func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is closed") ||
		strings.Contains(err.Error(), "connection is already closed")
}

// isUnavailable reports whether err means the directory could not be
// consulted, as opposed to the statement itself being rejected.
func isUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		IsConflictError(err) ||
		isClosedError(err)
}
