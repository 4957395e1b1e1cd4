package database

import (
	"context"
	"strings"
	"time"
)

const (
	busyRetryAttempts = 3
	busyRetryDelay    = 50 * time.Millisecond
)

// withBusyRetry retries an operation when SQLite reports the database as
// locked or busy. A busy or locked error means the statement did not apply,
// so running it again after a transient lock is safe.
func withBusyRetry(ctx context.Context, operation func() error) error {
	var err error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		err = operation()
		if err == nil || !isBusyError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyRetryDelay << attempt):
		}
	}
	return err
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}

// IsUniqueConstraintError reports whether err is a UNIQUE constraint
// violation, used as the concurrent-insert signal during contact and session
// resolution
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
