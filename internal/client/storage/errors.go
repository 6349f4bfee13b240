package storage

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStorageUnavailable means the store cannot be opened at all in
	// this environment (missing or unwritable data location).
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrQuotaExceeded means the storage medium rejected a write for
	// space reasons. User-actionable: free space or cache less.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrTransactionAborted means a transactional write aborted because
	// of concurrent access from another process. Retryable.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("record not found")
)

// classify maps driver-level failures onto the store's error taxonomy.
// Unrecognized errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_FULL:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", ErrTransactionAborted, err)
		}
	}

	return err
}

// fail classifies err, appends it to the on-device error log and returns
// the classified error wrapped with the operation name. The error log
// write is best effort: its own failures are never surfaced.
func (s *SQLite) fail(op string, err error) error {
	if err == nil {
		return nil
	}

	classified := classify(err)
	if logErr := s.appendErrorLog(op, classified.Error(), nil); logErr != nil {
		logrus.WithError(logErr).Debug("failed to record error log entry")
	}

	return fmt.Errorf("%s: %w", op, classified)
}
