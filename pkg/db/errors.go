package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsLockConflict reports whether err was caused by row lock contention, a
// deadlock, a serialization failure or an expired transaction deadline.
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isLockCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isLockCode(string(pqErr.Code))
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "lock timeout")
}

func isLockCode(code string) bool {
	switch code {
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
		return true
	default:
		return false
	}
}

// MapTxError converts lock failures into a retryable CONCURRENCY_CONFLICT and
// leaves typed errors untouched. Anything else becomes INTERNAL_ERROR.
func MapTxError(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsLockConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, fmt.Sprintf("%s: resource busy, retry", op))
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

// SetLockTimeout bounds how long the current transaction waits on row locks.
// Only Postgres supports it; other dialects are left untouched.
func SetLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if tx == nil || timeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error
}
