package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/rryowa/quantive/internal/storage"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	classConnectionException = "08"

	usersEmailConstraint = "users_email_key"
)

// pgCode extracts the SQLSTATE and constraint from either driver's error type.
func pgCode(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

func isUniqueViolation(err error, constraint string) bool {
	code, c, ok := pgCode(err)
	return ok && code == codeUniqueViolation && c == constraint
}

// classify tags driver errors with the storage sentinel the service reacts to.
// Errors that already carry a storage sentinel are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrUnavailable) {
		return err
	}

	if code, _, ok := pgCode(err); ok {
		switch {
		case code == codeSerializationFailure, code == codeDeadlockDetected:
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		case code == codeAdminShutdown, strings.HasPrefix(code, classConnectionException):
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return err
}
