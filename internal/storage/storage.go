package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rryowa/quantive/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrDuplicateEmail       = errors.New("email already exists")
	// ErrConflict means a concurrent transaction won: a serialization failure or a
	// conditional update that matched nothing.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrUnavailable means the store could not be reached or the transaction could not start.
	ErrUnavailable = errors.New("store unavailable")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type UserRepository interface {
	// FindUserByEmail and GetUserByID skip soft-deleted users.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	InsertUser(ctx context.Context, user models.User) (*models.User, error)
}

type RefreshTokenRepository interface {
	InsertRefreshToken(ctx context.Context, token models.RefreshToken) (*models.RefreshToken, error)
	// FindRefreshToken returns the token in any status and locks it for the
	// rest of the transaction.
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// RotateRefreshToken marks oldHash rotated only if it is still active and
	// inserts next. ErrConflict when oldHash was not active.
	RotateRefreshToken(ctx context.Context, oldHash string, next models.RefreshToken, at time.Time) (*models.RefreshToken, error)
	// RevokeRefreshToken moves an active token to status; false if it was not active.
	RevokeRefreshToken(ctx context.Context, tokenHash string, status models.RefreshTokenStatus, at time.Time) (bool, error)
	RevokeAllActiveForUser(ctx context.Context, userID int64, status models.RefreshTokenStatus, at time.Time) (int64, error)
	RevokeActiveInFamily(ctx context.Context, familyID uuid.UUID, status models.RefreshTokenStatus, at time.Time) (int64, error)
}

type AuditRepository interface {
	InsertAuditLog(ctx context.Context, entry models.AuditLog) error
}

type Repositories interface {
	UserRepository
	RefreshTokenRepository
	AuditRepository
}

// Storage runs fn inside one transaction. fn must only use the repositories it
// is handed; returning an error rolls everything back.
type Storage interface {
	Repositories
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
