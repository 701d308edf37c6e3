package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
)

type RefreshTokenRepository struct {
	db storage.DBTX
}

func NewRefreshTokenRepository(db storage.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) InsertRefreshToken(ctx context.Context, token models.RefreshToken) (*models.RefreshToken, error) {
	query := `INSERT INTO refresh_tokens (user_id, token_hash, family_id, status, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		token.UserID,
		token.TokenHash,
		token.FamilyID,
		string(token.Status),
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return &token, nil
}

// FindRefreshToken takes a row lock so a concurrent rotation of the same token
// waits and then fails to serialize.
func (r *RefreshTokenRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var (
		token  models.RefreshToken
		status string
	)
	query := `SELECT id, user_id, token_hash, family_id, status, expires_at, created_at, revoked_at FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.FamilyID,
		&status,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	token.Status = models.RefreshTokenStatus(status)
	return &token, nil
}

func (r *RefreshTokenRepository) RotateRefreshToken(
	ctx context.Context,
	oldHash string,
	next models.RefreshToken,
	at time.Time,
) (*models.RefreshToken, error) {
	rotated, err := r.RevokeRefreshToken(ctx, oldHash, models.RefreshTokenRotated, at)
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, fmt.Errorf("rotate refresh token: %w", storage.ErrConflict)
	}
	return r.InsertRefreshToken(ctx, next)
}

func (r *RefreshTokenRepository) RevokeRefreshToken(
	ctx context.Context,
	tokenHash string,
	status models.RefreshTokenStatus,
	at time.Time,
) (bool, error) {
	query := `UPDATE refresh_tokens SET status = $2, revoked_at = $3 WHERE token_hash = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, tokenHash, string(status), at)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows: %w", err)
	}
	return n == 1, nil
}

func (r *RefreshTokenRepository) RevokeAllActiveForUser(
	ctx context.Context,
	userID int64,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	query := `UPDATE refresh_tokens SET status = $2, revoked_at = $3 WHERE user_id = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, userID, string(status), at)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens rows: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepository) RevokeActiveInFamily(
	ctx context.Context,
	familyID uuid.UUID,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	query := `UPDATE refresh_tokens SET status = $2, revoked_at = $3 WHERE family_id = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, familyID, string(status), at)
	if err != nil {
		return 0, fmt.Errorf("revoke family refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke family refresh tokens rows: %w", err)
	}
	return n, nil
}
