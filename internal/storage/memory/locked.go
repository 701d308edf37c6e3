package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rryowa/quantive/internal/models"
)

// Methods below run a single repository call outside of InTx.

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().FindUserByEmail(ctx, email)
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().GetUserByID(ctx, id)
}

func (s *Storage) InsertUser(ctx context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().InsertUser(ctx, user)
}

func (s *Storage) InsertRefreshToken(ctx context.Context, token models.RefreshToken) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().InsertRefreshToken(ctx, token)
}

func (s *Storage) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().FindRefreshToken(ctx, tokenHash)
}

func (s *Storage) RotateRefreshToken(
	ctx context.Context,
	oldHash string,
	next models.RefreshToken,
	at time.Time,
) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().RotateRefreshToken(ctx, oldHash, next, at)
}

func (s *Storage) RevokeRefreshToken(
	ctx context.Context,
	tokenHash string,
	status models.RefreshTokenStatus,
	at time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().RevokeRefreshToken(ctx, tokenHash, status, at)
}

func (s *Storage) RevokeAllActiveForUser(
	ctx context.Context,
	userID int64,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().RevokeAllActiveForUser(ctx, userID, status, at)
}

func (s *Storage) RevokeActiveInFamily(
	ctx context.Context,
	familyID uuid.UUID,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().RevokeActiveInFamily(ctx, familyID, status, at)
}

func (s *Storage) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().InsertAuditLog(ctx, entry)
}
