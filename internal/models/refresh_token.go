package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshTokenStatus string

const (
	RefreshTokenActive    RefreshTokenStatus = "active"
	RefreshTokenRotated   RefreshTokenStatus = "rotated"
	RefreshTokenRevoked   RefreshTokenStatus = "revoked"
	RefreshTokenLoggedOut RefreshTokenStatus = "logged_out"
)

// RefreshToken is one step of a rotation chain. Only the SHA-256 digest of the
// token handed to the client is stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	FamilyID  uuid.UUID
	Status    RefreshTokenStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsActive reports whether the token may still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.Status == RefreshTokenActive && now.Before(t.ExpiresAt)
}

// TokenPair is what a successful login or refresh hands back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type AuthResult struct {
	User User
	TokenPair
}

// TokenReuse describes a presented refresh token that was no longer active and
// the cascade it triggered.
type TokenReuse struct {
	UserID        int64
	FamilyID      uuid.UUID
	PresentedWith RefreshTokenStatus
	RevokedCount  int64
	DetectedAt    time.Time
}
