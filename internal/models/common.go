package models

import (
	"time"

	"github.com/google/uuid"
)

//nolint:gosec //file not handles sensitive data
const (
	MwSchemeBearerAuth = "BearerAuth"

	MwUserIDKey = "userID"
	MwClaimsKey = "claims"
)

// ClientMeta carries the origin of a request into the audit trail.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

type User struct {
	ID              int64
	UUID            uuid.UUID
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Claims are the verified contents of an access token.
type Claims struct {
	UserID    int64
	Issuer    string
	Audience  string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
