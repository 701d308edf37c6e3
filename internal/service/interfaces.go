package service

import (
	"context"
	"time"

	"github.com/rryowa/quantive/internal/models"
)

// UserCache is an optional read-through cache for profiles.
type UserCache interface {
	GetProfile(ctx context.Context, userID int64) (*models.User, error)
	SetProfile(ctx context.Context, user models.User) error
}

// SecurityNotifier is told about every detected refresh-token reuse.
// Implementations must not block the caller.
type SecurityNotifier interface {
	NotifyTokenReuse(ctx context.Context, alert TokenReuseAlert)
}

type TokenReuseAlert struct {
	Event        string    `json:"event"`
	UserID       int64     `json:"userId"`
	FamilyID     string    `json:"familyId"`
	RevokedCount int64     `json:"revokedCount"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	DetectedAt   time.Time `json:"detectedAt"`
}
