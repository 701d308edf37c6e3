package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
)

// repos operates on a state without locking; callers hold Storage.mu. Inside a
// transaction undo collects the inverse of every write.
type repos struct {
	st   *state
	undo *[]func()
}

func (r *repos) onRollback(fn func()) {
	if r.undo != nil {
		*r.undo = append(*r.undo, fn)
	}
}

func (r *repos) rollback() {
	if r.undo == nil {
		return
	}
	for i := len(*r.undo) - 1; i >= 0; i-- {
		(*r.undo)[i]()
	}
	*r.undo = nil
}

// putToken stores token under hash and records how to restore the old value.
func (r *repos) putToken(hash string, token models.RefreshToken) {
	prev := r.st.tokens[hash]
	r.st.tokens[hash] = token
	r.onRollback(func() { r.st.tokens[hash] = prev })
}

func (r *repos) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	id, ok := r.st.emails[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	user := r.st.users[id]
	if user.DeletedAt != nil {
		return nil, storage.ErrUserNotFound
	}
	return &user, nil
}

func (r *repos) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := r.st.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, storage.ErrUserNotFound
	}
	return &user, nil
}

func (r *repos) InsertUser(_ context.Context, user models.User) (*models.User, error) {
	if _, exists := r.st.emails[user.Email]; exists {
		return nil, storage.ErrDuplicateEmail
	}
	r.st.nextUserID++
	now := time.Now().UTC()
	user.ID = r.st.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.st.users[user.ID] = user
	r.st.emails[user.Email] = user.ID
	r.onRollback(func() {
		delete(r.st.users, user.ID)
		delete(r.st.emails, user.Email)
		r.st.nextUserID--
	})
	return &user, nil
}

func (r *repos) InsertRefreshToken(_ context.Context, token models.RefreshToken) (*models.RefreshToken, error) {
	if _, exists := r.st.tokens[token.TokenHash]; exists {
		return nil, fmt.Errorf("insert refresh token: duplicate hash")
	}
	r.st.nextTokenID++
	token.ID = r.st.nextTokenID
	r.st.tokens[token.TokenHash] = token
	r.onRollback(func() {
		delete(r.st.tokens, token.TokenHash)
		r.st.nextTokenID--
	})
	return &token, nil
}

func (r *repos) FindRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	token, ok := r.st.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	return &token, nil
}

func (r *repos) RotateRefreshToken(
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

func (r *repos) RevokeRefreshToken(
	_ context.Context,
	tokenHash string,
	status models.RefreshTokenStatus,
	at time.Time,
) (bool, error) {
	token, ok := r.st.tokens[tokenHash]
	if !ok || token.Status != models.RefreshTokenActive {
		return false, nil
	}
	token.Status = status
	token.RevokedAt = &at
	r.putToken(tokenHash, token)
	return true, nil
}

func (r *repos) RevokeAllActiveForUser(
	_ context.Context,
	userID int64,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	return r.revokeActiveWhere(func(t models.RefreshToken) bool { return t.UserID == userID }, status, at), nil
}

func (r *repos) RevokeActiveInFamily(
	_ context.Context,
	familyID uuid.UUID,
	status models.RefreshTokenStatus,
	at time.Time,
) (int64, error) {
	return r.revokeActiveWhere(func(t models.RefreshToken) bool { return t.FamilyID == familyID }, status, at), nil
}

func (r *repos) revokeActiveWhere(match func(models.RefreshToken) bool, status models.RefreshTokenStatus, at time.Time) int64 {
	var n int64
	for hash, token := range r.st.tokens {
		if token.Status != models.RefreshTokenActive || !match(token) {
			continue
		}
		token.Status = status
		token.RevokedAt = &at
		r.putToken(hash, token)
		n++
	}
	return n
}

func (r *repos) InsertAuditLog(_ context.Context, entry models.AuditLog) error {
	r.st.nextAuditID++
	entry.ID = r.st.nextAuditID
	n := len(r.st.audit)
	r.st.audit = append(r.st.audit, entry)
	r.onRollback(func() {
		r.st.audit = r.st.audit[:n]
		r.st.nextAuditID--
	})
	return nil
}
