package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
	"github.com/rryowa/quantive/internal/util"
)

// dummyPassword is hashed once at startup so that logins for unknown emails
// still pay for a bcrypt comparison.
const dummyPassword = "quantive-timing-equalizer"

type AuthService struct {
	storage  storage.Storage
	tokens   *TokenService
	cache    UserCache
	notifier SecurityNotifier
	log      *zap.SugaredLogger

	tokenCfg  util.TokenConfig
	authCfg   util.AuthConfig
	now       func() time.Time
	dummyHash []byte
}

type AuthOption func(*AuthService)

func WithUserCache(cache UserCache) AuthOption {
	return func(s *AuthService) { s.cache = cache }
}

func WithSecurityNotifier(n SecurityNotifier) AuthOption {
	return func(s *AuthService) { s.notifier = n }
}

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(
	log *zap.SugaredLogger,
	st storage.Storage,
	tokens *TokenService,
	tokenCfg *util.TokenConfig,
	authCfg *util.AuthConfig,
	opts ...AuthOption,
) (*AuthService, error) {
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), authCfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	s := &AuthService{
		storage:   st,
		tokens:    tokens,
		log:       log,
		tokenCfg:  *tokenCfg,
		authCfg:   *authCfg,
		now:       time.Now,
		dummyHash: dummyHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates the user and signs them in within one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta models.ClientMeta) (*models.AuthResult, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.authCfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var result *models.AuthResult
	err = s.withRetry(ctx, "register", func(ctx context.Context) error {
		return s.storage.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			user, err := repos.InsertUser(ctx, models.User{
				UUID:         uuid.New(),
				Email:        in.Email,
				PasswordHash: string(hash),
				FirstName:    in.FirstName,
				LastName:     in.LastName,
			})
			if err != nil {
				return err
			}

			now := s.now()
			pair, _, err := s.issue(ctx, repos, user.ID, uuid.New(), "", now)
			if err != nil {
				return err
			}

			entry := models.AuditLog{
				UserID:     &user.ID,
				Action:     models.AuditUserRegister,
				EntityType: models.AuditEntityUser,
				EntityID:   entityID(user.ID),
			}
			if err := s.audit(ctx, repos, entry, meta, now); err != nil {
				return err
			}

			result = &models.AuthResult{User: *user, TokenPair: *pair}
			return nil
		})
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.Infow("User registered", "userID", result.User.ID)
	return result, nil
}

// Login never tells the caller whether the email exists.
func (s *AuthService) Login(ctx context.Context, email, password string, meta models.ClientMeta) (*models.AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, newValidationError("email", "is required")
	}
	if password == "" {
		return nil, newValidationError("password", "is required")
	}

	var user *models.User
	err := s.withRetry(ctx, "find user", func(ctx context.Context) error {
		var err error
		user, err = s.storage.FindUserByEmail(ctx, email)
		return err
	})
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.auditLoginFailed(ctx, nil, email, meta)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, translate(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.auditLoginFailed(ctx, &user.ID, email, meta)
		return nil, ErrInvalidCredentials
	}

	var pair *models.TokenPair
	err = s.withRetry(ctx, "login", func(ctx context.Context) error {
		return s.storage.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			now := s.now()
			familyID := uuid.New()

			var err error
			pair, _, err = s.issue(ctx, repos, user.ID, familyID, "", now)
			if err != nil {
				return err
			}

			entry := models.AuditLog{
				UserID:     &user.ID,
				Action:     models.AuditLogin,
				EntityType: models.AuditEntityUser,
				EntityID:   entityID(user.ID),
				Metadata:   metadata(map[string]any{"familyId": familyID.String()}),
			}
			return s.audit(ctx, repos, entry, meta, now)
		})
	})
	if err != nil {
		return nil, translate(err)
	}

	s.log.Infow("User logged in", "userID", user.ID)
	return &models.AuthResult{User: *user, TokenPair: *pair}, nil
}

// Refresh exchanges an active refresh token for a new pair. Presenting a token
// that was already rotated, revoked or has expired revokes every active token
// of its owner.
func (s *AuthService) Refresh(ctx context.Context, presented string, meta models.ClientMeta) (*models.TokenPair, error) {
	if presented == "" {
		return nil, ErrInvalidToken
	}
	hash := s.tokens.HashRefreshToken(presented)

	var (
		pair   *models.TokenPair
		reused *models.TokenReuse
	)
	err := s.withRetry(ctx, "refresh", func(ctx context.Context) error {
		pair, reused = nil, nil
		return s.storage.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			current, err := repos.FindRefreshToken(ctx, hash)
			if errors.Is(err, storage.ErrRefreshTokenNotFound) {
				return ErrInvalidToken
			}
			if err != nil {
				return err
			}

			now := s.now()
			switch {
			case current.Status == models.RefreshTokenLoggedOut:
				return ErrInvalidToken
			case !current.IsActive(now):
				// The revocation must commit, so the reuse is reported after InTx.
				reused, err = s.revokeOnReuse(ctx, repos, current, meta, now)
				return err
			}

			var next *models.RefreshToken
			pair, next, err = s.issue(ctx, repos, current.UserID, current.FamilyID, hash, now)
			if err != nil {
				return err
			}

			entry := models.AuditLog{
				UserID:     &current.UserID,
				Action:     models.AuditRefresh,
				EntityType: models.AuditEntityRefresh,
				EntityID:   entityID(next.ID),
				Metadata:   metadata(map[string]any{"familyId": current.FamilyID.String()}),
			}
			return s.audit(ctx, repos, entry, meta, now)
		})
	})

	switch {
	case errors.Is(err, storage.ErrConflict):
		s.revokeAfterConflict(ctx, hash, meta)
		return nil, ErrTokenReuseDetected
	case err != nil:
		return nil, translate(err)
	case reused != nil:
		s.log.Warnw("Refresh token reuse detected", "userID", reused.UserID, "familyID", reused.FamilyID, "revoked", reused.RevokedCount)
		s.notifyReuse(ctx, reused, meta)
		return nil, ErrTokenReuseDetected
	}

	return pair, nil
}

// Logout revokes the presented token when it belongs to userID, or every active
// token of userID when none is presented. A presented token that was already
// rotated ends the rest of its family. Repeating it is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID int64, presented string, meta models.ClientMeta) error {
	err := s.withRetry(ctx, "logout", func(ctx context.Context) error {
		return s.storage.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
			now := s.now()

			var revoked int64
			if presented != "" {
				hash := s.tokens.HashRefreshToken(presented)
				current, err := repos.FindRefreshToken(ctx, hash)
				if errors.Is(err, storage.ErrRefreshTokenNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				if current.UserID != userID {
					return nil
				}

				switch current.Status {
				case models.RefreshTokenActive:
					ok, err := repos.RevokeRefreshToken(ctx, hash, models.RefreshTokenLoggedOut, now)
					if err != nil {
						return err
					}
					if ok {
						revoked = 1
					}
				case models.RefreshTokenRotated:
					// The caller's own session was renewed after it read the
					// token; end the chain it belongs to.
					revoked, err = repos.RevokeActiveInFamily(ctx, current.FamilyID, models.RefreshTokenLoggedOut, now)
					if err != nil {
						return err
					}
				}
			} else {
				var err error
				revoked, err = repos.RevokeAllActiveForUser(ctx, userID, models.RefreshTokenLoggedOut, now)
				if err != nil {
					return err
				}
			}

			if revoked == 0 {
				return nil
			}

			entry := models.AuditLog{
				UserID:     &userID,
				Action:     models.AuditLogout,
				EntityType: models.AuditEntityUser,
				EntityID:   entityID(userID),
				Metadata:   metadata(map[string]any{"revoked": revoked, "allSessions": presented == ""}),
			}
			return s.audit(ctx, repos, entry, meta, now)
		})
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

// Me returns the profile of userID, through the profile cache when one is configured.
func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProfile(ctx, userID)
		if err != nil {
			s.log.Warnw("Profile cache read failed", "userID", userID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	var user *models.User
	err := s.withRetry(ctx, "get user", func(ctx context.Context) error {
		var err error
		user, err = s.storage.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	user.PasswordHash = ""

	if s.cache != nil {
		if err := s.cache.SetProfile(ctx, *user); err != nil {
			s.log.Warnw("Profile cache write failed", "userID", userID, "error", err)
		}
	}
	return user, nil
}

// issue mints an access token and a refresh token in familyID. With a non-empty
// rotateFrom the new refresh token replaces that one, which must still be active.
func (s *AuthService) issue(
	ctx context.Context,
	repos storage.RefreshTokenRepository,
	userID int64,
	familyID uuid.UUID,
	rotateFrom string,
	now time.Time,
) (*models.TokenPair, *models.RefreshToken, error) {
	access, err := s.tokens.Issue(userID, s.tokenCfg.Issuer, s.tokenCfg.Audience, s.tokenCfg.AccessTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}

	raw, hash, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	next := models.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		FamilyID:  familyID,
		Status:    models.RefreshTokenActive,
		ExpiresAt: now.Add(s.tokenCfg.RefreshTTL),
		CreatedAt: now,
	}

	var stored *models.RefreshToken
	if rotateFrom == "" {
		stored, err = repos.InsertRefreshToken(ctx, next)
	} else {
		stored, err = repos.RotateRefreshToken(ctx, rotateFrom, next, now)
	}
	if err != nil {
		return nil, nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    s.tokenCfg.AccessTTL,
	}, stored, nil
}

func (s *AuthService) revokeOnReuse(
	ctx context.Context,
	repos storage.Repositories,
	presented *models.RefreshToken,
	meta models.ClientMeta,
	now time.Time,
) (*models.TokenReuse, error) {
	n, err := repos.RevokeAllActiveForUser(ctx, presented.UserID, models.RefreshTokenRevoked, now)
	if err != nil {
		return nil, err
	}

	reuse := &models.TokenReuse{
		UserID:        presented.UserID,
		FamilyID:      presented.FamilyID,
		PresentedWith: presented.Status,
		RevokedCount:  n,
		DetectedAt:    now,
	}
	entry := models.AuditLog{
		UserID:     &presented.UserID,
		Action:     models.AuditTokenReuse,
		EntityType: models.AuditEntityRefresh,
		EntityID:   entityID(presented.ID),
		Metadata: metadata(map[string]any{
			"familyId":      presented.FamilyID.String(),
			"presentedWith": string(presented.Status),
			"revoked":       n,
		}),
	}
	if err := s.audit(ctx, repos, entry, meta, now); err != nil {
		return nil, err
	}
	return reuse, nil
}

// revokeAfterConflict runs when a rotation kept losing to a concurrent one.
// Errors are logged only: the caller already gets ErrTokenReuseDetected.
func (s *AuthService) revokeAfterConflict(ctx context.Context, hash string, meta models.ClientMeta) {
	var reused *models.TokenReuse
	err := s.storage.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		current, err := repos.FindRefreshToken(ctx, hash)
		if err != nil {
			return err
		}
		reused, err = s.revokeOnReuse(ctx, repos, current, meta, s.now())
		return err
	})
	if err != nil {
		s.log.Errorw("Failed to revoke tokens after rotation conflict", "error", err)
		return
	}
	s.log.Warnw("Refresh token rotation conflict, tokens revoked", "userID", reused.UserID, "revoked", reused.RevokedCount)
	s.notifyReuse(ctx, reused, meta)
}

func (s *AuthService) notifyReuse(ctx context.Context, reuse *models.TokenReuse, meta models.ClientMeta) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyTokenReuse(ctx, TokenReuseAlert{
		Event:        string(models.AuditTokenReuse),
		UserID:       reuse.UserID,
		FamilyID:     reuse.FamilyID.String(),
		RevokedCount: reuse.RevokedCount,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		DetectedAt:   reuse.DetectedAt,
	})
}

func (s *AuthService) auditLoginFailed(ctx context.Context, userID *int64, email string, meta models.ClientMeta) {
	entry := models.AuditLog{
		UserID:     userID,
		Action:     models.AuditLoginFailed,
		EntityType: models.AuditEntityUser,
		Metadata:   metadata(map[string]any{"email": email}),
	}
	if userID != nil {
		entry.EntityID = entityID(*userID)
	}
	if err := s.audit(ctx, s.storage, entry, meta, s.now()); err != nil {
		s.log.Warnw("Failed to record failed login", "error", err)
	}
}

func (s *AuthService) audit(
	ctx context.Context,
	repo storage.AuditRepository,
	entry models.AuditLog,
	meta models.ClientMeta,
	now time.Time,
) error {
	entry.CreatedAt = now
	return repo.InsertAuditLog(ctx, entry.WithClient(meta))
}

// withRetry gives transient store failures one more attempt with backoff.
func (s *AuthService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewExponential(s.authCfg.RetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}
		s.log.Warnw("Store operation failed, retrying", "op", op, "error", err)
		return retry.RetryableError(err)
	})
}

func entityID(id int64) *string {
	s := strconv.FormatInt(id, 10)
	return &s
}

func metadata(fields map[string]any) *string {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
