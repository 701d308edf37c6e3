package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/util"
)

// TokenService signs and verifies access tokens and mints opaque refresh tokens.
// It performs no I/O.
type TokenService struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewTokenService(cfg *util.TokenConfig) *TokenService {
	return &TokenService{
		secret: cfg.SecretKey(),
		leeway: cfg.Leeway,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for iat/exp and for verification.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	ts.now = now
	return ts
}

// Whole-second NumericDates would let a token expire up to a second before
// iat+ttl. jwt reads this setting whenever it builds or parses a date.
func init() {
	jwt.TimePrecision = time.Millisecond
}

type jwtClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issue signs an HS512 access token for userID valid for ttl.
func (ts *TokenService) Issue(userID int64, issuer, audience string, ttl time.Duration) (string, error) {
	now := ts.now()
	claims := &jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature first, then expiry, then issuer and audience.
func (ts *TokenService) Verify(token, expectedIssuer, expectedAudience string) (*models.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(expectedIssuer),
		jwt.WithAudience(expectedAudience),
		jwt.WithLeeway(ts.leeway),
		jwt.WithTimeFunc(ts.now),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&jwtClaims{},
		func(*jwt.Token) (interface{}, error) { return ts.secret, nil },
		opts...,
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	claims, ok := parsedToken.Claims.(*jwtClaims)
	if !ok || !parsedToken.Valid || claims.UserID <= 0 {
		return nil, ErrSignatureInvalid
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, ErrSignatureInvalid
	}

	out := &models.Claims{
		UserID:    claims.UserID,
		Issuer:    claims.Issuer,
		Audience:  expectedAudience,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	default:
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
}

// NewRefreshToken returns a fresh opaque token and the digest stored for it.
func (ts *TokenService) NewRefreshToken() (raw, hash string, err error) {
	buf := make([]byte, util.RawTokenLength)
	if _, err = rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, ts.HashRefreshToken(raw), nil
}

func (ts *TokenService) HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
