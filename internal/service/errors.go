package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rryowa/quantive/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrInvalidToken       = errors.New("refresh token is invalid")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrSignatureInvalid   = errors.New("token signature is invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrAudienceMismatch   = errors.New("token issuer or audience mismatch")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrUserNotFound       = errors.New("user not found")
)

// ValidationError reports a single malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func isDomainError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenReuseDetected) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrAudienceMismatch) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, storage.ErrUserNotFound) ||
		errors.Is(err, storage.ErrRefreshTokenNotFound) ||
		errors.Is(err, storage.ErrDuplicateEmail)
}

// isTransient reports whether a failed store call is worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrUnavailable) {
		return true
	}
	return !isDomainError(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// translate maps storage errors onto the service taxonomy. Anything it does not
// recognise becomes ErrStoreUnavailable with the cause kept for logging.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, storage.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, storage.ErrRefreshTokenNotFound):
		return ErrInvalidToken
	case isDomainError(err):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
