package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength    = 255
	maxNameLength     = 100
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// normalizeEmail only trims: addresses are stored and matched as given, so
// uniqueness is case-sensitive.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func (in RegisterInput) normalize() (RegisterInput, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validateEmail(in.Email); err != nil {
		return in, err
	}

	switch {
	case utf8.RuneCountInString(in.Password) < minPasswordLength:
		return in, newValidationError("password", "must be at least 8 characters")
	case len(in.Password) > maxPasswordBytes:
		return in, newValidationError("password", "must be at most 72 bytes")
	}

	names := []struct{ field, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
	}
	for _, n := range names {
		switch {
		case n.value == "":
			return in, newValidationError(n.field, "is required")
		case utf8.RuneCountInString(n.value) > maxNameLength:
			return in, newValidationError(n.field, "must be at most 100 characters")
		}
	}

	return in, nil
}

func validateEmail(email string) error {
	switch {
	case email == "":
		return newValidationError("email", "is required")
	case len(email) > maxEmailLength:
		return newValidationError("email", "must be at most 255 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newValidationError("email", "must be a valid email address")
	}
	return nil
}
