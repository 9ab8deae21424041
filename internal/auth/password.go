package auth

import (
	"errors"
	"unicode"
)

// bcrypt rejects inputs longer than 72 bytes
const maxPasswordLength = 72

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrPasswordTooWeak  = errors.New("password must contain at least one letter and one digit")
)

// ValidatePasswordStrength applies the password policy: configured minimum
// length, bcrypt's upper bound, and at least one letter and one digit.
func ValidatePasswordStrength(password string, minLength int) error {
	if len(password) < minLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordTooWeak
	}
	return nil
}
