package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents an account holder and their credential state
type User struct {
	ID                   uuid.UUID  `json:"id"`
	Email                string     `json:"email"`
	DisplayName          string     `json:"display_name"`
	PasswordHash         string     `json:"-"`
	EmailVerified        bool       `json:"email_verified"`
	AccountLocked        bool       `json:"-"`
	AccountDisabled      bool       `json:"-"`
	FailedLoginAttempts  int        `json:"-"`
	LockoutUntil         *time.Time `json:"-"`
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address so lookups are
// case-insensitive regardless of how the address was entered.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail obscures the local part of an address for user-facing payloads,
// e.g. "trader@example.com" becomes "t***@example.com".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
