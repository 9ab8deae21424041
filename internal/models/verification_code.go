package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationCode is a one-time 6-digit proof of email ownership.
// At most one active (unconsumed, unexpired) code exists per user; issuing a
// new code supersedes any prior active one.
type VerificationCode struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Email             string    `json:"email"`
	Code              string    `json:"-"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Consumed          bool      `json:"consumed"`
	CreatedAt         time.Time `json:"created_at"`
}
