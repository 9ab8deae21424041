package repository

import (
	"context"
	"time"
	"tradewatch/internal/models"

	"github.com/google/uuid"
)

// VerificationCodeRepository stores one-time email verification codes
type VerificationCodeRepository interface {
	// Replace atomically marks any active code for the user as consumed and
	// inserts the new one, so at most one active code exists per user even
	// under concurrent resend requests.
	Replace(ctx context.Context, code *models.VerificationCode) error

	// GetActive returns the single unconsumed code for the user, expired or
	// not; the caller decides what expiry means. ErrNoActiveCode when none.
	GetActive(ctx context.Context, userID uuid.UUID) (*models.VerificationCode, error)

	// DecrementAttempts atomically decrements attempts_remaining and returns
	// the post-decrement count. Two concurrent wrong guesses can never both
	// observe the same pre-decrement value.
	DecrementAttempts(ctx context.Context, id uuid.UUID) (int, error)

	// Consume marks the code consumed and flags the user's email as verified
	// in one transaction; the two writes are never observably split.
	Consume(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// MarkExpired spends a code that was found past its TTL so it cannot be
	// replayed even if the clock is later skewed.
	MarkExpired(ctx context.Context, id uuid.UUID) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
