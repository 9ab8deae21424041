package repository

import (
	"context"
	"time"
	"tradewatch/internal/models"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user-related store operations.
// Emails are stored normalized; lookups expect models.NormalizeEmail output.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByResetToken(ctx context.Context, token string) (*models.User, error)

	// UpdatePassword stores a new password hash and, in the same statement,
	// clears both reset-token fields and resets the lockout counters. Callers
	// rely on this being a single atomic write.
	UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error

	// SetResetToken stores a reset token and its expiry together; the two
	// fields are always both set or both null.
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error

	UpdateLockState(ctx context.Context, id uuid.UUID, failedAttempts int, lockoutUntil *time.Time) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, lastLoginAt time.Time) error

	// ClearElapsedLockouts nulls lockout_until wherever it has passed, so
	// stale locks never leak into queries that don't compare timestamps.
	ClearElapsedLockouts(ctx context.Context, now time.Time) (int64, error)
}
