package repository

import (
	"context"
	"time"
	"tradewatch/internal/models"

	"github.com/google/uuid"
)

// SessionRepository tracks server-side sessions
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByUserID removes every session for the user. Called synchronously
	// whenever the user's password changes.
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
