package repository

import (
	"context"
	"time"
	"tradewatch/internal/models"

	"github.com/google/uuid"
)

// SecurityEventRepository is an append-only sink for audit records. Events
// are never updated; deletion happens only through age-based retention.
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) error

	// GetByUserID returns the user's events in creation order. No cross-user
	// ordering is guaranteed.
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]models.SecurityEvent, error)

	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
