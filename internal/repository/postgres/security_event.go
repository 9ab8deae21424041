package postgres

import (
	"context"
	"database/sql"
	"time"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
)

type securityEventRepository struct {
	repository.BaseRepository
}

// NewSecurityEventRepository creates a new PostgreSQL security event repository
func NewSecurityEventRepository(db *sql.DB) repository.SecurityEventRepository {
	return &securityEventRepository{
		BaseRepository: repository.NewBaseRepository(db),
	}
}

func (r *securityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	query := `
		INSERT INTO security_events (id, user_id, event_type, severity, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	return r.DB().QueryRowContext(ctx, query,
		event.ID,
		event.UserID,
		event.Type,
		event.Severity,
		event.IPAddress,
		event.UserAgent,
		event.Metadata,
	).Scan(&event.CreatedAt)
}

func (r *securityEventRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]models.SecurityEvent, error) {
	query := `
		SELECT id, user_id, event_type, severity, ip_address, user_agent, metadata, created_at
		FROM security_events
		WHERE user_id = $1
		ORDER BY created_at ASC`

	rows, err := r.DB().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		var event models.SecurityEvent
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.Type,
			&event.Severity,
			&event.IPAddress,
			&event.UserAgent,
			&event.Metadata,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (r *securityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.DB().ExecContext(ctx, `
		DELETE FROM security_events
		WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
