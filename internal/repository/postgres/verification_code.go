package postgres

import (
	"context"
	"database/sql"
	"time"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
)

type verificationCodeRepository struct {
	repository.BaseRepository
}

// NewVerificationCodeRepository creates a new PostgreSQL verification code repository
func NewVerificationCodeRepository(db *sql.DB) repository.VerificationCodeRepository {
	return &verificationCodeRepository{
		BaseRepository: repository.NewBaseRepository(db),
	}
}

func (r *verificationCodeRepository) Replace(ctx context.Context, code *models.VerificationCode) error {
	tx, err := r.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Supersede any prior active code inside the same transaction so two
	// concurrent resends cannot both leave an active code behind.
	_, err = tx.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed = true
		WHERE user_id = $1 AND consumed = false`,
		code.UserID,
	)
	if err != nil {
		return err
	}

	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO verification_codes (id, user_id, email, code, expires_at, attempts_remaining, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING created_at`,
		code.ID,
		code.UserID,
		code.Email,
		code.Code,
		code.ExpiresAt,
		code.AttemptsRemaining,
	).Scan(&code.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *verificationCodeRepository) GetActive(ctx context.Context, userID uuid.UUID) (*models.VerificationCode, error) {
	code := &models.VerificationCode{}
	query := `
		SELECT id, user_id, email, code, expires_at, attempts_remaining, consumed, created_at
		FROM verification_codes
		WHERE user_id = $1 AND consumed = false
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.DB().QueryRowContext(ctx, query, userID).Scan(
		&code.ID,
		&code.UserID,
		&code.Email,
		&code.Code,
		&code.ExpiresAt,
		&code.AttemptsRemaining,
		&code.Consumed,
		&code.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNoActiveCode
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (r *verificationCodeRepository) DecrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	// Single conditional update; concurrent wrong guesses serialize on the
	// row, so no two callers can read the same pre-decrement count.
	var remaining int
	err := r.DB().QueryRowContext(ctx, `
		UPDATE verification_codes
		SET attempts_remaining = attempts_remaining - 1
		WHERE id = $1 AND consumed = false AND attempts_remaining > 0
		RETURNING attempts_remaining`,
		id,
	).Scan(&remaining)

	if err == sql.ErrNoRows {
		return 0, repository.ErrCodeExhausted
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *verificationCodeRepository) Consume(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tx, err := r.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed = true
		WHERE id = $1 AND consumed = false`,
		id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrCodeConsumed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET email_verified = true,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		userID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *verificationCodeRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE verification_codes
		SET consumed = true
		WHERE id = $1`,
		id,
	)
	return err
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.DB().ExecContext(ctx, `
		DELETE FROM verification_codes
		WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
