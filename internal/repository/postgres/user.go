package postgres

import (
	"context"
	"database/sql"
	"time"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type userRepository struct {
	repository.BaseRepository
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{
		BaseRepository: repository.NewBaseRepository(db),
	}
}

const userColumns = `
	id, email, display_name, password_hash, email_verified,
	account_locked, account_disabled, failed_login_attempts, lockout_until,
	password_reset_token, password_reset_expires,
	last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.AccountLocked,
		&user.AccountDisabled,
		&user.FailedLoginAttempts,
		&user.LockoutUntil,
		&user.PasswordResetToken,
		&user.PasswordResetExpires,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			id, email, display_name, password_hash, email_verified,
			account_locked, account_disabled, failed_login_attempts, lockout_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING created_at, updated_at`

	now := time.Now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = models.NormalizeEmail(user.Email)

	err := r.DB().QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.EmailVerified,
		user.AccountLocked,
		user.AccountDisabled,
		user.FailedLoginAttempts,
		user.LockoutUntil,
		now,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return repository.ErrEmailExists
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.DB().QueryRowContext(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.DB().QueryRowContext(ctx, query, models.NormalizeEmail(email)))
}

func (r *userRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1`
	return scanUser(r.DB().QueryRowContext(ctx, query, token))
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	// One statement: new hash, reset-token fields cleared, lockout counters
	// reset. Splitting these writes would open a replay window for the token.
	query := `
		UPDATE users
		SET password_hash = $1,
		    password_reset_token = NULL,
		    password_reset_expires = NULL,
		    failed_login_attempts = 0,
		    lockout_until = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2`

	result, err := r.DB().ExecContext(ctx, query, hashedPassword, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token = $1,
		    password_reset_expires = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`

	result, err := r.DB().ExecContext(ctx, query, token, expiresAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdateLockState(ctx context.Context, id uuid.UUID, failedAttempts int, lockoutUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = $1,
		    lockout_until = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`

	result, err := r.DB().ExecContext(ctx, query, failedAttempts, lockoutUntil, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, lastLoginAt time.Time) error {
	query := `
		UPDATE users
		SET last_login_at = $1
		WHERE id = $2`

	_, err := r.DB().ExecContext(ctx, query, lastLoginAt, id)
	return err
}

func (r *userRepository) ClearElapsedLockouts(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET lockout_until = NULL,
		    failed_login_attempts = 0
		WHERE lockout_until IS NOT NULL AND lockout_until <= $1`

	result, err := r.DB().ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
