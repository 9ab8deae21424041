// Package verification implements the one-time email code lifecycle:
// NONE -> ACTIVE -> CONSUMED | EXPIRED | EXHAUSTED.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
	"tradewatch/internal/config"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
)

var (
	// ErrMalformedCode means the submitted value was not 6 ASCII digits.
	// Rejected before any store lookup and never charged against the budget.
	ErrMalformedCode = errors.New("malformed verification code")
	// ErrNoActiveCode means no unconsumed code exists for the user
	ErrNoActiveCode = errors.New("no active verification code")
	// ErrCodeExpired means the active code was past its TTL; it has been
	// spent so it cannot be replayed under a skewed clock
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeExhausted means the attempt budget is spent
	ErrCodeExhausted = errors.New("verification code attempts exhausted")
	// ErrCodeMismatch means the submitted code did not match
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrResendThrottled means a code was issued too recently
	ErrResendThrottled = errors.New("verification code resend throttled")
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidFormat reports whether a submitted value is 6 ASCII digits. Callers
// can reject malformed input before touching any store.
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}

// Service issues and validates 6-digit email verification codes
type Service struct {
	codes repository.VerificationCodeRepository
	cfg   config.VerificationConfig
	now   func() time.Time
}

// NewService creates a new verification code service
func NewService(codes repository.VerificationCodeRepository, cfg config.VerificationConfig) *Service {
	return &Service{
		codes: codes,
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithClock overrides the service clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Result reports the outcome of a code submission
type Result struct {
	Success           bool
	RemainingAttempts *int
}

// generateCode returns 6 random ASCII digits, zero-padded
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CreateCode issues a fresh code for the user, superseding any prior active
// one. Returns ErrResendThrottled when an active code was issued within the
// resend cooldown window.
func (s *Service) CreateCode(ctx context.Context, userID uuid.UUID, email string) (*models.VerificationCode, error) {
	now := s.now()

	active, err := s.codes.GetActive(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNoActiveCode) {
		return nil, err
	}
	if active != nil && now.Before(active.ExpiresAt) && now.Sub(active.CreatedAt) < s.cfg.ResendCooldown {
		return nil, ErrResendThrottled
	}

	value, err := generateCode()
	if err != nil {
		return nil, err
	}

	code := &models.VerificationCode{
		ID:                uuid.New(),
		UserID:            userID,
		Email:             models.NormalizeEmail(email),
		Code:              value,
		ExpiresAt:         now.Add(s.cfg.CodeTTL),
		AttemptsRemaining: s.cfg.AttemptBudget,
	}

	if err := s.codes.Replace(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// VerifyCode checks a submitted code against the user's active one. On match
// the code is consumed and the user's email flagged verified in a single
// transaction. On mismatch the attempt budget is decremented atomically and
// the remaining count returned alongside ErrCodeMismatch.
func (s *Service) VerifyCode(ctx context.Context, userID uuid.UUID, email, submitted string) (Result, error) {
	if !codePattern.MatchString(submitted) {
		return Result{}, ErrMalformedCode
	}

	active, err := s.codes.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveCode) {
			return Result{}, ErrNoActiveCode
		}
		return Result{}, err
	}

	now := s.now()
	if !now.Before(active.ExpiresAt) {
		if err := s.codes.MarkExpired(ctx, active.ID); err != nil {
			return Result{}, err
		}
		return Result{}, ErrCodeExpired
	}

	if active.AttemptsRemaining <= 0 {
		return Result{}, ErrCodeExhausted
	}

	codeMatches := subtle.ConstantTimeCompare([]byte(active.Code), []byte(submitted)) == 1
	emailMatches := active.Email == models.NormalizeEmail(email)

	if codeMatches && emailMatches {
		if err := s.codes.Consume(ctx, active.ID, userID); err != nil {
			// A concurrent submission of the same correct code won the race;
			// for this caller the code no longer exists.
			if errors.Is(err, repository.ErrCodeConsumed) {
				return Result{}, ErrNoActiveCode
			}
			return Result{}, err
		}
		return Result{Success: true}, nil
	}

	remaining, err := s.codes.DecrementAttempts(ctx, active.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCodeExhausted) {
			return Result{}, ErrCodeExhausted
		}
		return Result{}, err
	}
	if remaining == 0 {
		zero := 0
		return Result{RemainingAttempts: &zero}, ErrCodeExhausted
	}
	return Result{RemainingAttempts: &remaining}, ErrCodeMismatch
}
