// Package credential orchestrates the account security flows: email
// verification, password reset, password change, login and logout. Each flow
// is a sequence of guarded steps; any failing guard short-circuits with a
// typed outcome and, where security-relevant, an audit event.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
	"tradewatch/internal/audit"
	"tradewatch/internal/auth"
	"tradewatch/internal/config"
	"tradewatch/internal/email"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"
	"tradewatch/internal/verification"

	"github.com/google/uuid"
)

// GenericVerificationMessage is returned for every outcome of a verification
// request, real or not, so responses cannot be used to enumerate accounts.
const GenericVerificationMessage = "if the email is registered, a verification code has been sent"

// GenericResetMessage plays the same role for password reset requests
const GenericResetMessage = "if the email is registered, a reset link has been sent"

// genericCodeRejection is the single rejection for every code submission that
// cannot be matched to an active code: unknown address, no code issued, or
// code expired. The cases must stay indistinguishable to the caller; only the
// audit log records which one it was.
const genericCodeRejection = "invalid or expired verification code; request a new one"

// Manager coordinates the credential lifecycle
type Manager struct {
	users    repository.UserRepository
	authSvc  *auth.Service
	verifier *verification.Service
	sender   email.Sender
	audit    *audit.Recorder
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a new credential lifecycle manager
func NewManager(
	users repository.UserRepository,
	authSvc *auth.Service,
	verifier *verification.Service,
	sender email.Sender,
	recorder *audit.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		users:    users,
		authSvc:  authSvc,
		verifier: verifier,
		sender:   sender,
		audit:    recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the manager clock, for tests
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) lockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		Threshold: m.cfg.Auth.LockoutThreshold,
		Duration:  m.cfg.Auth.LockoutDuration,
	}
}

// registerFailure applies the lockout policy after a failed login or failed
// verification attempt and persists the updated counters. Returns true when
// this failure triggered a new lockout.
func (m *Manager) registerFailure(ctx context.Context, user *models.User, rctx models.RequestContext) bool {
	attempts, until := m.lockoutPolicy().OnFailedAttempt(user, m.now())
	// An elapsed lockout_until the janitor has not cleared yet is not an
	// active lock; tripping the threshold again is a fresh lockout.
	hadActiveLock := user.LockoutUntil != nil && m.now().Before(*user.LockoutUntil)
	newlyLocked := until != nil && !hadActiveLock
	if err := m.users.UpdateLockState(ctx, user.ID, attempts, until); err != nil {
		m.logger.Error("failed to persist lock state", "user_id", user.ID, "error", err)
		return false
	}
	user.FailedLoginAttempts = attempts
	user.LockoutUntil = until
	if newlyLocked {
		m.audit.Record(ctx, models.EventAccountLocked, models.SeverityHigh, rctx, map[string]string{
			"failed_attempts": itoa(attempts),
		}, &user.ID)
	}
	return newlyLocked
}

// RequestVerification issues and emails a fresh verification code. Unknown
// addresses, already-verified accounts, blocked accounts and throttled
// resends all return the same generic success; the true reason is audited.
func (m *Manager) RequestVerification(ctx context.Context, emailAddr string, rctx models.RequestContext) RequestVerificationResult {
	norm := models.NormalizeEmail(emailAddr)
	generic := RequestVerificationResult{Outcome: ok(), MaskedEmail: models.MaskEmail(norm)}

	user, err := m.users.GetByEmail(ctx, norm)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityLow, rctx, map[string]string{
				"reason": "unknown_email",
				"email":  norm,
			}, nil)
			return generic
		}
		m.audit.Record(ctx, models.EventError, models.SeverityHigh, rctx, map[string]string{
			"flow": "request_verification",
		}, nil)
		return RequestVerificationResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if user.EmailVerified {
		m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityLow, rctx, map[string]string{
			"reason": "already_verified",
		}, &user.ID)
		return generic
	}

	if auth.ShouldBlock(user, m.now()) {
		m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "account_blocked",
		}, &user.ID)
		return generic
	}

	code, err := m.verifier.CreateCode(ctx, user.ID, norm)
	if err != nil {
		if errors.Is(err, verification.ErrResendThrottled) {
			m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityLow, rctx, map[string]string{
				"reason": "throttled",
			}, &user.ID)
			return generic
		}
		// Legitimate users must be able to retry, so creation failure is the
		// one branch where failure is visible.
		m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "code_creation_failed",
		}, &user.ID)
		return RequestVerificationResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if err := m.sender.SendVerificationCode(norm, user.DisplayName, code.Code); err != nil {
		m.logger.Warn("verification email delivery failed", "user_id", user.ID, "error", err)
		m.audit.Record(ctx, models.EventVerificationResendFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "delivery_failed",
		}, &user.ID)
		return RequestVerificationResult{Outcome: Outcome{Kind: OutcomeDeliveryFailure}}
	}

	m.audit.Record(ctx, models.EventEmailVerificationResent, models.SeverityLow, rctx, nil, &user.ID)
	return generic
}

// VerifyCode validates a submitted 6-digit code and, on success, marks the
// email verified. The flow is unauthenticated; the email address identifies
// the account, and an unknown address is indistinguishable from a missing or
// expired code. Every attempt is audited, success or failure.
func (m *Manager) VerifyCode(ctx context.Context, emailAddr, code string, rctx models.RequestContext) VerifyCodeResult {
	// Format check comes first: malformed input is a client error regardless
	// of whether the address is registered, and must not cost a lookup.
	if !verification.ValidFormat(code) {
		return VerifyCodeResult{Outcome: Outcome{Kind: OutcomeInvalidInput, Reason: "code must be 6 digits"}}
	}

	norm := models.NormalizeEmail(emailAddr)

	user, err := m.users.GetByEmail(ctx, norm)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.audit.Record(ctx, models.EventEmailVerificationFailed, models.SeverityMedium, rctx, map[string]string{
				"reason": "unknown_email",
				"email":  norm,
			}, nil)
			return VerifyCodeResult{Outcome: rejected(genericCodeRejection)}
		}
		return VerifyCodeResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}
	userID := user.ID

	res, err := m.verifier.VerifyCode(ctx, userID, norm, code)

	switch {
	case err == nil:
		m.audit.Record(ctx, models.EventEmailVerified, models.SeverityLow, rctx, map[string]string{
			"email": norm,
		}, &userID)
		return VerifyCodeResult{Outcome: ok(), Verified: true}

	case errors.Is(err, verification.ErrMalformedCode):
		return VerifyCodeResult{Outcome: Outcome{Kind: OutcomeInvalidInput, Reason: "code must be 6 digits"}}

	case errors.Is(err, verification.ErrNoActiveCode):
		m.audit.Record(ctx, models.EventEmailVerificationFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "no_active_code",
			"email":  norm,
		}, &userID)
		return VerifyCodeResult{Outcome: rejected(genericCodeRejection)}

	case errors.Is(err, verification.ErrCodeExpired):
		m.audit.Record(ctx, models.EventEmailVerificationFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "expired",
			"email":  norm,
		}, &userID)
		return VerifyCodeResult{Outcome: rejected(genericCodeRejection)}

	case errors.Is(err, verification.ErrCodeExhausted):
		m.audit.Record(ctx, models.EventEmailVerificationFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "exhausted",
			"email":  norm,
		}, &userID)
		m.countVerificationFailure(ctx, userID, rctx)
		return VerifyCodeResult{
			Outcome:           rejected("too many incorrect attempts; request a new code"),
			RemainingAttempts: res.RemainingAttempts,
		}

	case errors.Is(err, verification.ErrCodeMismatch):
		meta := map[string]string{
			"reason": "mismatch",
			"email":  norm,
		}
		if res.RemainingAttempts != nil {
			meta["remaining_attempts"] = itoa(*res.RemainingAttempts)
		}
		m.audit.Record(ctx, models.EventEmailVerificationFailed, models.SeverityMedium, rctx, meta, &userID)
		m.countVerificationFailure(ctx, userID, rctx)
		return VerifyCodeResult{
			Outcome:           rejected("incorrect verification code"),
			RemainingAttempts: res.RemainingAttempts,
		}

	default:
		m.logger.Error("verification failed unexpectedly", "user_id", userID, "error", err)
		m.audit.Record(ctx, models.EventError, models.SeverityCritical, rctx, map[string]string{
			"flow": "verify_code",
		}, &userID)
		return VerifyCodeResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}
}

// countVerificationFailure feeds a failed code attempt into the lockout
// counters; verification failures and login failures share one budget.
func (m *Manager) countVerificationFailure(ctx context.Context, userID uuid.UUID, rctx models.RequestContext) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		m.logger.Error("failed to load user for lockout accounting", "user_id", userID, "error", err)
		return
	}
	m.registerFailure(ctx, user, rctx)
}

// RequestPasswordReset issues a reset token and emails a reset link. Unknown
// and blocked accounts get the same generic response as the happy path.
func (m *Manager) RequestPasswordReset(ctx context.Context, emailAddr string, rctx models.RequestContext) ResetRequestResult {
	norm := models.NormalizeEmail(emailAddr)
	generic := ResetRequestResult{Outcome: ok(), MaskedEmail: models.MaskEmail(norm)}

	user, err := m.users.GetByEmail(ctx, norm)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityLow, rctx, map[string]string{
				"reason": "unknown_email",
				"email":  norm,
			}, nil)
			return generic
		}
		return ResetRequestResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if auth.ShouldBlock(user, m.now()) {
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "account_blocked",
		}, &user.ID)
		return generic
	}

	token, expiresAt, err := auth.IssueToken(m.cfg.Auth.ResetTokenTTL)
	if err != nil {
		m.audit.Record(ctx, models.EventError, models.SeverityHigh, rctx, map[string]string{
			"flow": "request_password_reset",
		}, &user.ID)
		return ResetRequestResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}

	if err := m.users.SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "storage",
		}, &user.ID)
		return ResetRequestResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if err := m.sender.SendPasswordResetEmail(norm, user.DisplayName, token); err != nil {
		m.logger.Warn("reset email delivery failed", "user_id", user.ID, "error", err)
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "delivery_failed",
		}, &user.ID)
		return ResetRequestResult{Outcome: Outcome{Kind: OutcomeDeliveryFailure}}
	}

	m.audit.Record(ctx, models.EventPasswordResetRequested, models.SeverityLow, rctx, nil, &user.ID)
	return generic
}

// CompletePasswordReset consumes a reset token and installs a new password.
// Token-not-found and token-expired are deliberately the same outcome. The
// stored token is cleared in the same write as the new hash, so a token can
// never be replayed.
func (m *Manager) CompletePasswordReset(ctx context.Context, token, newPassword string, rctx models.RequestContext) PasswordChangeResult {
	if token == "" || newPassword == "" {
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeInvalidInput, Reason: "token and new password are required"}}
	}

	invalidToken := PasswordChangeResult{Outcome: Outcome{Kind: OutcomeInvalidToken, Reason: "invalid or expired reset token"}}

	user, err := m.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityMedium, rctx, map[string]string{
				"reason": "invalid_token",
			}, nil)
			return invalidToken
		}
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if user.PasswordResetToken == nil || user.PasswordResetExpires == nil ||
		!auth.ValidateToken(token, *user.PasswordResetToken, *user.PasswordResetExpires, m.now()) {
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "expired_token",
		}, &user.ID)
		return invalidToken
	}

	if err := auth.ValidatePasswordStrength(newPassword, m.cfg.Auth.MinPasswordLength); err != nil {
		return PasswordChangeResult{Outcome: rejected(err.Error())}
	}

	// Reuse check happens before any write
	if m.authSvc.ComparePasswords(user.PasswordHash, newPassword) == nil {
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityLow, rctx, map[string]string{
			"reason": "password_reuse",
		}, &user.ID)
		return PasswordChangeResult{Outcome: rejected("new password must differ from the current password")}
	}

	hash, err := m.authSvc.HashPassword(newPassword)
	if err != nil {
		m.audit.Record(ctx, models.EventError, models.SeverityHigh, rctx, map[string]string{
			"flow": "complete_password_reset",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}

	// Hash install, token clear and counter reset are one atomic update
	if err := m.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		m.audit.Record(ctx, models.EventPasswordResetFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "storage",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	revoked, err := m.authSvc.RevokeAllSessions(ctx, user.ID)
	if err != nil {
		// The password did change; surface the session problem to operators
		// loudly but keep the outcome truthful.
		m.logger.Error("failed to revoke sessions after reset", "user_id", user.ID, "error", err)
		m.audit.Record(ctx, models.EventError, models.SeverityCritical, rctx, map[string]string{
			"flow": "complete_password_reset",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}

	m.audit.Record(ctx, models.EventPasswordResetCompleted, models.SeverityMedium, rctx, map[string]string{
		"sessions_revoked": i64toa(revoked),
	}, &user.ID)
	return PasswordChangeResult{Outcome: ok(), SessionsRevoked: revoked}
}

// ChangePassword rotates an authenticated user's password and invalidates
// every existing session before returning.
func (m *Manager) ChangePassword(ctx context.Context, user *models.User, currentPassword, newPassword string, rctx models.RequestContext) PasswordChangeResult {
	if currentPassword == "" || newPassword == "" {
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeInvalidInput, Reason: "current and new passwords are required"}}
	}

	if m.authSvc.ComparePasswords(user.PasswordHash, currentPassword) != nil {
		m.audit.Record(ctx, models.EventPasswordChangeFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "wrong_current_password",
		}, &user.ID)
		return PasswordChangeResult{Outcome: rejected("current password is incorrect")}
	}

	if m.authSvc.ComparePasswords(user.PasswordHash, newPassword) == nil {
		m.audit.Record(ctx, models.EventPasswordChangeFailed, models.SeverityLow, rctx, map[string]string{
			"reason": "password_reuse",
		}, &user.ID)
		return PasswordChangeResult{Outcome: rejected("new password must differ from the current password")}
	}

	if err := auth.ValidatePasswordStrength(newPassword, m.cfg.Auth.MinPasswordLength); err != nil {
		return PasswordChangeResult{Outcome: rejected(err.Error())}
	}

	hash, err := m.authSvc.HashPassword(newPassword)
	if err != nil {
		m.audit.Record(ctx, models.EventError, models.SeverityHigh, rctx, map[string]string{
			"flow": "change_password",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}

	if err := m.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		m.audit.Record(ctx, models.EventPasswordChangeFailed, models.SeverityHigh, rctx, map[string]string{
			"reason": "storage",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	// Session invalidation completes before the success response; a password
	// change must force re-authentication everywhere.
	revoked, err := m.authSvc.RevokeAllSessions(ctx, user.ID)
	if err != nil {
		m.logger.Error("failed to revoke sessions after password change", "user_id", user.ID, "error", err)
		m.audit.Record(ctx, models.EventError, models.SeverityCritical, rctx, map[string]string{
			"flow": "change_password",
		}, &user.ID)
		return PasswordChangeResult{Outcome: Outcome{Kind: OutcomeUnexpected}}
	}

	m.audit.Record(ctx, models.EventPasswordChanged, models.SeverityMedium, rctx, map[string]string{
		"sessions_revoked": i64toa(revoked),
	}, &user.ID)
	return PasswordChangeResult{Outcome: ok(), SessionsRevoked: revoked}
}

// Login authenticates by email and password and issues a session. Failed
// attempts count toward lockout; the response for an unknown address and a
// wrong password is identical.
func (m *Manager) Login(ctx context.Context, emailAddr, password string, rctx models.RequestContext) LoginResult {
	norm := models.NormalizeEmail(emailAddr)
	invalidCredentials := LoginResult{Outcome: rejected("invalid credentials")}

	user, err := m.users.GetByEmail(ctx, norm)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.audit.Record(ctx, models.EventLoginFailed, models.SeverityLow, rctx, map[string]string{
				"reason": "unknown_email",
				"email":  norm,
			}, nil)
			return invalidCredentials
		}
		return LoginResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	if auth.ShouldBlock(user, m.now()) {
		m.audit.Record(ctx, models.EventLoginFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "account_blocked",
		}, &user.ID)
		return LoginResult{Outcome: rejected("account is temporarily locked")}
	}

	if m.authSvc.ComparePasswords(user.PasswordHash, password) != nil {
		m.audit.Record(ctx, models.EventLoginFailed, models.SeverityMedium, rctx, map[string]string{
			"reason": "wrong_password",
		}, &user.ID)
		m.registerFailure(ctx, user, rctx)
		return invalidCredentials
	}

	if !user.EmailVerified {
		m.audit.Record(ctx, models.EventLoginFailed, models.SeverityLow, rctx, map[string]string{
			"reason": "email_not_verified",
		}, &user.ID)
		return LoginResult{Outcome: rejected("email address must be verified before logging in")}
	}

	attempts, until := auth.OnSuccess(user)
	if err := m.users.UpdateLockState(ctx, user.ID, attempts, until); err != nil {
		return LoginResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}
	if err := m.users.UpdateLastLogin(ctx, user.ID, m.now()); err != nil {
		m.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	token, session, err := m.authSvc.IssueSession(ctx, user.ID, rctx)
	if err != nil {
		m.audit.Record(ctx, models.EventError, models.SeverityHigh, rctx, map[string]string{
			"flow": "login",
		}, &user.ID)
		return LoginResult{Outcome: Outcome{Kind: OutcomeStorageFailure}}
	}

	m.audit.Record(ctx, models.EventLoginSuccess, models.SeverityLow, rctx, nil, &user.ID)
	return LoginResult{Outcome: ok(), AccessToken: token, ExpiresAt: session.ExpiresAt}
}

// Logout revokes the presented session
func (m *Manager) Logout(ctx context.Context, session *models.Session) error {
	return m.authSvc.RevokeSession(ctx, session.ID)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func i64toa(n int64) string {
	return strconv.FormatInt(n, 10)
}
