package credential_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
	"tradewatch/internal/audit"
	"tradewatch/internal/auth"
	"tradewatch/internal/config"
	"tradewatch/internal/credential"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"
	"tradewatch/internal/testutil"
	"tradewatch/internal/verification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type harness struct {
	users    *testutil.FakeUserRepo
	codes    *testutil.FakeCodeRepo
	events   *testutil.FakeEventRepo
	sessions *testutil.FakeSessionRepo
	sender   *testutil.FakeEmailSender
	authSvc  *auth.Service
	verifier *verification.Service
	manager  *credential.Manager
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testutil.TestConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := testutil.NewFakeUserRepo()
	codes := testutil.NewFakeCodeRepo()
	events := testutil.NewFakeEventRepo()
	sessions := testutil.NewFakeSessionRepo()
	sender := testutil.NewFakeEmailSender()

	// Mirror the transactional side effect of consuming a code
	codes.OnConsume = func(userID uuid.UUID) {
		u, err := users.GetByID(context.Background(), userID)
		if err != nil {
			return
		}
		u.EmailVerified = true
		users.Add(*u)
	}

	authSvc := auth.NewService(cfg, sessions)
	verifier := verification.NewService(codes, cfg.Verification)
	recorder := audit.NewRecorder(events, logger)
	manager := credential.NewManager(users, authSvc, verifier, sender, recorder, cfg, logger)

	return &harness{
		users:    users,
		codes:    codes,
		events:   events,
		sessions: sessions,
		sender:   sender,
		authSvc:  authSvc,
		verifier: verifier,
		manager:  manager,
		cfg:      cfg,
	}
}

func (h *harness) addUser(t *testing.T, email, password string, verified bool) uuid.UUID {
	t.Helper()
	hash, err := h.authSvc.HashPassword(password)
	require.NoError(t, err)
	u := models.User{
		Email:         email,
		DisplayName:   "Test Trader",
		PasswordHash:  hash,
		EmailVerified: verified,
	}
	require.NoError(t, h.users.Create(context.Background(), &u))
	return u.ID
}

var rctx = models.RequestContext{IP: "203.0.113.7", UserAgent: "test-agent"}

func TestProvisioningRejectsDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "valid1password", true)

	dup := models.User{Email: "trader@example.com", PasswordHash: "x"}
	require.ErrorIs(t, h.users.Create(context.Background(), &dup), repository.ErrEmailExists)
}

func TestRequestVerificationSendsCode(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "valid1password", false)

	res := h.manager.RequestVerification(context.Background(), "Trader@Example.com ", rctx)
	require.True(t, res.OK())
	require.Equal(t, "t***@example.com", res.MaskedEmail)
	require.Len(t, h.sender.VerificationCodes, 1)
	require.Equal(t, "trader@example.com", h.sender.VerificationCodes[0].To)
	require.True(t, h.events.HasEvent(models.EventEmailVerificationResent))
}

func TestRequestVerificationEnumerationSafe(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "known@example.com", "valid1password", false)
	h.addUser(t, "done@example.com", "valid1password", true)

	known := h.manager.RequestVerification(context.Background(), "known@example.com", rctx)
	unknown := h.manager.RequestVerification(context.Background(), "ghost@example.com", rctx)
	verified := h.manager.RequestVerification(context.Background(), "done@example.com", rctx)

	// All three outcomes are externally identical
	require.True(t, known.OK())
	require.True(t, unknown.OK())
	require.True(t, verified.OK())

	// But only the unverified known account got an email
	require.Len(t, h.sender.VerificationCodes, 1)

	// And the true reasons are distinguishable in the audit log
	require.True(t, h.events.HasEvent(models.EventVerificationResendFailed))
}

func TestRequestVerificationThrottled(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "valid1password", false)

	first := h.manager.RequestVerification(context.Background(), "trader@example.com", rctx)
	second := h.manager.RequestVerification(context.Background(), "trader@example.com", rctx)

	// The throttled response is indistinguishable from the first
	require.True(t, first.OK())
	require.True(t, second.OK())
	require.Len(t, h.sender.VerificationCodes, 1)

	var throttled bool
	for _, e := range h.events.Events() {
		if e.Type == models.EventVerificationResendFailed {
			var meta map[string]string
			require.NoError(t, json.Unmarshal([]byte(e.Metadata), &meta))
			if meta["reason"] == "throttled" {
				throttled = true
			}
		}
	}
	require.True(t, throttled)
}

func TestVerifyCodeMarksEmailVerified(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", false)

	require.True(t, h.manager.RequestVerification(context.Background(), "trader@example.com", rctx).OK())
	code := h.sender.VerificationCodes[0].Code

	res := h.manager.VerifyCode(context.Background(), "trader@example.com", code, rctx)
	require.True(t, res.OK())
	require.True(t, res.Verified)

	require.True(t, h.users.Get(userID).EmailVerified)
	require.True(t, h.events.HasEvent(models.EventEmailVerified))
}

func TestVerifyCodeRejectionsDoNotRevealAccounts(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "nocode@example.com", "valid1password", false)
	h.addUser(t, "stale@example.com", "valid1password", false)
	require.True(t, h.manager.RequestVerification(context.Background(), "stale@example.com", rctx).OK())
	h.verifier.WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })

	ghost := h.manager.VerifyCode(context.Background(), "ghost@example.com", "123456", rctx)
	noCode := h.manager.VerifyCode(context.Background(), "nocode@example.com", "123456", rctx)
	expired := h.manager.VerifyCode(context.Background(), "stale@example.com", "123456", rctx)

	// Unregistered address, registered account without a code, and registered
	// account with an expired code must be indistinguishable from outside;
	// only the audit log tells them apart.
	for _, res := range []credential.VerifyCodeResult{ghost, noCode, expired} {
		require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
		require.Equal(t, ghost.Reason, res.Reason)
		require.Nil(t, res.RemainingAttempts)
	}
}

func TestVerifyCodeMalformedSkipsAccountLookup(t *testing.T) {
	h := newHarness(t)
	h.users.FailWith = testutil.ErrStorage

	// A malformed code is rejected before the account lookup, so the staged
	// storage failure must never surface.
	res := h.manager.VerifyCode(context.Background(), "ghost@example.com", "12345a", rctx)
	require.Equal(t, credential.OutcomeInvalidInput, res.Kind)
}

func TestVerifyCodeFailuresFeedLockout(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", false)
	require.True(t, h.manager.RequestVerification(context.Background(), "trader@example.com", rctx).OK())

	code := h.sender.VerificationCodes[0].Code
	wrong := "999999"
	if code == wrong {
		wrong = "999998"
	}

	for i := 0; i < 4; i++ {
		res := h.manager.VerifyCode(context.Background(), "trader@example.com", wrong, rctx)
		require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
	}

	require.Equal(t, 4, h.users.Get(userID).FailedLoginAttempts)

	// The fifth failure exhausts the code and trips the lockout threshold
	res := h.manager.VerifyCode(context.Background(), "trader@example.com", wrong, rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)

	u := h.users.Get(userID)
	require.Equal(t, 5, u.FailedLoginAttempts)
	require.NotNil(t, u.LockoutUntil)
	require.True(t, h.events.HasEvent(models.EventAccountLocked))
}

func TestVerifyCodeMalformedNotCharged(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", false)
	require.True(t, h.manager.RequestVerification(context.Background(), "trader@example.com", rctx).OK())

	res := h.manager.VerifyCode(context.Background(), "trader@example.com", "12345a", rctx)
	require.Equal(t, credential.OutcomeInvalidInput, res.Kind)
	require.Zero(t, h.users.Get(userID).FailedLoginAttempts)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "old1password2", true)

	// A couple of live sessions that must die with the reset
	_, _, err := h.authSvc.IssueSession(context.Background(), userID, rctx)
	require.NoError(t, err)
	_, _, err = h.authSvc.IssueSession(context.Background(), userID, rctx)
	require.NoError(t, err)

	res := h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx)
	require.True(t, res.OK())
	require.Len(t, h.sender.ResetTokens, 1)
	token := h.sender.ResetTokens[0].Token

	done := h.manager.CompletePasswordReset(context.Background(), token, "brand2new3password", rctx)
	require.True(t, done.OK())
	require.EqualValues(t, 2, done.SessionsRevoked)
	require.Zero(t, h.sessions.Count())

	// New password works, old one does not
	u := h.users.Get(userID)
	require.NoError(t, h.authSvc.ComparePasswords(u.PasswordHash, "brand2new3password"))
	require.Error(t, h.authSvc.ComparePasswords(u.PasswordHash, "old1password2"))

	// Token fields cleared with the same write; replay is dead
	require.Nil(t, u.PasswordResetToken)
	replay := h.manager.CompletePasswordReset(context.Background(), token, "another4new5password", rctx)
	require.Equal(t, credential.OutcomeInvalidToken, replay.Kind)

	require.True(t, h.events.HasEvent(models.EventPasswordResetCompleted))
}

func TestPasswordResetEnumerationSafe(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "known@example.com", "valid1password", true)

	known := h.manager.RequestPasswordReset(context.Background(), "known@example.com", rctx)
	unknown := h.manager.RequestPasswordReset(context.Background(), "ghost@example.com", rctx)

	require.True(t, known.OK())
	require.True(t, unknown.OK())
	require.Len(t, h.sender.ResetTokens, 1)
}

func TestPasswordResetExpiredTokenBoundary(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "old1password2", true)

	require.True(t, h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx).OK())
	token := h.sender.ResetTokens[0].Token

	// One second past the expiry the token is invalid; the response does not
	// distinguish expired from never-issued.
	h.manager.WithClock(func() time.Time { return time.Now().Add(h.cfg.Auth.ResetTokenTTL + time.Second) })
	res := h.manager.CompletePasswordReset(context.Background(), token, "brand2new3password", rctx)
	require.Equal(t, credential.OutcomeInvalidToken, res.Kind)

	bogus := h.manager.CompletePasswordReset(context.Background(), "bogus-token", "brand2new3password", rctx)
	require.Equal(t, credential.OutcomeInvalidToken, bogus.Kind)
	require.Equal(t, res.Reason, bogus.Reason)
}

func TestPasswordResetRejectsWeakPassword(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "old1password2", true)

	require.True(t, h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx).OK())
	token := h.sender.ResetTokens[0].Token

	res := h.manager.CompletePasswordReset(context.Background(), token, "short1", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)

	// Nothing was written: old password still valid, token still set
	u := h.users.Get(userID)
	require.NoError(t, h.authSvc.ComparePasswords(u.PasswordHash, "old1password2"))
	require.NotNil(t, u.PasswordResetToken)
}

func TestPasswordResetRejectsReuse(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "same1password2", true)

	require.True(t, h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx).OK())
	token := h.sender.ResetTokens[0].Token

	res := h.manager.CompletePasswordReset(context.Background(), token, "same1password2", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
}

func TestPasswordResetClearsLockout(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "old1password2", true)

	until := time.Now().Add(10 * time.Minute)
	require.NoError(t, h.users.UpdateLockState(context.Background(), userID, 5, &until))

	// A locked account cannot request a reset...
	blocked := h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx)
	require.True(t, blocked.OK())
	require.Empty(t, h.sender.ResetTokens)

	// ...but completing a reset issued before the lockout clears the counters
	require.NoError(t, h.users.UpdateLockState(context.Background(), userID, 0, nil))
	require.True(t, h.manager.RequestPasswordReset(context.Background(), "trader@example.com", rctx).OK())
	require.NoError(t, h.users.UpdateLockState(context.Background(), userID, 5, &until))

	token := h.sender.ResetTokens[0].Token
	res := h.manager.CompletePasswordReset(context.Background(), token, "brand2new3password", rctx)
	require.True(t, res.OK())

	u := h.users.Get(userID)
	require.Zero(t, u.FailedLoginAttempts)
	require.Nil(t, u.LockoutUntil)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "current1password", true)

	_, _, err := h.authSvc.IssueSession(context.Background(), userID, rctx)
	require.NoError(t, err)

	u, err := h.users.GetByID(context.Background(), userID)
	require.NoError(t, err)

	res := h.manager.ChangePassword(context.Background(), u, "current1password", "brand2new3password", rctx)
	require.True(t, res.OK())
	require.EqualValues(t, 1, res.SessionsRevoked)
	require.Zero(t, h.sessions.Count())
	require.True(t, h.events.HasEvent(models.EventPasswordChanged))

	stored := h.users.Get(userID)
	require.NoError(t, h.authSvc.ComparePasswords(stored.PasswordHash, "brand2new3password"))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "current1password", true)

	u, err := h.users.GetByID(context.Background(), userID)
	require.NoError(t, err)

	res := h.manager.ChangePassword(context.Background(), u, "wrong1password2", "brand2new3password", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
	require.True(t, h.events.HasEvent(models.EventPasswordChangeFailed))

	// Password unchanged
	stored := h.users.Get(userID)
	require.NoError(t, h.authSvc.ComparePasswords(stored.PasswordHash, "current1password"))
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "current1password", true)

	u, err := h.users.GetByID(context.Background(), userID)
	require.NoError(t, err)

	res := h.manager.ChangePassword(context.Background(), u, "current1password", "current1password", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
}

func TestLoginHappyPath(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", true)

	res := h.manager.Login(context.Background(), "Trader@Example.com", "valid1password", rctx)
	require.True(t, res.OK())
	require.NotEmpty(t, res.AccessToken)
	require.True(t, h.events.HasEvent(models.EventLoginSuccess))

	session, err := h.authSvc.ValidateSession(context.Background(), res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userID, session.UserID)

	require.NotNil(t, h.users.Get(userID).LastLoginAt)
}

func TestLoginUnknownAndWrongPasswordIdentical(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "known@example.com", "valid1password", true)

	wrong := h.manager.Login(context.Background(), "known@example.com", "bad1password2", rctx)
	unknown := h.manager.Login(context.Background(), "ghost@example.com", "bad1password2", rctx)

	require.Equal(t, credential.OutcomePolicyRejected, wrong.Kind)
	require.Equal(t, credential.OutcomePolicyRejected, unknown.Kind)
	require.Equal(t, wrong.Reason, unknown.Reason)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", true)

	for i := 0; i < 5; i++ {
		res := h.manager.Login(context.Background(), "trader@example.com", "bad1password2", rctx)
		require.False(t, res.OK())
	}

	require.NotNil(t, h.users.Get(userID).LockoutUntil)
	require.True(t, h.events.HasEvent(models.EventAccountLocked))

	// Correct password is refused while locked
	locked := h.manager.Login(context.Background(), "trader@example.com", "valid1password", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, locked.Kind)
	require.Equal(t, "account is temporarily locked", locked.Reason)
}

func TestRelockAfterElapsedLockout(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", true)

	// A lockout that elapsed but has not been swept by maintenance yet
	elapsed := time.Now().Add(-time.Minute)
	require.NoError(t, h.users.UpdateLockState(context.Background(), userID, 4, &elapsed))

	res := h.manager.Login(context.Background(), "trader@example.com", "bad1password2", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)

	// The threshold tripped again: a fresh lockout with its own audit event
	u := h.users.Get(userID)
	require.NotNil(t, u.LockoutUntil)
	require.True(t, u.LockoutUntil.After(time.Now()))
	require.True(t, h.events.HasEvent(models.EventAccountLocked))
}

func TestLoginSuccessClearsCounters(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", true)

	for i := 0; i < 3; i++ {
		h.manager.Login(context.Background(), "trader@example.com", "bad1password2", rctx)
	}
	require.Equal(t, 3, h.users.Get(userID).FailedLoginAttempts)

	res := h.manager.Login(context.Background(), "trader@example.com", "valid1password", rctx)
	require.True(t, res.OK())
	require.Zero(t, h.users.Get(userID).FailedLoginAttempts)
}

func TestLoginUnverifiedEmailRefused(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "valid1password", false)

	res := h.manager.Login(context.Background(), "trader@example.com", "valid1password", rctx)
	require.Equal(t, credential.OutcomePolicyRejected, res.Kind)
	require.Zero(t, h.sessions.Count())
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	userID := h.addUser(t, "trader@example.com", "valid1password", true)

	token, session, err := h.authSvc.IssueSession(context.Background(), userID, rctx)
	require.NoError(t, err)

	require.NoError(t, h.manager.Logout(context.Background(), session))

	_, err = h.authSvc.ValidateSession(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestAuditEventsCarryRequestContext(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "trader@example.com", "valid1password", true)

	h.manager.Login(context.Background(), "trader@example.com", "valid1password", rctx)

	last := h.events.LastEvent()
	require.NotNil(t, last)
	require.Equal(t, "203.0.113.7", last.IPAddress)
	require.Equal(t, "test-agent", last.UserAgent)
}
