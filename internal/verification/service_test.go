package verification_test

import (
	"context"
	"testing"
	"time"
	"tradewatch/internal/repository"
	"tradewatch/internal/testutil"
	"tradewatch/internal/verification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestService(codes *testutil.FakeCodeRepo) *verification.Service {
	return verification.NewService(codes, testutil.TestConfig().Verification)
}

func TestCreateCode(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "Trader@Example.com")
	require.NoError(t, err)
	require.Len(t, code.Code, 6)
	require.Regexp(t, `^[0-9]{6}$`, code.Code)
	require.Equal(t, "trader@example.com", code.Email)
	require.Equal(t, 5, code.AttemptsRemaining)
	require.False(t, code.Consumed)
}

func TestCreateCodeThrottlesResend(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	_, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	// Immediately asking again is throttled
	_, err = svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.ErrorIs(t, err, verification.ErrResendThrottled)

	// After the cooldown a fresh code supersedes the old one
	svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	fresh, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	active, err := codes.GetActive(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, fresh.ID, active.ID)
}

func TestVerifyCodeHappyPath(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	res, err := svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, codes.Get(code.ID).Consumed)
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.NoError(t, err)

	// Replaying the same code finds nothing active
	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrNoActiveCode)
}

func TestVerifyCodeMalformedNotCharged(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	for _, bad := range []string{"", "12345", "1234567", "12345a", "12 456", "123456\n"} {
		_, err := svc.VerifyCode(context.Background(), userID, "trader@example.com", bad)
		require.ErrorIs(t, err, verification.ErrMalformedCode, "input %q", bad)
	}

	// Malformed submissions never touched the budget
	require.Equal(t, 5, codes.Get(code.ID).AttemptsRemaining)
}

func TestVerifyCodeWrongGuessesExhaustBudget(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if code.Code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 4; i++ {
		res, err := svc.VerifyCode(context.Background(), userID, "trader@example.com", wrong)
		require.ErrorIs(t, err, verification.ErrCodeMismatch)
		require.NotNil(t, res.RemainingAttempts)
		require.Equal(t, 4-i, *res.RemainingAttempts)
	}

	// Fifth wrong guess spends the budget
	res, err := svc.VerifyCode(context.Background(), userID, "trader@example.com", wrong)
	require.ErrorIs(t, err, verification.ErrCodeExhausted)
	require.NotNil(t, res.RemainingAttempts)
	require.Zero(t, *res.RemainingAttempts)

	// Even the correct code is dead now
	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrCodeExhausted)
}

func TestVerifyCodeDoubleSubmitLosesRace(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	// A concurrent submission of the same correct code consumed it between
	// this caller's lookup and consume; the loser sees no active code, never
	// an internal error.
	codes.FailConsumeWith = repository.ErrCodeConsumed
	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrNoActiveCode)
}

func TestVerifyCodeExpired(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })

	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrCodeExpired)

	// The expired code was spent; a clock rolled back cannot revive it
	svc.WithClock(time.Now)
	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrNoActiveCode)
}

func TestVerifyCodeEmailMismatchCharged(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	code, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	// Right code, wrong address: treated exactly like a wrong guess
	res, err := svc.VerifyCode(context.Background(), userID, "other@example.com", code.Code)
	require.ErrorIs(t, err, verification.ErrCodeMismatch)
	require.NotNil(t, res.RemainingAttempts)
	require.Equal(t, 4, *res.RemainingAttempts)
}

func TestVerifyCodeNoActive(t *testing.T) {
	svc := newTestService(testutil.NewFakeCodeRepo())

	_, err := svc.VerifyCode(context.Background(), uuid.New(), "trader@example.com", "123456")
	require.ErrorIs(t, err, verification.ErrNoActiveCode)
}

func TestNewCodeSupersedesOld(t *testing.T) {
	codes := testutil.NewFakeCodeRepo()
	svc := newTestService(codes)
	userID := uuid.New()

	first, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	second, err := svc.CreateCode(context.Background(), userID, "trader@example.com")
	require.NoError(t, err)

	// The first code no longer verifies; only the second does
	_, err = svc.VerifyCode(context.Background(), userID, "trader@example.com", first.Code)
	if err == nil {
		// The two random codes can collide with probability 1e-6; in that
		// case a successful match is correct behavior.
		require.Equal(t, first.Code, second.Code)
		return
	}
	res, err := svc.VerifyCode(context.Background(), userID, "trader@example.com", second.Code)
	require.NoError(t, err)
	require.True(t, res.Success)
}
