package auth

import (
	"time"
	"tradewatch/internal/models"
)

// LockoutPolicy holds the failed-attempt threshold and lockout duration.
// The policy counts failed logins and failed verification-code submissions
// against the same counter; both paths call OnFailedAttempt.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// ShouldBlock reports whether any attempt against the account must be
// refused right now: explicit lock, disabled account, or an active timed
// lockout.
func ShouldBlock(u *models.User, now time.Time) bool {
	if u.AccountLocked || u.AccountDisabled {
		return true
	}
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// OnFailedAttempt returns the updated counters after one more failure. Once
// the threshold is reached a timed lockout starts; the caller persists the
// returned values.
func (p LockoutPolicy) OnFailedAttempt(u *models.User, now time.Time) (int, *time.Time) {
	attempts := u.FailedLoginAttempts + 1
	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		return attempts, &until
	}
	return attempts, u.LockoutUntil
}

// OnSuccess returns cleared counters after a successful authentication or
// credential change.
func OnSuccess(u *models.User) (int, *time.Time) {
	return 0, nil
}
