package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"
)

const opaqueTokenLength = 32

// IssueToken generates a cryptographically random, URL-safe opaque token and
// its expiry. Used for password reset tokens; the caller is responsible for
// clearing the stored token in the same write as the effect it authorizes.
func IssueToken(ttl time.Duration) (string, time.Time, error) {
	b := make([]byte, opaqueTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	return base64.RawURLEncoding.EncodeToString(b), time.Now().Add(ttl), nil
}

// ValidateToken reports whether a presented token matches the stored one and
// has not expired. The comparison is constant-time; expiry is exclusive at
// the boundary, so a token is invalid at the expiry instant itself.
func ValidateToken(presented, stored string, expiresAt, now time.Time) bool {
	if presented == "" || stored == "" {
		return false
	}
	if !now.Before(expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
