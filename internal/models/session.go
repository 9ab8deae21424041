package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-tracked proof of authentication. The bearer token a
// client holds references a session row by ID; deleting the row invalidates
// the token immediately, regardless of the token's own expiry.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
