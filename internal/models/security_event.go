package models

import (
	"time"

	"github.com/google/uuid"
)

// SecurityEventType identifies the kind of security-relevant action recorded
type SecurityEventType string

const (
	EventEmailVerified            SecurityEventType = "EMAIL_VERIFIED"
	EventEmailVerificationFailed  SecurityEventType = "EMAIL_VERIFICATION_FAILED"
	EventEmailVerificationResent  SecurityEventType = "EMAIL_VERIFICATION_RESENT"
	EventVerificationResendFailed SecurityEventType = "EMAIL_VERIFICATION_RESEND_FAILED"
	EventPasswordResetRequested   SecurityEventType = "PASSWORD_RESET_REQUESTED"
	EventPasswordResetCompleted   SecurityEventType = "PASSWORD_RESET_COMPLETED"
	EventPasswordResetFailed      SecurityEventType = "PASSWORD_RESET_FAILED"
	EventPasswordChanged          SecurityEventType = "PASSWORD_CHANGED"
	EventPasswordChangeFailed     SecurityEventType = "PASSWORD_CHANGE_FAILED"
	EventLoginSuccess             SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailed              SecurityEventType = "LOGIN_FAILED"
	EventAccountLocked            SecurityEventType = "ACCOUNT_LOCKED"
	EventError                    SecurityEventType = "ERROR"
)

// Severity classifies how alarming an event is for operators
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SecurityEvent is an immutable audit record. Events are append-only; nothing
// in this system updates or deletes one except age-based retention trimming.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	Type      SecurityEventType `json:"type"`
	Severity  Severity          `json:"severity"`
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent"`
	Metadata  string            `json:"metadata"` // JSON object with event context
	CreatedAt time.Time         `json:"created_at"`
}

// RequestContext carries caller details captured by the transport layer.
// The security core never parses raw requests itself.
type RequestContext struct {
	IP        string
	UserAgent string
}
