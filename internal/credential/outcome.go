package credential

import "time"

// OutcomeKind is the closed set of terminal results a credential flow can
// reach. Callers switch on it exhaustively; there is no generic failure.
type OutcomeKind int

const (
	// OutcomeOK is the completed happy path
	OutcomeOK OutcomeKind = iota
	// OutcomeInvalidInput means malformed or missing fields; recoverable
	// locally and never audited as security-relevant
	OutcomeInvalidInput
	// OutcomePolicyRejected covers weak or reused passwords, wrong current
	// password, locked or disabled accounts, and spent or mismatched codes
	OutcomePolicyRejected
	// OutcomeInvalidToken means a reset token that does not exist or has
	// expired; the two cases are deliberately indistinguishable
	OutcomeInvalidToken
	// OutcomeStorageFailure means the durable store failed
	OutcomeStorageFailure
	// OutcomeDeliveryFailure means outbound email failed
	OutcomeDeliveryFailure
	// OutcomeUnexpected is anything uncategorized; audited at CRITICAL and
	// never leaks internal detail to the caller
	OutcomeUnexpected
)

// Outcome is the common result envelope for credential flows
type Outcome struct {
	Kind OutcomeKind
	// Reason is a user-presentable explanation for rejected outcomes. It
	// never carries internal detail.
	Reason string
}

// OK reports whether the flow completed
func (o Outcome) OK() bool {
	return o.Kind == OutcomeOK
}

func ok() Outcome {
	return Outcome{Kind: OutcomeOK}
}

func rejected(reason string) Outcome {
	return Outcome{Kind: OutcomePolicyRejected, Reason: reason}
}

// RequestVerificationResult is the outcome of a verification (re)send. The
// happy path and all enumeration-sensitive rejections share the same shape.
type RequestVerificationResult struct {
	Outcome
	// MaskedEmail is safe to echo back to the caller
	MaskedEmail string
}

// VerifyCodeResult is the outcome of a code submission
type VerifyCodeResult struct {
	Outcome
	Verified          bool
	RemainingAttempts *int
}

// ResetRequestResult is the outcome of a password reset request
type ResetRequestResult struct {
	Outcome
	MaskedEmail string
}

// PasswordChangeResult is the outcome of a password change or reset
// completion; SessionsRevoked counts the sessions invalidated with it.
type PasswordChangeResult struct {
	Outcome
	SessionsRevoked int64
}

// LoginResult is the outcome of an authentication attempt
type LoginResult struct {
	Outcome
	AccessToken string
	ExpiresAt   time.Time
}
