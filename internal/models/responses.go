package models

import "time"

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request"`
}

// SuccessResponse represents a generic success message
type SuccessResponse struct {
	Message string `json:"message" example:"ok"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	AccessToken string    `json:"access_token" example:"eyJhbGciOiJIUzI1NiIs..."`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyCodeResponse reports the result of a code submission
type VerifyCodeResponse struct {
	Verified          bool   `json:"verified"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	Message           string `json:"message,omitempty"`
}

// RequestVerificationResponse is deliberately identical for every outcome of
// a verification request so callers cannot enumerate registered addresses.
type RequestVerificationResponse struct {
	Message string `json:"message" example:"if the email is registered, a verification code has been sent"`
	Email   string `json:"email" example:"t***@example.com"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status string    `json:"status" example:"healthy"`
	Time   time.Time `json:"time"`
}
