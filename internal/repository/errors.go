package repository

import "errors"

var (
	// Common errors
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")

	// Verification code errors
	ErrNoActiveCode  = errors.New("no active verification code")
	ErrCodeConsumed  = errors.New("verification code already consumed")
	ErrCodeExhausted = errors.New("verification code attempts exhausted")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
)
