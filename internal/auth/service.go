// Package auth provides the credential primitives: password hashing, opaque
// token issuance, session management, lockout policy and password rules.
package auth

import (
	"context"
	"errors"
	"time"
	"tradewatch/internal/config"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken indicates the token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token has expired
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionRevoked indicates the session row is gone; the bearer token
	// is dead even if its signature and expiry still check out
	ErrSessionRevoked = errors.New("session revoked")
)

// Service provides authentication functionality
type Service struct {
	config      *config.Config
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

// NewService creates a new authentication service
func NewService(cfg *config.Config, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		config:      cfg,
		sessionRepo: sessionRepo,
		now:         time.Now,
	}
}

// WithClock overrides the service clock, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HashPassword hashes a password using bcrypt. Each call salts independently,
// so two hashes of the same plaintext differ.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// ComparePasswords compares a hashed password with a plain text password.
// A mismatch is reported as bcrypt.ErrMismatchedHashAndPassword, not a failure.
func (s *Service) ComparePasswords(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// IssueSession creates a session row and returns a signed bearer token
// referencing it. The row is the source of truth: deleting it invalidates the
// token regardless of the JWT's own expiry.
func (s *Service) IssueSession(ctx context.Context, userID uuid.UUID, rctx models.RequestContext) (string, *models.Session, error) {
	session := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		IPAddress: rctx.IP,
		UserAgent: rctx.UserAgent,
		ExpiresAt: s.now().Add(s.config.Auth.SessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", nil, err
	}

	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"sid":     session.ID.String(),
		"exp":     session.ExpiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Auth.JWTSecret))
	if err != nil {
		return "", nil, err
	}

	return signed, session, nil
}

// ValidateSession checks a bearer token's signature and expiry, then confirms
// the referenced session row still exists and is unexpired.
func (s *Service) ValidateSession(ctx context.Context, tokenString string) (*models.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.Auth.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sidStr, ok := claims["sid"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	sid, err := uuid.Parse(sidStr)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.sessionRepo.GetByID(ctx, sid)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	return session, nil
}

// RevokeSession deletes a single session
func (s *Service) RevokeSession(ctx context.Context, id uuid.UUID) error {
	return s.sessionRepo.Delete(ctx, id)
}

// RevokeAllSessions deletes every session for a user. Must complete before a
// password change is acknowledged.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.sessionRepo.DeleteByUserID(ctx, userID)
}
