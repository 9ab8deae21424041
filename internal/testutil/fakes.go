// Package testutil provides in-memory repository fakes and helpers shared by
// unit tests across packages.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"tradewatch/internal/config"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
)

// TestConfig returns a configuration with policy values suitable for tests
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth = config.AuthConfig{
		JWTSecret:         "test-secret",
		SessionTTL:        time.Hour,
		ResetTokenTTL:     time.Hour,
		MinPasswordLength: 10,
		LockoutThreshold:  5,
		LockoutDuration:   15 * time.Minute,
	}
	cfg.Verification = config.VerificationConfig{
		CodeTTL:        10 * time.Minute,
		AttemptBudget:  5,
		ResendCooldown: time.Minute,
	}
	cfg.Maintenance = config.MaintenanceConfig{
		Schedule:       "*/5 * * * *",
		AuditRetention: 90 * 24 * time.Hour,
	}
	cfg.RateLimit.Requests = 1000
	cfg.RateLimit.Window = 60
	cfg.RateLimit.Burst = 50
	return cfg
}

// FakeUserRepo is an in-memory UserRepository
type FakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	// FailWith, when set, is returned by every method
	FailWith error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

// Add stores a copy of the user and returns its ID
func (f *FakeUserRepo) Add(u models.User) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = &u
	return u.ID
}

// Get returns a copy of the stored user
func (f *FakeUserRepo) Get(id uuid.UUID) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *FakeUserRepo) Create(ctx context.Context, user *models.User) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *FakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *FakeUserRepo) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *FakeUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hashedPassword
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (f *FakeUserRepo) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordResetToken = &token
	u.PasswordResetExpires = &expiresAt
	return nil
}

func (f *FakeUserRepo) UpdateLockState(ctx context.Context, id uuid.UUID, failedAttempts int, lockoutUntil *time.Time) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockoutUntil = lockoutUntil
	return nil
}

func (f *FakeUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, lastLoginAt time.Time) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LastLoginAt = &lastLoginAt
	return nil
}

func (f *FakeUserRepo) ClearElapsedLockouts(ctx context.Context, now time.Time) (int64, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.users {
		if u.LockoutUntil != nil && !now.Before(*u.LockoutUntil) {
			u.LockoutUntil = nil
			u.FailedLoginAttempts = 0
			n++
		}
	}
	return n, nil
}

// FakeCodeRepo is an in-memory VerificationCodeRepository
type FakeCodeRepo struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*models.VerificationCode

	FailWith error

	// FailConsumeWith, when set, is returned by Consume only. Lets tests
	// stage a lost consume race without failing the preceding lookups.
	FailConsumeWith error

	// OnConsume, when set, is invoked with the user ID whenever a code is
	// consumed. Lets tests mirror the email_verified side effect.
	OnConsume func(userID uuid.UUID)
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[uuid.UUID]*models.VerificationCode)}
}

// Get returns a copy of the stored code
func (f *FakeCodeRepo) Get(id uuid.UUID) models.VerificationCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.codes[id]
}

func (f *FakeCodeRepo) Replace(ctx context.Context, code *models.VerificationCode) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.UserID == code.UserID && !c.Consumed {
			c.Consumed = true
		}
	}
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	cp := *code
	f.codes[code.ID] = &cp
	return nil
}

func (f *FakeCodeRepo) GetActive(ctx context.Context, userID uuid.UUID) (*models.VerificationCode, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*models.VerificationCode
	for _, c := range f.codes {
		if c.UserID == userID && !c.Consumed {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil, repository.ErrNoActiveCode
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	cp := *active[0]
	return &cp, nil
}

func (f *FakeCodeRepo) DecrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok {
		return 0, repository.ErrNoActiveCode
	}
	if c.AttemptsRemaining <= 0 {
		return 0, repository.ErrCodeExhausted
	}
	c.AttemptsRemaining--
	return c.AttemptsRemaining, nil
}

func (f *FakeCodeRepo) Consume(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	if f.FailConsumeWith != nil {
		return f.FailConsumeWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok {
		return repository.ErrNoActiveCode
	}
	if c.Consumed {
		return repository.ErrCodeConsumed
	}
	c.Consumed = true
	if f.OnConsume != nil {
		f.OnConsume(userID)
	}
	return nil
}

func (f *FakeCodeRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok {
		return repository.ErrNoActiveCode
	}
	c.Consumed = true
	return nil
}

func (f *FakeCodeRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.codes {
		if c.ExpiresAt.Before(before) {
			delete(f.codes, id)
			n++
		}
	}
	return n, nil
}

// FakeEventRepo is an in-memory SecurityEventRepository
type FakeEventRepo struct {
	mu     sync.Mutex
	events []models.SecurityEvent

	FailWith error
}

func NewFakeEventRepo() *FakeEventRepo {
	return &FakeEventRepo{}
}

// Events returns a copy of all recorded events in insertion order
func (f *FakeEventRepo) Events() []models.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SecurityEvent, len(f.events))
	copy(out, f.events)
	return out
}

// LastEvent returns the most recently recorded event
func (f *FakeEventRepo) LastEvent() *models.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	cp := f.events[len(f.events)-1]
	return &cp
}

// HasEvent reports whether an event of the given type was recorded
func (f *FakeEventRepo) HasEvent(t models.SecurityEventType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func (f *FakeEventRepo) Create(ctx context.Context, event *models.SecurityEvent) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *FakeEventRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]models.SecurityEvent, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range f.events {
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakeEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.SecurityEvent
	var n int64
	for _, e := range f.events {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return n, nil
}

// FakeSessionRepo is an in-memory SessionRepository
type FakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session

	FailWith error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{sessions: make(map[uuid.UUID]*models.Session)}
}

// Count returns the number of stored sessions
func (f *FakeSessionRepo) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *FakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *FakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

func (f *FakeSessionRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *FakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if f.FailWith != nil {
		return 0, f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.ExpiresAt.Before(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// FakeEmailSender records outbound email instead of sending it
type FakeEmailSender struct {
	mu sync.Mutex

	VerificationCodes []SentCode
	ResetTokens       []SentToken

	FailWith error
}

// SentCode is one captured verification code email
type SentCode struct {
	To   string
	Code string
}

// SentToken is one captured password reset email
type SentToken struct {
	To    string
	Token string
}

func NewFakeEmailSender() *FakeEmailSender {
	return &FakeEmailSender{}
}

func (f *FakeEmailSender) SendVerificationCode(to, displayName, code string) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerificationCodes = append(f.VerificationCodes, SentCode{To: to, Code: code})
	return nil
}

func (f *FakeEmailSender) SendPasswordResetEmail(to, displayName, token string) error {
	if f.FailWith != nil {
		return f.FailWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetTokens = append(f.ResetTokens, SentToken{To: to, Token: token})
	return nil
}

// ErrStorage is a generic storage failure for fault-injection tests
var ErrStorage = errors.New("storage failure")
