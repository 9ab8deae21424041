package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"tradewatch/internal/api/handlers"
	"tradewatch/internal/api/middleware"
	"tradewatch/internal/audit"
	"tradewatch/internal/auth"
	"tradewatch/internal/credential"
	"tradewatch/internal/models"
	"tradewatch/internal/testutil"
	"tradewatch/internal/validation"
	"tradewatch/internal/verification"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router   *gin.Engine
	users    *testutil.FakeUserRepo
	sessions *testutil.FakeSessionRepo
	sender   *testutil.FakeEmailSender
	authSvc  *auth.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Initialize()

	cfg := testutil.TestConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := testutil.NewFakeUserRepo()
	codes := testutil.NewFakeCodeRepo()
	events := testutil.NewFakeEventRepo()
	sessions := testutil.NewFakeSessionRepo()
	sender := testutil.NewFakeEmailSender()

	codes.OnConsume = func(userID uuid.UUID) {
		u, err := users.GetByID(context.Background(), userID)
		if err != nil {
			return
		}
		u.EmailVerified = true
		users.Add(*u)
	}

	authSvc := auth.NewService(cfg, sessions)
	verifier := verification.NewService(codes, cfg.Verification)
	recorder := audit.NewRecorder(events, logger)
	manager := credential.NewManager(users, authSvc, verifier, sender, recorder, cfg, logger)

	authHandler := handlers.NewAuthHandler(manager)
	accountHandler := handlers.NewAccountHandler(manager)
	authMiddleware := middleware.NewAuthMiddleware(authSvc, users)

	r := gin.New()
	v1 := r.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", authMiddleware.AuthRequired(), authHandler.Logout)
	authGroup.POST("/request-verification", authHandler.RequestVerification)
	authGroup.POST("/verify-code", authHandler.VerifyCode)
	authGroup.POST("/password-reset", authHandler.RequestPasswordReset)
	authGroup.POST("/password-reset/complete", authHandler.CompletePasswordReset)
	account := v1.Group("/account")
	account.Use(authMiddleware.AuthRequired())
	account.GET("", accountHandler.GetProfile)
	account.PUT("/password", accountHandler.ChangePassword)

	return &testApp{
		router:   r,
		users:    users,
		sessions: sessions,
		sender:   sender,
		authSvc:  authSvc,
	}
}

func (a *testApp) addUser(t *testing.T, email, password string, verified bool) uuid.UUID {
	t.Helper()
	hash, err := a.authSvc.HashPassword(password)
	require.NoError(t, err)
	u := models.User{
		Email:         email,
		DisplayName:   "Test Trader",
		PasswordHash:  hash,
		EmailVerified: verified,
	}
	require.NoError(t, a.users.Create(context.Background(), &u))
	return u.ID
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

func TestLoginEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "valid1password", true)

	t.Run("success", func(t *testing.T) {
		token := app.login(t, "trader@example.com", "valid1password")
		require.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "trader@example.com", "password": "bad1password2",
		})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email gets identical body", func(t *testing.T) {
		wrong := app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "trader@example.com", "password": "bad1password2",
		})
		unknown := app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "ghost@example.com", "password": "bad1password2",
		})
		require.Equal(t, wrong.Code, unknown.Code)
		require.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		w := app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "not-an-email"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoginUnverifiedEmail(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "valid1password", false)

	w := app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "trader@example.com", "password": "valid1password",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerificationEndpoints(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "valid1password", false)

	// Request a code
	w := app.do(t, http.MethodPost, "/api/v1/auth/request-verification", "", gin.H{
		"email": "trader@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.RequestVerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "t***@example.com", resp.Email)
	require.Len(t, app.sender.VerificationCodes, 1)
	code := app.sender.VerificationCodes[0].Code

	// Unknown address gets the same 200 with a masked echo
	w = app.do(t, http.MethodPost, "/api/v1/auth/request-verification", "", gin.H{
		"email": "ghost@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, app.sender.VerificationCodes, 1)

	// Malformed code is a 400 from binding
	w = app.do(t, http.MethodPost, "/api/v1/auth/verify-code", "", gin.H{
		"email": "trader@example.com", "code": "12ab56",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong code is a 403 with remaining attempts
	wrong := "999999"
	if code == wrong {
		wrong = "999998"
	}
	w = app.do(t, http.MethodPost, "/api/v1/auth/verify-code", "", gin.H{
		"email": "trader@example.com", "code": wrong,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	var vr models.VerifyCodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vr))
	require.False(t, vr.Verified)
	require.NotNil(t, vr.RemainingAttempts)
	require.Equal(t, 4, *vr.RemainingAttempts)

	// Correct code verifies and unblocks login
	w = app.do(t, http.MethodPost, "/api/v1/auth/verify-code", "", gin.H{
		"email": "trader@example.com", "code": code,
	})
	require.Equal(t, http.StatusOK, w.Code)

	token := app.login(t, "trader@example.com", "valid1password")
	require.NotEmpty(t, token)
}

func TestPasswordResetEndpoints(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "old1password2", true)

	// Request and complete a reset
	w := app.do(t, http.MethodPost, "/api/v1/auth/password-reset", "", gin.H{
		"email": "trader@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, app.sender.ResetTokens, 1)
	token := app.sender.ResetTokens[0].Token

	w = app.do(t, http.MethodPost, "/api/v1/auth/password-reset/complete", "", gin.H{
		"token": token, "new_password": "brand2new3password",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Old password refused, new one works
	w = app.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "trader@example.com", "password": "old1password2",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	app.login(t, "trader@example.com", "brand2new3password")

	// The consumed token cannot be replayed
	w = app.do(t, http.MethodPost, "/api/v1/auth/password-reset/complete", "", gin.H{
		"token": token, "new_password": "another4new5password",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetShortPasswordRejectedByBinding(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/v1/auth/password-reset/complete", "", gin.H{
		"token": "whatever", "new_password": "short1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "valid1password", true)
	token := app.login(t, "trader@example.com", "valid1password")

	w := app.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The session is dead; the same token no longer authenticates
	w = app.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "current1password", true)
	token := app.login(t, "trader@example.com", "current1password")

	t.Run("wrong current password", func(t *testing.T) {
		w := app.do(t, http.MethodPut, "/api/v1/account/password", token, gin.H{
			"current_password": "wrong1password2", "new_password": "brand2new3password",
		})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("success invalidates every session", func(t *testing.T) {
		w := app.do(t, http.MethodPut, "/api/v1/account/password", token, gin.H{
			"current_password": "current1password", "new_password": "brand2new3password",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Zero(t, app.sessions.Count())

		// The old token, including the one that made the change, is dead
		w = app.do(t, http.MethodGet, "/api/v1/account", token, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)

		app.login(t, "trader@example.com", "brand2new3password")
	})
}

func TestAccountEndpointsRequireAuth(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/v1/account", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodPut, "/api/v1/account/password", "garbage-token", gin.H{
		"current_password": "a", "new_password": "brand2new3password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileHidesCredentialState(t *testing.T) {
	app := newTestApp(t)
	app.addUser(t, "trader@example.com", "valid1password", true)
	token := app.login(t, "trader@example.com", "valid1password")

	w := app.do(t, http.MethodGet, "/api/v1/account", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "password")
	require.NotContains(t, w.Body.String(), "lockout")
}
