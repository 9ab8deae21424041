package handlers

import (
	"net/http"
	"tradewatch/internal/credential"
	"tradewatch/internal/models"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles HTTP requests for authentication and account security
type AuthHandler struct {
	manager *credential.Manager
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(manager *credential.Manager) *AuthHandler {
	return &AuthHandler{manager: manager}
}

// requestContext captures the client facts every audit entry records
func requestContext(c *gin.Context) models.RequestContext {
	return models.RequestContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// writeOutcome maps the non-success outcome kinds onto HTTP statuses. Flows
// that must stay enumeration-safe never reach this with a sensitive kind;
// they return their generic success payload instead.
func writeOutcome(c *gin.Context, o credential.Outcome) {
	switch o.Kind {
	case credential.OutcomeInvalidInput:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: o.Reason})
	case credential.OutcomePolicyRejected:
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: o.Reason})
	case credential.OutcomeInvalidToken:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: o.Reason})
	case credential.OutcomeStorageFailure, credential.OutcomeDeliveryFailure, credential.OutcomeUnexpected:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
	}
}

// Login godoc
// @Summary User login
// @Description Authenticate with email and password and receive a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse "Login successful"
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 401 {object} models.ErrorResponse "Invalid credentials"
// @Failure 403 {object} models.ErrorResponse "Account locked or email not verified"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request format"})
		return
	}

	res := h.manager.Login(c.Request.Context(), req.Email, req.Password, requestContext(c))
	if !res.OK() {
		if res.Kind == credential.OutcomePolicyRejected {
			// Wrong credentials are 401; lockout and unverified email are 403
			if res.Reason == "invalid credentials" {
				c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: res.Reason})
				return
			}
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: res.Reason})
			return
		}
		writeOutcome(c, res.Outcome)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	})
}

// Logout godoc
// @Summary User logout
// @Description Revoke the presented session token
// @Tags auth
// @Produce json
// @Success 200 {object} models.SuccessResponse "Logged out"
// @Failure 401 {object} models.ErrorResponse "Invalid or expired session"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	session := c.MustGet("session").(*models.Session)

	if err := h.manager.Logout(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "logged out"})
}

// RequestVerification godoc
// @Summary Request email verification code
// @Description Send a fresh 6-digit verification code. The response is identical whether or not the address is registered.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RequestVerificationRequest true "Email address to verify"
// @Success 200 {object} models.RequestVerificationResponse "Code sent if the address is registered"
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/request-verification [post]
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	var req models.RequestVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request format"})
		return
	}

	res := h.manager.RequestVerification(c.Request.Context(), req.Email, requestContext(c))
	if !res.OK() {
		writeOutcome(c, res.Outcome)
		return
	}

	c.JSON(http.StatusOK, models.RequestVerificationResponse{
		Message: credential.GenericVerificationMessage,
		Email:   res.MaskedEmail,
	})
}

// VerifyCode godoc
// @Summary Verify email address
// @Description Submit a 6-digit verification code for the given email address
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.VerifyCodeRequest true "Verification code"
// @Success 200 {object} models.VerifyCodeResponse "Email verified"
// @Failure 400 {object} models.ErrorResponse "Malformed code"
// @Failure 403 {object} models.VerifyCodeResponse "Wrong, expired, or exhausted code"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/verify-code [post]
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "code must be 6 digits"})
		return
	}

	res := h.manager.VerifyCode(c.Request.Context(), req.Email, req.Code, requestContext(c))
	switch res.Kind {
	case credential.OutcomeOK:
		c.JSON(http.StatusOK, models.VerifyCodeResponse{Verified: true, Message: "email verified"})
	case credential.OutcomePolicyRejected:
		c.JSON(http.StatusForbidden, models.VerifyCodeResponse{
			Verified:          false,
			RemainingAttempts: res.RemainingAttempts,
			Message:           res.Reason,
		})
	default:
		writeOutcome(c, res.Outcome)
	}
}

// RequestPasswordReset godoc
// @Summary Request password reset
// @Description Request a password reset email. For security, always returns success even if the address is not registered.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.PasswordResetRequest true "Email address"
// @Success 200 {object} models.SuccessResponse "Reset email sent if the address is registered"
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request format"})
		return
	}

	res := h.manager.RequestPasswordReset(c.Request.Context(), req.Email, requestContext(c))
	if !res.OK() {
		writeOutcome(c, res.Outcome)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: credential.GenericResetMessage})
}

// CompletePasswordReset godoc
// @Summary Complete password reset
// @Description Consume a reset token and set a new password. All sessions are invalidated on success.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.CompleteResetRequest true "Reset token and new password"
// @Success 200 {object} models.SuccessResponse "Password reset"
// @Failure 400 {object} models.ErrorResponse "Invalid request, invalid token, or expired token"
// @Failure 403 {object} models.ErrorResponse "Password rejected by policy"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/password-reset/complete [post]
func (h *AuthHandler) CompletePasswordReset(c *gin.Context) {
	var req models.CompleteResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request format"})
		return
	}

	res := h.manager.CompletePasswordReset(c.Request.Context(), req.Token, req.NewPassword, requestContext(c))
	if !res.OK() {
		writeOutcome(c, res.Outcome)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "password has been reset; please log in again"})
}
