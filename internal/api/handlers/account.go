package handlers

import (
	"net/http"
	"tradewatch/internal/credential"
	"tradewatch/internal/models"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles HTTP requests for the authenticated account
type AccountHandler struct {
	manager *credential.Manager
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(manager *credential.Manager) *AccountHandler {
	return &AccountHandler{manager: manager}
}

// ChangePassword godoc
// @Summary Change password
// @Description Change the authenticated user's password. Requires the current password. All sessions, including this one, are invalidated on success.
// @Tags account
// @Accept json
// @Produce json
// @Param request body models.ChangePasswordRequest true "Current and new passwords"
// @Success 200 {object} models.SuccessResponse "Password changed"
// @Failure 400 {object} models.ErrorResponse "Invalid request format"
// @Failure 401 {object} models.ErrorResponse "Invalid or expired session"
// @Failure 403 {object} models.ErrorResponse "Wrong current password or new password rejected by policy"
// @Failure 429 {object} models.ErrorResponse "Rate limit exceeded"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /account/password [put]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request format"})
		return
	}

	user := c.MustGet("user").(*models.User)

	res := h.manager.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword, requestContext(c))
	if !res.OK() {
		writeOutcome(c, res.Outcome)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Message: "password changed; please log in again"})
}

// GetProfile godoc
// @Summary Get account profile
// @Description Return the authenticated user's account, without credential material
// @Tags account
// @Produce json
// @Success 200 {object} models.User "Account profile"
// @Failure 401 {object} models.ErrorResponse "Invalid or expired session"
// @Security BearerAuth
// @Router /account [get]
func (h *AccountHandler) GetProfile(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	c.JSON(http.StatusOK, user)
}
