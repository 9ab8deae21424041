package middleware

import (
	"net/http"
	"strings"
	"time"
	"tradewatch/internal/auth"
	"tradewatch/internal/repository"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware authenticates requests by their session bearer token
type AuthMiddleware struct {
	authService *auth.Service
	userRepo    repository.UserRepository
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService *auth.Service, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		userRepo:    userRepo,
	}
}

// AuthRequired validates the bearer token, confirms the session row still
// exists, and loads the user into the request context.
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			c.Abort()
			return
		}

		session, err := m.authService.ValidateSession(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			c.Abort()
			return
		}

		user, err := m.userRepo.GetByID(c.Request.Context(), session.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			c.Abort()
			return
		}

		if auth.ShouldBlock(user, time.Now()) {
			c.JSON(http.StatusForbidden, gin.H{"error": "account is locked"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("session", session)

		c.Next()
	}
}
