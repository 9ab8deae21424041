// Package routes handles the setup and configuration of API routes
package routes

import (
	"database/sql"
	"log/slog"
	_ "tradewatch/docs" // Import swagger docs
	"tradewatch/internal/api/handlers"
	"tradewatch/internal/api/middleware"
	"tradewatch/internal/audit"
	"tradewatch/internal/auth"
	"tradewatch/internal/config"
	"tradewatch/internal/credential"
	"tradewatch/internal/email"
	"tradewatch/internal/repository/postgres"
	"tradewatch/internal/verification"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRoutes configures all API routes and their handlers
func SetupRoutes(cfg *config.Config, db *sql.DB, logger *slog.Logger) *gin.Engine {
	// Create router
	r := gin.Default()

	// Initialize health handler for basic routes
	healthHandler := handlers.NewHealthHandler(db)

	// Routes without rate limiting
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Apply rate limiting to all other routes
	r.Use(middleware.NewRateLimiter(cfg).Middleware())

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	codeRepo := postgres.NewVerificationCodeRepository(db)
	eventRepo := postgres.NewSecurityEventRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	// Initialize services
	authService := auth.NewService(cfg, sessionRepo)
	verifier := verification.NewService(codeRepo, cfg.Verification)
	emailService := email.NewService(cfg.Email)
	recorder := audit.NewRecorder(eventRepo, logger)
	manager := credential.NewManager(userRepo, authService, verifier, emailService, recorder, cfg, logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(authService, userRepo)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(manager)
	accountHandler := handlers.NewAccountHandler(manager)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Health check (no authentication required)
		v1.GET("/health", healthHandler.Health)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/logout", authMiddleware.AuthRequired(), authHandler.Logout)
			authGroup.POST("/request-verification", authHandler.RequestVerification)
			authGroup.POST("/verify-code", authHandler.VerifyCode)
			authGroup.POST("/password-reset", authHandler.RequestPasswordReset)
			authGroup.POST("/password-reset/complete", authHandler.CompletePasswordReset)
		}

		// Account routes (require authentication)
		account := v1.Group("/account")
		account.Use(authMiddleware.AuthRequired())
		{
			account.GET("", accountHandler.GetProfile)
			account.PUT("/password", accountHandler.ChangePassword)
		}
	}

	return r
}
