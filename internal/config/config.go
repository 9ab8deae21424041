// Package config loads application configuration from the environment
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// API contains API server configuration
	API APIConfig
	// Auth contains authentication and credential policy configuration
	Auth AuthConfig
	// Verification contains email verification code policy
	Verification VerificationConfig
	// Database contains database configuration
	Database DatabaseConfig
	// Email contains email service configuration
	Email EmailConfig
	// Maintenance contains background janitor configuration
	Maintenance MaintenanceConfig

	// Rate Limiting Configuration
	RateLimit struct {
		Requests int // Number of requests allowed per window
		Window   int // Time window in seconds
		Burst    int // Maximum burst size
	}
}

// APIConfig contains API server settings
type APIConfig struct {
	// Port is the server port to listen on
	Port string
	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string
}

// AuthConfig contains authentication and credential policy settings
type AuthConfig struct {
	// JWTSecret signs session bearer tokens
	JWTSecret string
	// SessionTTL is how long an issued session stays valid
	SessionTTL time.Duration
	// ResetTokenTTL is the lifetime of a password reset token
	ResetTokenTTL time.Duration
	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength int
	// LockoutThreshold is the failed-attempt count that triggers a lockout
	LockoutThreshold int
	// LockoutDuration is how long a triggered lockout lasts
	LockoutDuration time.Duration
}

// VerificationConfig contains email verification code policy settings
type VerificationConfig struct {
	// CodeTTL is the lifetime of an issued 6-digit code
	CodeTTL time.Duration
	// AttemptBudget is the number of wrong guesses before a code is spent
	AttemptBudget int
	// ResendCooldown is the minimum interval between issued codes per user
	ResendCooldown time.Duration
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// EmailConfig contains email service settings
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	// AppURL is the base URL used in reset links
	AppURL string
}

// MaintenanceConfig contains background janitor settings
type MaintenanceConfig struct {
	// Schedule is a cron expression for janitor runs
	Schedule string
	// AuditRetention is how long security events are kept
	AuditRetention time.Duration
}

// LoadFromEnv retrieves configuration from environment variables
func (c *Config) LoadFromEnv() error {
	c.API = APIConfig{
		Port:     getEnvOrDefault("API_PORT", "8080"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	c.Database = DatabaseConfig{
		Host:           getEnvOrDefault("DB_HOST", "localhost"),
		Port:           getEnvAsInt("DB_PORT", 5432),
		User:           getEnvOrDefault("DB_USER", "postgres"),
		Password:       getEnvOrDefault("DB_PASSWORD", "postgres"),
		DBName:         getEnvOrDefault("DB_NAME", "tradewatch"),
		SSLMode:        getEnvOrDefault("DB_SSL_MODE", "disable"),
		MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
	}
	c.Auth = AuthConfig{
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		ResetTokenTTL:     getEnvAsDuration("RESET_TOKEN_TTL", time.Hour),
		MinPasswordLength: getEnvAsInt("MIN_PASSWORD_LENGTH", 10),
		LockoutThreshold:  getEnvAsInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:   getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
	}
	c.Verification = VerificationConfig{
		CodeTTL:        getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
		AttemptBudget:  getEnvAsInt("VERIFICATION_ATTEMPT_BUDGET", 5),
		ResendCooldown: getEnvAsDuration("VERIFICATION_RESEND_COOLDOWN", time.Minute),
	}
	c.Email = EmailConfig{
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		FromAddress:  os.Getenv("SMTP_FROM"),
		AppURL:       os.Getenv("APP_URL"),
	}
	c.Maintenance = MaintenanceConfig{
		Schedule:       getEnvOrDefault("MAINTENANCE_SCHEDULE", "*/5 * * * *"),
		AuditRetention: getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
	}

	c.RateLimit.Requests = getEnvAsInt("RATE_LIMIT_REQUESTS", 1000)
	c.RateLimit.Window = getEnvAsInt("RATE_LIMIT_WINDOW", 60)
	c.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 50)

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if c.Verification.AttemptBudget < 1 {
		return fmt.Errorf("VERIFICATION_ATTEMPT_BUDGET must be at least 1")
	}

	return nil
}

// getEnvAsInt retrieves an environment variable and converts it to an integer
func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvAsDuration retrieves an environment variable and parses it as a duration
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
