package models

// LoginRequest represents the login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"trader@example.com"`
	Password string `json:"password" binding:"required" example:"mypassword123"`
}

// RequestVerificationRequest asks for a fresh email verification code
type RequestVerificationRequest struct {
	Email string `json:"email" binding:"required,email" example:"trader@example.com"`
}

// VerifyCodeRequest submits a 6-digit email verification code
type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email" example:"trader@example.com"`
	Code  string `json:"code" binding:"required,digits6" example:"482913"`
}

// PasswordResetRequest represents the request to initiate a password reset
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email" example:"trader@example.com"`
}

// CompleteResetRequest represents the request to complete a password reset
type CompleteResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=10,max=72"`
}

// ChangePasswordRequest represents the request to change a user's password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=10,max=72"`
}
