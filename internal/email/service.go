// Package email delivers account security mail over SMTP
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"sync"
	"tradewatch/internal/config"
)

// Sender defines the interface for sending account security emails
type Sender interface {
	SendVerificationCode(to, displayName, code string) error
	SendPasswordResetEmail(to, displayName, token string) error
}

// Service implements the Sender interface over a pooled SMTP connection
type Service struct {
	config config.EmailConfig
	client *smtp.Client
	mu     sync.Mutex
}

// NewService creates a new email service
func NewService(cfg config.EmailConfig) *Service {
	return &Service{config: cfg}
}

// dialSMTP establishes an SMTP connection, reusing a live one when possible
func (s *Service) dialSMTP() (*smtp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Noop(); err == nil {
			return s.client, nil
		}
		s.client.Close()
		s.client = nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	if err := client.Auth(smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to authenticate with SMTP server: %w", err)
	}

	s.client = client
	return client, nil
}

func (s *Service) sendMail(to string, msg []byte) error {
	client, err := s.dialSMTP()
	if err != nil {
		return err
	}

	if err := client.Mail(s.config.SMTPUsername); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to add recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message writer: %w", err)
	}

	return nil
}

// Close closes the SMTP connection
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Quit()
		s.client = nil
		return err
	}
	return nil
}

func (s *Service) checkConfig() error {
	if s.config.SMTPHost == "" || s.config.SMTPPort == 0 || s.config.SMTPUsername == "" ||
		s.config.SMTPPassword == "" || s.config.FromAddress == "" {
		return fmt.Errorf("incomplete email configuration")
	}
	return nil
}

func (s *Service) render(name, text string, data map[string]string) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return body.String(), nil
}

func (s *Service) message(to, subject, body string) []byte {
	msg := fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", to, s.config.FromAddress, subject, body)
	return []byte(msg)
}

// SendVerificationCode emails a 6-digit verification code
func (s *Service) SendVerificationCode(to, displayName, code string) error {
	if err := s.checkConfig(); err != nil {
		return err
	}

	body, err := s.render("verification", `
		<h2>Hello {{.Name}},</h2>
		<p>Your verification code is:</p>
		<h1 style="letter-spacing: 4px;">{{.Code}}</h1>
		<p>Enter it in the dashboard to confirm your email address. The code expires in 10 minutes.</p>
		<p>If you did not request this code, no further action is required.</p>
	`, map[string]string{
		"Name": displayName,
		"Code": code,
	})
	if err != nil {
		return err
	}

	if err := s.sendMail(to, s.message(to, "Your Verification Code", body)); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// SendPasswordResetEmail emails a password reset link
func (s *Service) SendPasswordResetEmail(to, displayName, token string) error {
	if err := s.checkConfig(); err != nil {
		return err
	}
	if s.config.AppURL == "" {
		return fmt.Errorf("incomplete email configuration")
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.config.AppURL, token)
	body, err := s.render("reset", `
		<h2>Hello {{.Name}},</h2>
		<p>You have requested to reset your password. Click the link below to proceed:</p>
		<p><a href="{{.URL}}">Reset Password</a></p>
		<p>This link will expire in 1 hour.</p>
		<p>If you did not request a password reset, please ignore this email.</p>
	`, map[string]string{
		"Name": displayName,
		"URL":  resetURL,
	})
	if err != nil {
		return err
	}

	if err := s.sendMail(to, s.message(to, "Reset Your Password", body)); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}
