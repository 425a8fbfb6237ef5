package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/gorm"
)

// EmailNotifier sends templated email and persists a durable log entry of
// each attempt.
type EmailNotifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSMTPConfig builds SMTP settings from the environment
func NewSMTPConfig() *SMTPConfig {
	return &SMTPConfig{
		Host:     getEnvOrDefault("SMTP_HOST", ""),
		Port:     getEnvOrDefault("SMTP_PORT", "587"),
		Username: getEnvOrDefault("SMTP_USERNAME", ""),
		Password: getEnvOrDefault("SMTP_PASSWORD", ""),
		From:     getEnvOrDefault("SMTP_FROM", "no-reply@opendisclosure.example"),
	}
}

// SMTPNotifier delivers plain-text mail over SMTP and records every attempt
// in the email log, success or not.
type SMTPNotifier struct {
	cfg *SMTPConfig
	db  *gorm.DB
}

// NewSMTPNotifier creates an SMTP-backed notifier
func NewSMTPNotifier(cfg *SMTPConfig, db *gorm.DB) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, db: db}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		n.cfg.From, to, subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%s", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	err := smtp.SendMail(addr, auth, n.cfg.From, []string{to}, msg)
	n.record(ctx, to, subject, body, err)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

func (n *SMTPNotifier) record(ctx context.Context, to, subject, body string, sendErr error) {
	entry := models.EmailLog{
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Status:    models.EmailStatusSent,
	}
	if sendErr != nil {
		entry.Status = models.EmailStatusFailed
		entry.Error = sendErr.Error()
	}
	if err := n.db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Error("Failed to write email log entry", "recipient", to, "error", err)
	}
}

// LoggingNotifier writes notifications to the email log and structured
// logging only. Used when no SMTP relay is configured.
type LoggingNotifier struct {
	db *gorm.DB
}

// NewLoggingNotifier creates a log-only notifier
func NewLoggingNotifier(db *gorm.DB) *LoggingNotifier {
	return &LoggingNotifier{db: db}
}

func (n *LoggingNotifier) Send(ctx context.Context, to, subject, body string) error {
	slog.Info("Email notification",
		"recipient", to,
		"subject", subject,
		"preview", previewOf(body))

	entry := models.EmailLog{
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Status:    models.EmailStatusSent,
	}
	if err := n.db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Error("Failed to write email log entry", "recipient", to, "error", err)
	}
	return nil
}

func previewOf(body string) string {
	body = strings.ReplaceAll(body, "\n", " ")
	if len(body) > 80 {
		return body[:80] + "..."
	}
	return body
}
