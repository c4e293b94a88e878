// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the email channel's transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	To       string
	User     string
	Password string

	// StartTLS upgrades the connection before authenticating. On by
	// default; net/smtp refuses PLAIN auth over cleartext to a remote
	// host, so disabling it only works for localhost relays.
	StartTLS bool
}

// EmailChannel sends plain-text run outcomes to a single addressee over
// SMTP with optional PLAIN auth.
type EmailChannel struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewEmailChannel creates an email channel. Host, from, and to are
// required; user/password are optional.
func NewEmailChannel(cfg SMTPConfig, timeout time.Duration) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid SMTP port: %d", cfg.Port)
	}
	if err := validateEmail(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid SMTP from address: %w", err)
	}
	if err := validateEmail(cfg.To); err != nil {
		return nil, fmt.Errorf("invalid SMTP to address: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &EmailChannel{cfg: cfg, timeout: timeout}, nil
}

// validateEmail checks the address shape without a full RFC parse.
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	return nil
}

// Name identifies the channel in logs.
func (c *EmailChannel) Name() string {
	return "email"
}

// Send delivers the message over SMTP.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Best effort cleanup

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // Best effort bound
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close() //nolint:errcheck // Best effort cleanup

	if c.cfg.StartTLS {
		tlsConfig := &tls.Config{
			ServerName: c.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if c.cfg.User != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.User, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(c.cfg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(c.buildMessage(msg))); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// Quit failures after a delivered message are not worth reporting.
	_ = client.Quit() //nolint:errcheck
	return nil
}

// buildMessage renders the plain-text RFC 5322 message.
func (c *EmailChannel) buildMessage(msg Message) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: Vaultrun <%s>\r\n", c.cfg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", c.cfg.To))
	b.WriteString(fmt.Sprintf("Subject: [%s] %s\r\n", strings.ToUpper(string(msg.Severity)), msg.Subject))
	b.WriteString(fmt.Sprintf("X-Vaultrun-Run-ID: %s\r\n", msg.RunID))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return b.String()
}
