// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// WebhookChannel posts run outcomes to a generic HTTP endpoint as JSON.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel for the given URL.
func NewWebhookChannel(rawURL string, timeout time.Duration) (*WebhookChannel, error) {
	if err := validateWebhookURL(rawURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookChannel{
		url:    rawURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// validateWebhookURL rejects URLs that cannot possibly deliver.
func validateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// Name identifies the channel in logs.
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// webhookPayload is the JSON body posted to the endpoint.
type webhookPayload struct {
	Event     string    `json:"event"`
	RunID     string    `json:"run_id"`
	Severity  string    `json:"severity"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Send posts the message. Any non-2xx response is a failure.
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(webhookPayload{
		Event:     "backup.run",
		RunID:     msg.RunID,
		Severity:  string(msg.Severity),
		Subject:   msg.Subject,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vaultrun/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // Error detail only
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
