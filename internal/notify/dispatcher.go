// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package notify implements best-effort outcome reporting for backup runs.
//
// The dispatcher fans a message out to zero or more configured channels
// (chat webhook, email). Every send is wrapped in a bounded timeout and
// every failure is swallowed and logged: a notification outage must never
// turn a successful backup into a reported failure, nor abort the
// orchestration sequence. An unconfigured channel is simply absent from
// the fan-out.
package notify

import (
	"context"
	"time"

	"github.com/dmorrow/vaultrun/internal/logging"
)

// Severity classifies a notification message.
type Severity string

const (
	// SeverityInfo reports a successful run.
	SeverityInfo Severity = "info"

	// SeverityError reports a failed run.
	SeverityError Severity = "error"
)

// Message is one run-outcome notification.
type Message struct {
	// RunID identifies the run being reported.
	RunID string

	// Severity is info for success, error for failure.
	Severity Severity

	// Subject is the one-line summary.
	Subject string

	// Body carries the detail (stage, artifact, error).
	Body string

	// Timestamp is when the outcome was determined, UTC.
	Timestamp time.Time
}

// Channel delivers a message over one transport. Implementations return an
// error for logging only; the dispatcher never propagates it.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Send delivers the message, honoring ctx for cancellation.
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans messages out to all configured channels.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
}

// DefaultTimeout bounds each channel send so a network partition cannot
// stall the orchestrator.
const DefaultTimeout = 10 * time.Second

// NewDispatcher creates a dispatcher over the given channels. A nil or
// empty channel list yields a silent no-op dispatcher.
func NewDispatcher(timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{channels: channels, timeout: timeout}
}

// Channels returns the number of configured channels.
func (d *Dispatcher) Channels() int {
	return len(d.channels)
}

// Notify delivers msg to every channel, best effort. It never returns an
// error and never panics out of a channel failure; each send gets its own
// bounded timeout derived from ctx.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	for _, ch := range d.channels {
		d.sendOne(ctx, ch, msg)
	}
}

// sendOne delivers to a single channel, logging the outcome.
func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Send(sendCtx, msg); err != nil {
		logging.Warn().
			Err(err).
			Str("channel", ch.Name()).
			Str("run_id", msg.RunID).
			Msg("Notification channel failed")
		return
	}
	logging.Debug().
		Str("channel", ch.Name()).
		Str("run_id", msg.RunID).
		Msg("Notification delivered")
}
