// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

/*
Package orchestrator sequences a single backup run end to end.

A run walks a fixed stage progression:

	Idle -> Locking -> Archiving -> Verifying -> Rotating -> Notifying -> Done

Each stage must succeed before the next begins. Verification failure
aborts the run before any retention deletion, so a bad archive can never
cause older, good archives to be removed. The process lock is released
on every exit path.

Dry-run mode walks the same stages but performs no filesystem mutation:
no archive is created, no artifacts are deleted, and no run state is
persisted. The retention plan is still computed and logged so operators
can preview what a real run would delete.
*/
package orchestrator

import (
	"errors"
	"time"

	"github.com/dmorrow/vaultrun/internal/artifact"
	"github.com/dmorrow/vaultrun/internal/config"
	"github.com/dmorrow/vaultrun/internal/notify"
	"github.com/dmorrow/vaultrun/internal/retention"
	"github.com/dmorrow/vaultrun/internal/state"
)

// Stage identifies a phase of the backup run state machine.
type Stage string

// Run stages, in execution order.
const (
	StageIdle      Stage = "idle"
	StageLocking   Stage = "locking"
	StageArchiving Stage = "archiving"
	StageVerifying Stage = "verifying"
	StageRotating  Stage = "rotating"
	StageAborted   Stage = "aborted"
	StageNotifying Stage = "notifying"
	StageDone      Stage = "done"
)

// ErrCreation indicates the archive could not be created.
var ErrCreation = errors.New("backup creation failed")

// ErrVerification indicates the freshly created archive failed its
// readback check. The unverifiable archive is removed so it can never
// be mistaken for a restorable backup.
var ErrVerification = errors.New("backup verification failed")

// Result summarizes a completed or aborted run.
type Result struct {
	RunID        string
	Stage        Stage
	Artifact     *artifact.Artifact
	Plan         *retention.Plan
	DeletedCount int
	Duration     time.Duration
	DryRun       bool
}

// Orchestrator wires the backup components into a single-run pipeline.
type Orchestrator struct {
	cfg        *config.Config
	store      *artifact.Store
	stateStore *state.Store
	dispatcher *notify.Dispatcher
	policy     retention.Policy
	dryRun     bool
	version    string
}

// Options controls per-run behavior.
type Options struct {
	// DryRun walks the pipeline without mutating the filesystem.
	DryRun bool
	// Version is recorded in persisted run state.
	Version string
}

// New builds an Orchestrator from validated configuration.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	archiver := artifact.NewTarGzArchiver(cfg.Archive.CompressionLevel)
	store, err := artifact.NewStore(cfg.Dest.Dir, cfg.Dest.Prefix, cfg.Dest.Ext, archiver)
	if err != nil {
		return nil, err
	}

	channels, err := buildChannels(cfg)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		stateStore: state.NewStore(cfg.State.Path),
		dispatcher: notify.NewDispatcher(cfg.Notify.Timeout, channels...),
		policy:     cfg.RetentionPolicy(),
		dryRun:     opts.DryRun,
		version:    opts.Version,
	}, nil
}

// buildChannels constructs the configured notification channels.
func buildChannels(cfg *config.Config) ([]notify.Channel, error) {
	var channels []notify.Channel

	if cfg.Notify.WebhookURL != "" {
		ch, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	if cfg.Notify.SMTP.Host != "" {
		ch, err := notify.NewEmailChannel(notify.SMTPConfig{
			Host:     cfg.Notify.SMTP.Host,
			Port:     cfg.Notify.SMTP.Port,
			From:     cfg.Notify.SMTP.From,
			To:       cfg.Notify.SMTP.To,
			User:     cfg.Notify.SMTP.User,
			Password: cfg.Notify.SMTP.Password,
			StartTLS: cfg.Notify.SMTP.StartTLS,
		}, cfg.Notify.Timeout)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	return channels, nil
}
