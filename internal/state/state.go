// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package state persists the outcome of the most recent backup run for
// external health checks.
//
// The record is a small JSON file written atomically (temp file in the same
// directory, then rename) so a monitoring probe never observes a partial
// write. It is updated only after verification succeeds or definitively
// fails for the current run, and it is owner-readable only: the artifact
// paths it embeds are useful to an attacker for targeted deletion.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// VerificationStatus is the recorded outcome of artifact verification.
type VerificationStatus string

const (
	// VerificationSuccess means the run's artifact passed the structural
	// check.
	VerificationSuccess VerificationStatus = "success"

	// VerificationFailed means an artifact was produced but failed the
	// structural check and was removed.
	VerificationFailed VerificationStatus = "failed"

	// VerificationNotRun means the run aborted before an artifact could
	// be verified.
	VerificationNotRun VerificationStatus = "not-run"
)

// RunState is the latest persisted snapshot of orchestration outcome.
type RunState struct {
	// RunID identifies the run that produced this record.
	RunID string `json:"run_id"`

	// LastRunAt is when the run started, UTC.
	LastRunAt time.Time `json:"last_run_at"`

	// ArtifactPath is the artifact the run produced, empty when none.
	ArtifactPath string `json:"last_artifact_path,omitempty"`

	// ArtifactSizeBytes is the produced artifact's size.
	ArtifactSizeBytes int64 `json:"last_artifact_size_bytes,omitempty"`

	// DurationSeconds is how long the run took.
	DurationSeconds float64 `json:"last_run_duration_seconds"`

	// VerificationStatus is the run's verification outcome.
	VerificationStatus VerificationStatus `json:"last_verification_status"`

	// Error carries the failure detail for failed runs.
	Error string `json:"error,omitempty"`

	// AppVersion is the binary version that wrote the record.
	AppVersion string `json:"app_version,omitempty"`
}

// ErrNotFound means no state record has been written yet.
var ErrNotFound = errors.New("no run state recorded")

// Store reads and writes the run state file.
type Store struct {
	path string
}

// NewStore creates a state store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the record atomically: marshal, write a temp file next to the
// target with owner-only permissions, then rename over the prior file.
func (s *Store) Save(rs RunState) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeAndClose(tmp, data); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// writeAndClose writes data, restricts permissions, and closes the temp
// file, returning the first error.
func writeAndClose(f *os.File, data []byte) error {
	if err := f.Chmod(0o600); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to restrict state file permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	return nil
}

// Load reads the persisted record. Returns ErrNotFound when no record
// exists yet.
func (s *Store) Load() (RunState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return RunState{}, ErrNotFound
	}
	if err != nil {
		return RunState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var rs RunState
	if err := json.Unmarshal(data, &rs); err != nil {
		return RunState{}, fmt.Errorf("failed to parse state file: %w", err)
	}
	return rs, nil
}
