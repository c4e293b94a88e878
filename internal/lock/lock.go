// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package lock provides the exclusive, non-blocking execution lock that
// serializes backup runs across process invocations.
//
// Exclusivity rests on the OS advisory lock held on the open descriptor,
// not on file existence: if the owning process dies, the kernel releases
// the lock and the next scheduled run proceeds without stale-lock cleanup.
// A plain existence check would race between the check and the create, and
// would wedge the job after a crash.
//
// Acquisition never waits. A backup run that cannot start this interval
// skips cleanly; the next scheduler invocation retries naturally.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/gofrs/flock"

	"github.com/dmorrow/vaultrun/internal/logging"
)

// ErrContention means another process already holds the job's lock.
// Expected under concurrent scheduler triggers; not an error to alarm on.
var ErrContention = errors.New("another backup run holds the lock")

// Handle represents exclusive ownership of the job's execution slot.
// It is released on every exit path; release is idempotent.
type Handle struct {
	path     string
	ownerPID int
	fl       *flock.Flock
	once     sync.Once
}

// Acquire attempts to take the exclusive advisory lock at path exactly
// once, creating the file if absent. It returns ErrContention immediately
// when the lock is held elsewhere.
func Acquire(path string) (*Handle, error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrContention, path)
	}

	h := &Handle{
		path:     path,
		ownerPID: os.Getpid(),
		fl:       fl,
	}
	h.writeOwnerPID()
	return h, nil
}

// writeOwnerPID records the owning PID in the lock file. Diagnostic only:
// correctness never depends on reading it back.
func (h *Handle) writeOwnerPID() {
	if err := os.WriteFile(h.path, []byte(strconv.Itoa(h.ownerPID)+"\n"), 0o640); err != nil {
		logging.Debug().Err(err).Str("path", h.path).Msg("Failed to record lock owner PID")
	}
}

// Path returns the lock file location.
func (h *Handle) Path() string {
	return h.path
}

// OwnerPID returns the PID recorded for diagnostics.
func (h *Handle) OwnerPID() int {
	return h.ownerPID
}

// Release drops the advisory lock. Safe to call more than once; a release
// failure is logged, never propagated.
func (h *Handle) Release() {
	h.once.Do(func() {
		if err := h.fl.Unlock(); err != nil {
			logging.Warn().Err(err).Str("path", h.path).Msg("Failed to release lock")
		}
	})
}
