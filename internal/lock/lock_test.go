// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".vaultrun.lock")
}

func TestAcquireAndRelease(t *testing.T) {
	path := lockPath(t)

	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Path() != path {
		t.Errorf("Path() = %q, want %q", h.Path(), path)
	}
	h.Release()
}

func TestMutualExclusion(t *testing.T) {
	path := lockPath(t)

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrContention) {
		t.Fatalf("second Acquire error = %v, want ErrContention", err)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	path := lockPath(t)

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	first.Release()

	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	h, err := Acquire(lockPath(t))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	h.Release()
	h.Release()
	h.Release()
}

func TestOwnerPIDRecorded(t *testing.T) {
	path := lockPath(t)

	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release()

	if h.OwnerPID() != os.Getpid() {
		t.Errorf("OwnerPID() = %d, want %d", h.OwnerPID(), os.Getpid())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("lock file does not hold a PID: %q", data)
	}
	if pid != os.Getpid() {
		t.Errorf("recorded PID = %d, want %d", pid, os.Getpid())
	}
}
