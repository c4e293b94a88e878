// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

package artifact

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmorrow/vaultrun/internal/logging"
)

// Store is the filesystem-backed artifact store for one backup job.
type Store struct {
	dir      string
	prefix   string
	ext      string
	archiver Archiver
}

// NewStore creates a store rooted at dir, using the given naming convention
// and archiver. The destination directory is created if absent.
func NewStore(dir, prefix, ext string, archiver Archiver) (*Store, error) {
	if archiver == nil {
		return nil, fmt.Errorf("archiver is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &Store{
		dir:      dir,
		prefix:   prefix,
		ext:      strings.TrimPrefix(ext, "."),
		archiver: archiver,
	}, nil
}

// Dir returns the store's destination directory.
func (s *Store) Dir() string {
	return s.dir
}

// List returns all artifacts matching the store's naming convention,
// ordered by creation time ascending. Files that do not parse are skipped
// with a debug log.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact directory %s: %w", s.dir, err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		createdAt, ok := ParseFilename(entry.Name(), s.prefix, s.ext)
		if !ok {
			logging.Debug().Str("file", entry.Name()).Msg("Skipping file outside naming convention")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logging.Debug().Err(err).Str("file", entry.Name()).Msg("Skipping unstatable file")
			continue
		}
		artifacts = append(artifacts, Artifact{
			Path:      filepath.Join(s.dir, entry.Name()),
			CreatedAt: createdAt,
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Create produces a candidate artifact from sourceDir. The store owns the
// naming and placement; byte production is delegated to the archiver. A
// partial file left behind by a failed archiver is removed before the error
// is returned.
func (s *Store) Create(ctx context.Context, sourceDir string) (Artifact, error) {
	createdAt := time.Now().UTC().Truncate(time.Second)
	destPath := filepath.Join(s.dir, Filename(s.prefix, createdAt, s.ext))

	if _, err := os.Stat(destPath); err == nil {
		return Artifact{}, fmt.Errorf("artifact already exists: %s", destPath)
	}

	if err := s.archiver.Archive(ctx, sourceDir, destPath); err != nil {
		s.removePartial(destPath)
		return Artifact{}, fmt.Errorf("archiver failed: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat new artifact: %w", err)
	}

	return Artifact{
		Path:      destPath,
		CreatedAt: createdAt,
		SizeBytes: info.Size(),
	}, nil
}

// removePartial deletes a half-written candidate file, best effort.
func (s *Store) removePartial(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", path).Msg("Failed to remove partial artifact")
	}
}

// Delete removes a single artifact file.
func (s *Store) Delete(a Artifact) error {
	if err := os.Remove(a.Path); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", a.Path, err)
	}
	return nil
}

// DeleteAll removes the given artifacts, best effort per item: one failure
// never aborts the remaining deletions. Returns the number deleted.
func (s *Store) DeleteAll(artifacts []Artifact) int {
	deleted := 0
	for _, a := range artifacts {
		if err := s.Delete(a); err != nil {
			logging.Warn().Err(err).Str("path", a.Path).Msg("Failed to delete artifact")
			continue
		}
		deleted++
	}
	return deleted
}

// VerificationResult reports the structural check of one artifact.
type VerificationResult struct {
	// OK is true when the archive read through cleanly.
	OK bool

	// Entries is the number of archive entries consumed.
	Entries int

	// Err holds the failure detail when OK is false.
	Err error
}

// Verify performs a structural read-through of the artifact: every tar
// entry is consumed to EOF through the gzip stream, which exercises the
// CRC trailer without extracting anything. The artifact is never mutated.
func (s *Store) Verify(a Artifact) VerificationResult {
	file, err := os.Open(a.Path) //nolint:gosec // G304: path comes from the store's own listing
	if err != nil {
		return VerificationResult{Err: fmt.Errorf("failed to open artifact: %w", err)}
	}
	defer file.Close() //nolint:errcheck // Read-only handle

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return VerificationResult{Err: fmt.Errorf("invalid gzip stream: %w", err)}
	}
	defer gzReader.Close() //nolint:errcheck // Read-only handle

	tarReader := tar.NewReader(gzReader)
	entries := 0
	for {
		_, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return VerificationResult{Entries: entries, Err: fmt.Errorf("invalid tar entry: %w", err)}
		}
		if _, err := io.Copy(io.Discard, tarReader); err != nil {
			return VerificationResult{Entries: entries, Err: fmt.Errorf("truncated tar entry: %w", err)}
		}
		entries++
	}

	if entries == 0 {
		return VerificationResult{Err: fmt.Errorf("archive contains no entries")}
	}
	return VerificationResult{OK: true, Entries: entries}
}
