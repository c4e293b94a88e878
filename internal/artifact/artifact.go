// Vaultrun - Scheduled Backup Orchestration
// Copyright 2026 Dan M. (dmorrow)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dmorrow/vaultrun

// Package artifact manages backup artifacts on the local filesystem.
//
// An artifact is one backup output file produced by a single run, named
// {prefix}-{YYYYMMDD_HHMMSS}.{ext} so its creation time can be recovered by
// parsing the filename alone. Filesystem mtime is never trusted: copies and
// restores alter it, while the embedded timestamp survives both.
//
// The Store owns naming, placement, listing, deletion, and structural
// verification. Byte production is delegated to the Archiver collaborator;
// the default TarGzArchiver packs a source directory into a tar.gz stream.
package artifact

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout encodes artifact creation time to second precision.
// Two artifacts for the same job never collide: the store refuses to
// overwrite an existing file with the same name.
const timestampLayout = "20060102_150405"

// Artifact represents one completed (or candidate) backup unit.
type Artifact struct {
	// Path is the artifact's location on disk.
	Path string

	// CreatedAt is the creation timestamp parsed from the filename, UTC.
	CreatedAt time.Time

	// SizeBytes is the artifact file size.
	SizeBytes int64

	// Verified reports whether this artifact passed structural
	// verification in the current process. Transient, never persisted.
	Verified bool
}

// Filename builds the canonical artifact filename for a creation time.
func Filename(prefix string, createdAt time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, createdAt.UTC().Format(timestampLayout), ext)
}

// ParseFilename recovers the creation time from an artifact filename.
// It returns false for names that do not follow the store's convention.
func ParseFilename(name, prefix, ext string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok {
		return time.Time{}, false
	}
	stamp, ok := strings.CutSuffix(rest, "."+ext)
	if !ok {
		return time.Time{}, false
	}
	createdAt, err := time.ParseInLocation(timestampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return createdAt, true
}
