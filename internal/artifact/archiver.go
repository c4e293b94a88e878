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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmorrow/vaultrun/internal/logging"
)

// ErrSourceInvalid marks a data source that fails precondition checks
// before archiving starts.
var ErrSourceInvalid = errors.New("backup source invalid")

// Archiver produces the bytes of a candidate artifact at destPath from a
// source directory. Implementations must return an explicit error on
// failure and must never partially overwrite an existing valid artifact;
// the Store guarantees destPath does not exist when Archive is called.
type Archiver interface {
	Archive(ctx context.Context, sourceDir, destPath string) error
}

// CheckSource validates the data source before archiving starts: it must
// exist, be a directory, and be readable. Failures wrap ErrSourceInvalid.
func CheckSource(sourceDir string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceInvalid, sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrSourceInvalid, sourceDir)
	}
	f, err := os.Open(sourceDir) //nolint:gosec // G304: source path comes from configuration
	if err != nil {
		return fmt.Errorf("%w: %s is not readable: %v", ErrSourceInvalid, sourceDir, err)
	}
	_ = f.Close() //nolint:errcheck // Read-only probe
	return nil
}

// TarGzArchiver is the default Archiver: it walks the source tree into a
// file -> gzip -> tar writer chain, mirroring the directory layout inside
// the archive.
type TarGzArchiver struct {
	// CompressionLevel is the gzip level (gzip.BestSpeed through
	// gzip.BestCompression). Zero means gzip.DefaultCompression.
	CompressionLevel int
}

// NewTarGzArchiver creates a tar.gz archiver with the given gzip level.
func NewTarGzArchiver(level int) *TarGzArchiver {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &TarGzArchiver{CompressionLevel: level}
}

// archiveWriters holds the chained writers for archive creation.
type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

// Close closes all writers in reverse order, returning the first error.
func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// setupWriters opens destPath exclusively and chains gzip and tar writers
// onto it. O_EXCL enforces the no-overwrite contract at the OS level.
func (a *TarGzArchiver) setupWriters(destPath string) (*archiveWriters, error) {
	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // G304: destPath is store-generated
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	aw := &archiveWriters{closers: []io.Closer{outFile}}

	gzWriter, err := gzip.NewWriterLevel(outFile, a.CompressionLevel)
	if err != nil {
		outFile.Close() //nolint:errcheck // Best effort cleanup on error
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	aw.closers = append(aw.closers, gzWriter)

	aw.tarWriter = tar.NewWriter(gzWriter)
	aw.closers = append(aw.closers, aw.tarWriter)

	return aw, nil
}

// Archive packs sourceDir into a tar.gz file at destPath.
func (a *TarGzArchiver) Archive(ctx context.Context, sourceDir, destPath string) (err error) {
	aw, err := a.setupWriters(destPath)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := aw.Close()
		if err == nil {
			err = closeErr
		}
	}()

	return filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return a.addEntry(aw.tarWriter, sourceDir, path, d)
	})
}

// addEntry writes one filesystem entry into the tar stream. Irregular
// entries (sockets, devices) are skipped with a debug log.
func (a *TarGzArchiver) addEntry(tw *tar.Writer, sourceDir, path string, d fs.DirEntry) error {
	rel, err := filepath.Rel(sourceDir, path)
	if err != nil {
		return fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	if rel == "." {
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	switch {
	case info.Mode().IsRegular():
		return addFileEntry(tw, path, rel, info)
	case info.IsDir():
		return addDirEntry(tw, rel, info)
	default:
		logging.Debug().Str("path", path).Msg("Skipping irregular file")
		return nil
	}
}

// addDirEntry writes a directory header to the tar stream.
func addDirEntry(tw *tar.Writer, rel string, info fs.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", rel, err)
	}
	header.Name = rel + "/"
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", rel, err)
	}
	return nil
}

// addFileEntry writes a regular file's header and contents to the tar
// stream.
func addFileEntry(tw *tar.Writer, path, rel string, info fs.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", rel, err)
	}
	header.Name = rel

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", rel, err)
	}

	file, err := os.Open(path) //nolint:gosec // G304: path comes from walking the configured source
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", path, err)
	}
	return nil
}
