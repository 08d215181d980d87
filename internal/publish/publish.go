package publish

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/paths"
	"github.com/wheelforge/wheelforge/internal/validate"
)

var (
	ErrPublish      = errors.New("publish failed")
	ErrUnsafeTarget = errors.New("unsafe destination directory")
)

// Directories that must never be used as a destination, regardless of any
// cleanup logic elsewhere. The guard is load-bearing for [Clean], which
// deletes by glob inside the destination.
var deniedDirs = map[string]struct{}{
	"/":     {},
	"/home": {},
	"/root": {},
	"/tmp":  {},
	"/var":  {},
	"/opt":  {},
	"/usr":  {},
}

// Copies a validated artifact into destDir without ever exposing a
// partially written file.
//
// The bytes are written to a temporary file inside destDir (same
// filesystem, so the rename is atomic), flushed to durable storage, and
// renamed to the final name in one step. If anything fails before the
// rename, the temporary file is removed and the final name never appears.
// A file already present under the final name is refused, never
// overwritten: the destination must be restorable to its pre-build state
// on any later failure, and a rename over existing bytes would lose them.
// [Clean] is the sanctioned way to make room. The archive structure check
// is re-run against the final path before returning, as a last line of
// defense against corruption introduced during the copy.
func Publish(artifactPath, destDir string) (string, error) {
	if err := GuardDir(destDir); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, paths.DefaultDirMode); err != nil {
		return "", pkgerrors.Wrapf(ErrPublish, "creating %s: %v", destDir, err)
	}

	finalPath := filepath.Join(destDir, filepath.Base(artifactPath))

	if _, err := os.Lstat(finalPath); err == nil {
		return "", pkgerrors.Wrapf(ErrPublish, "%s already exists, clean the output directory first", finalPath)
	} else if !os.IsNotExist(err) {
		return "", pkgerrors.Wrapf(ErrPublish, "checking %s: %v", finalPath, err)
	}

	if err := writeAtomic(artifactPath, destDir, finalPath); err != nil {
		return "", err
	}

	if err := validate.Archive(finalPath); err != nil {
		os.Remove(finalPath)
		return "", pkgerrors.Wrapf(ErrPublish, "published file failed re-validation: %v", err)
	}

	slog.Debug("artifact published", "path", finalPath)
	return finalPath, nil
}

// Stages the artifact bytes in a temp file and promotes it with a single
// rename. The temp file is removed on every failure path.
func writeAtomic(artifactPath, destDir, finalPath string) error {
	src, err := os.Open(artifactPath)
	if err != nil {
		return pkgerrors.Wrapf(ErrPublish, "opening artifact %s: %v", artifactPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(destDir, ".wheelforge-*")
	if err != nil {
		return pkgerrors.Wrapf(ErrPublish, "creating temp file in %s: %v", destDir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		cleanup()
		return pkgerrors.Wrapf(ErrPublish, "writing %s: %v", tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return pkgerrors.Wrapf(ErrPublish, "syncing %s: %v", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.Wrapf(ErrPublish, "closing %s: %v", tmpPath, err)
	}

	if err := os.Chmod(tmpPath, paths.DefaultFileMode); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.Wrapf(ErrPublish, "chmod %s: %v", tmpPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return pkgerrors.Wrapf(ErrPublish, "renaming to %s: %v", finalPath, err)
	}

	return nil
}

// Refuses destination directories that resolve to a filesystem root, a
// well-known system directory, or the user's home directory.
func GuardDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return pkgerrors.Wrapf(ErrUnsafeTarget, "resolving %q: %v", dir, err)
	}
	abs = filepath.Clean(abs)

	if _, denied := deniedDirs[abs]; denied {
		return pkgerrors.Wrapf(ErrUnsafeTarget, "refusing to operate on %s", abs)
	}

	if home, err := os.UserHomeDir(); err == nil && abs == filepath.Clean(home) {
		return pkgerrors.Wrapf(ErrUnsafeTarget, "refusing to operate on home directory %s", abs)
	}

	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return pkgerrors.Wrapf(ErrUnsafeTarget, "refusing to operate on filesystem root %s", abs)
	}

	return nil
}
