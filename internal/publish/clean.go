package publish

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Artifact filename patterns eligible for cleanup. Nothing else is ever
// deleted.
var cleanPatterns = []string{"*.whl", "*.tar.gz", "*.zip"}

// Deletes stale build artifacts directly inside dir and returns the
// number of files removed.
//
// Only files matching the artifact patterns are considered; subdirectories
// are never entered. The directory guard runs first, so Clean cannot be
// pointed at a dangerous path.
func Clean(dir string) (int, error) {
	if err := GuardDir(dir); err != nil {
		return 0, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrPublish, "output directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return 0, pkgerrors.Wrapf(ErrPublish, "output path is not a directory: %s", dir)
	}

	var deleted int
	var failures []string

	for _, pattern := range cleanPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return deleted, pkgerrors.Wrapf(ErrPublish, "globbing %s: %v", pattern, err)
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil {
				failures = append(failures, match)
				continue
			}
			deleted++
			slog.Debug("stale artifact removed", "path", match)
		}
	}

	if len(failures) > 0 {
		return deleted, pkgerrors.Wrapf(ErrPublish, "failed to delete: %s", strings.Join(failures, ", "))
	}

	return deleted, nil
}
