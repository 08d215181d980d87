package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "wheelforge"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Permission mode for generated build scripts.
	ScriptMode os.FileMode = 0755
)

// Path to the directory for per-build staging state (venvs, generated
// build scripts, raw build output before validation).
//
//	Linux:   ~/.cache/wheelforge/staging
//	macOS:   ~/Library/Caches/wheelforge/staging
func Staging() string {
	return filepath.Join(xdg.CacheHome, toolName, "staging")
}

// Path to the directory for cached data shared across builds.
//
//	Linux:   ~/.cache/wheelforge/cache
//	macOS:   ~/Library/Caches/wheelforge/cache
func Cache() string {
	return filepath.Join(xdg.CacheHome, toolName, "cache")
}

// Default path to the configuration file.
//
//	Linux:   ~/.config/wheelforge/config.yaml
//	macOS:   ~/Library/Application Support/wheelforge/config.yaml
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, toolName, "config.yaml")
}
