package isolation

import (
	"path/filepath"
	"sort"

	"github.com/wheelforge/wheelforge/internal/paths"
)

// Baseline environment applied to every build. User-supplied variables may
// not override these keys; they keep builds non-interactive and
// reproducible.
func baselineEnv() map[string]string {
	return map[string]string{
		"DEBIAN_FRONTEND":                "noninteractive",
		"PIP_NO_CACHE_DIR":               "1",
		"PIP_DISABLE_PIP_VERSION_CHECK":  "1",
		"PIP_NO_INPUT":                   "1",
		"PYTHONDONTWRITEBYTECODE":        "1",
		"PYTHONUNBUFFERED":               "1",
		"XDG_CACHE_HOME":                 filepath.Join(paths.Cache(), "xdg"),
	}
}

// Merges user variables under the fixed baseline and returns a sorted
// "key=value" slice. Baseline keys always win.
func MergeEnv(user map[string]string) []string {
	merged := make(map[string]string, len(user)+8)
	for k, v := range user {
		merged[k] = v
	}
	for k, v := range baselineEnv() {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
