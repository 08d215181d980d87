package isolation

import (
	"fmt"
	"sort"
	"strings"
)

// Build steps rendered into a context's build script.
//
// The spec is backend-agnostic; each variant renders it against its own
// interpreter path and output location. Rendering never interpolates
// request fields into shell syntax beyond quoted requirement strings and
// config settings.
type ScriptSpec struct {
	Requirements   []string          // Build dependencies installed before the backend runs.
	Wheel          bool              // Build a wheel.
	Sdist          bool              // Build a source archive.
	ConfigSettings map[string]string // Opaque settings passed through to the build backend.
	Repair         bool              // Repair wheels for manylinux compatibility (containerized only).
}

// Renders the build script.
//
// The script is written into the context once and invoked as the
// entrypoint, so the exact build steps can be replayed outside the
// sandbox for debugging. python is the interpreter to use, distDir the
// scratch build directory, and outDir the directory the final artifacts
// are copied (or repaired) into.
func renderScript(spec ScriptSpec, python, distDir, outDir string) string {
	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -ex\n\n")

	b.WriteString("# Bootstrap build tooling\n")
	fmt.Fprintf(&b, "%s -m pip install --upgrade pip build", python)
	if spec.Repair {
		b.WriteString(" auditwheel")
	}
	b.WriteString("\n")

	if len(spec.Requirements) > 0 {
		quoted := make([]string, len(spec.Requirements))
		for i, req := range spec.Requirements {
			quoted[i] = fmt.Sprintf("%q", req)
		}
		fmt.Fprintf(&b, "%s -m pip install %s\n", python, strings.Join(quoted, " "))
	}

	b.WriteString("\n# Build the package\n")
	fmt.Fprintf(&b, "%s -m build", python)
	if spec.Wheel && !spec.Sdist {
		b.WriteString(" --wheel")
	} else if spec.Sdist && !spec.Wheel {
		b.WriteString(" --sdist")
	}
	for _, key := range sortedKeys(spec.ConfigSettings) {
		fmt.Fprintf(&b, " --config-setting=%s=%s", key, spec.ConfigSettings[key])
	}
	fmt.Fprintf(&b, " --outdir %s\n", distDir)

	if spec.Repair && spec.Wheel {
		b.WriteString("\n# Repair wheels for manylinux compatibility\n")
		fmt.Fprintf(&b, "for whl in %s/*.whl; do\n", distDir)
		b.WriteString("    if [ -f \"$whl\" ]; then\n")
		fmt.Fprintf(&b, "        auditwheel repair \"$whl\" --plat auto -w %s/ || cp \"$whl\" %s/\n", outDir, outDir)
		b.WriteString("    fi\ndone\n")
		if spec.Sdist {
			fmt.Fprintf(&b, "cp %s/*.tar.gz %s/ 2>/dev/null || true\n", distDir, outDir)
		}
	} else if distDir != outDir {
		b.WriteString("\n# Copy artifacts to output\n")
		fmt.Fprintf(&b, "cp %s/* %s/ 2>/dev/null || true\n", distDir, outDir)
	}

	b.WriteString("\nls -la " + outDir + "/\n")

	return b.String()
}

// Returns the map's keys in sorted order so rendered scripts are
// deterministic.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
