package executor

import (
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/wheelforge/wheelforge/internal/isolation"
	"github.com/wheelforge/wheelforge/internal/wheelmeta"
)

// Isolation variant requested for a build.
type IsolationMode string

const (
	ModeAuto      IsolationMode = "auto"
	ModeVenv      IsolationMode = "venv"
	ModeContainer IsolationMode = "container"
)

// One build request. Immutable once constructed; the executor never
// modifies it.
type BuildRequest struct {
	SourceDir string // Already-materialized source tree (from the source resolver).
	SourceID  string // Content identifier (commit hash, tarball digest) for provenance.

	PythonVersion string        // Target runtime version (e.g., "3.12").
	Platform      string        // Platform family: manylinux, musllinux, or auto.
	Arch          string        // Target architecture (e.g., "x86_64").
	Image         string        // Explicit environment override; must be a known table entry.
	Mode          IsolationMode // Isolation variant.

	OutputDir string // Destination directory for published artifacts.
	Wheel     bool   // Build a wheel.
	Sdist     bool   // Build a source archive.

	Requirements   []string          // Build dependencies installed before the backend runs.
	ConfigSettings map[string]string // Opaque settings passed through to the build backend.
	Repair         bool              // Repair wheels for manylinux compatibility.

	Env    map[string]string // Extra env vars, merged under the fixed baseline.
	Mounts []isolation.Mount // Extra volumes, validated before provisioning.
	Limits isolation.Limits  // Resource limits applied to the build command.

	Timeout time.Duration // Ceiling for the Execute phase; 0 means no limit.
}

// One published (or candidate) build output.
type Artifact struct {
	Path   string        // Final path after publication.
	Kind   string        // "wheel" or "sdist".
	Digest digest.Digest // Content digest of the published bytes.

	Wheel          *wheelmeta.Info // Filename tags; nil for sdists.
	RequiresPython string          // Interpreter constraint from METADATA; empty when undeclared.
}

// Outcome of one build request. Produced exactly once per request;
// immutable after construction.
type Result struct {
	Success   bool          // Whether the build completed and published.
	Artifacts []Artifact    // Published artifacts with content digests.
	Code      Code          // Failure classification; empty on success.
	Message   string        // Human-readable summary.
	Phases    []PhaseRecord // Linear phase sequence, truncated at any failure.
	SourceID  string        // Provenance carried through from the request.
}

// Reports the phase the build failed in, or empty when it succeeded.
func (r *Result) FailedPhase() Phase {
	for _, rec := range r.Phases {
		if !rec.Success {
			return rec.Phase
		}
	}
	return ""
}
