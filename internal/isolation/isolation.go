package isolation

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/wheelforge/wheelforge/internal/environment"
)

var (
	ErrIsolation = errors.New("isolation failed")
	ErrTornDown  = errors.New("context already torn down")
)

// Provisions isolated execution contexts and runs build commands inside
// them.
//
// Both variants satisfy the same contract: Provision creates a context
// owned by exactly one build, Execute runs one command inside it, and
// Teardown releases it. Teardown is idempotent and safe to call even when
// provisioning failed partway. A non-zero exit from Execute is returned as
// data, not as an error; classifying it belongs to the caller.
type Backend interface {
	Name() string
	Provision(ctx context.Context, spec environment.Spec, opts ProvisionOptions) (*Context, error)
	Execute(ctx context.Context, ictx *Context, command []string, limits Limits) (*ExecResult, error)
	Teardown(ictx *Context) error
}

// A host path bound into an isolation context.
type Mount struct {
	Source   string // Host path.
	Target   string // Path inside the context.
	Writable bool   // Mounted read-write when true; read-only otherwise.
}

// Controls context provisioning.
type ProvisionOptions struct {
	SourceDir string            // Already-materialized source tree.
	Mounts    []Mount           // Extra mounts, validated by the caller.
	Env       map[string]string // Request env, merged under the fixed baseline.
	Script    ScriptSpec        // Build steps rendered into the context's build script.
}

// Resource limits applied to a single execution.
type Limits struct {
	MemoryBytes int64   // Memory ceiling in bytes; 0 means unlimited.
	CPUs        float64 // CPU share (e.g., 2.0); 0 means unlimited.
	Network     bool    // Whether the build may reach the network.
}

// Output of a command execution inside a context.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// A live, provisioned execution environment owned by one in-flight build.
//
// Created by a backend at build start, used for exactly one build command,
// and destroyed on every exit path. The uuid-derived ID guarantees that
// concurrent provisions never collide on a staging directory or container
// name.
type Context struct {
	ID         string           // Unique per-provision identifier.
	Backend    string           // Name of the owning backend.
	Spec       environment.Spec // Resolved environment this context satisfies.
	WorkDir    string           // Staging directory on the host.
	ScriptPath string           // Generated build script inside WorkDir (host path).
	DistDir    string           // Raw build output directory inside WorkDir.

	// Path of the build script as seen from inside the context. For the
	// venv variant this equals ScriptPath; for containers it is the
	// script's location under the staging mount.
	ScriptInContext string

	SourceDir string   // Source tree bound into the context.
	Mounts    []Mount  // Extra mounts.
	Env       []string // Fully merged environment.

	torn atomic.Bool

	// Containerized variant bookkeeping: container IDs created by Execute
	// that teardown must confirm are gone.
	containers []string
}

// Marks the context torn down. Returns false if it already was, making
// teardown idempotent.
func (c *Context) beginTeardown() bool {
	return c.torn.CompareAndSwap(false, true)
}

// Reports whether the context has been torn down.
func (c *Context) TornDown() bool {
	return c.torn.Load()
}
