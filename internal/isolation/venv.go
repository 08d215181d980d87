package isolation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/environment"
	"github.com/wheelforge/wheelforge/internal/metrics"
	"github.com/wheelforge/wheelforge/internal/paths"
)

// Ephemeral-venv isolation.
//
// Each build gets a throwaway interpreter environment rooted at a unique
// staging directory. The directory is never reused across builds;
// teardown removes it recursively.
type VenvBackend struct {
	staging string // Parent directory for per-build staging dirs.
}

// Creates a venv backend staging under the default cache location.
func NewVenv() *VenvBackend {
	return &VenvBackend{staging: paths.Staging()}
}

func (b *VenvBackend) Name() string { return "venv" }

// Creates a throwaway virtual environment for one build.
//
// The spec must carry an interpreter path; the selector validates the
// requested version centrally, so the check here is defense-in-depth, not
// the primary contract. The staging directory name embeds a fresh UUID,
// so concurrent provisions never collide.
func (b *VenvBackend) Provision(ctx context.Context, spec environment.Spec, opts ProvisionOptions) (*Context, error) {
	if spec.Interpreter == "" {
		return nil, pkgerrors.Wrap(ErrIsolation, "venv backend requires an interpreter spec")
	}
	if _, err := os.Stat(spec.Interpreter); err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "interpreter %s is not available: %v", spec.Interpreter, err)
	}

	id := uuid.NewString()
	workDir := filepath.Join(b.staging, "venv-"+id)
	if err := os.MkdirAll(workDir, paths.DefaultDirMode); err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "no writable staging space: %v", err)
	}

	metrics.ActiveContexts.Inc()

	ictx := &Context{
		ID:        id,
		Backend:   b.Name(),
		Spec:      spec,
		WorkDir:   workDir,
		DistDir:   filepath.Join(workDir, "dist"),
		SourceDir: opts.SourceDir,
		Mounts:    opts.Mounts,
	}

	if err := b.populate(ctx, ictx, spec, opts); err != nil {
		// Partial provision: release what exists, surface the original error.
		b.Teardown(ictx)
		return nil, err
	}

	slog.Debug("venv provisioned", "id", id, "interpreter", spec.Interpreter)
	return ictx, nil
}

// Creates the venv, dist dir, build script, and merged environment inside
// an already-created staging directory.
func (b *VenvBackend) populate(ctx context.Context, ictx *Context, spec environment.Spec, opts ProvisionOptions) error {
	venvDir := filepath.Join(ictx.WorkDir, "venv")
	cmd := exec.CommandContext(ctx, spec.Interpreter, "-m", "venv", venvDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "creating venv: %v: %s", err, bytes.TrimSpace(out))
	}

	if err := os.MkdirAll(ictx.DistDir, paths.DefaultDirMode); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "creating dist dir: %v", err)
	}

	venvPython := filepath.Join(venvDir, "bin", "python")
	script := renderScript(opts.Script, venvPython, ictx.DistDir, ictx.DistDir)
	ictx.ScriptPath = filepath.Join(ictx.WorkDir, "build.sh")
	ictx.ScriptInContext = ictx.ScriptPath
	if err := os.WriteFile(ictx.ScriptPath, []byte(script), paths.ScriptMode); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "writing build script: %v", err)
	}

	// Venv binaries first on the search path.
	ictx.Env = append(MergeEnv(opts.Env),
		"PATH="+filepath.Join(venvDir, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
		"VIRTUAL_ENV="+venvDir,
	)

	return nil
}

// Runs a command with the venv's binaries first on the search path.
//
// Memory and CPU limits are not enforceable portably for host processes;
// the containerized variant owns resource limiting. A non-zero exit is
// returned as data. Context cancellation kills the process and is
// surfaced as an error for the caller to classify.
func (b *VenvBackend) Execute(ctx context.Context, ictx *Context, command []string, limits Limits) (*ExecResult, error) {
	if ictx.TornDown() {
		return nil, ErrTornDown
	}
	if len(command) == 0 {
		return nil, pkgerrors.Wrap(ErrIsolation, "empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = ictx.SourceDir
	cmd.Env = ictx.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecResult{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		return nil, pkgerrors.Wrapf(ErrIsolation, "starting build command: %v", err)
	}

	return &ExecResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Removes the staging directory. Safe to call repeatedly and after a
// partial provision.
func (b *VenvBackend) Teardown(ictx *Context) error {
	if ictx == nil || !ictx.beginTeardown() {
		return nil
	}

	metrics.ActiveContexts.Dec()

	if ictx.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(ictx.WorkDir); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "removing %s: %v", ictx.WorkDir, err)
	}

	slog.Debug("venv torn down", "id", ictx.ID)
	return nil
}
