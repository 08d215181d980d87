package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/environment"
	"github.com/wheelforge/wheelforge/internal/isolation"
	"github.com/wheelforge/wheelforge/internal/metrics"
	"github.com/wheelforge/wheelforge/internal/publish"
	"github.com/wheelforge/wheelforge/internal/validate"
	"github.com/wheelforge/wheelforge/internal/wheelmeta"
)

// Captured stderr on a backend failure is truncated to this bound to
// avoid unbounded result growth.
const maxStderrBytes = 16 * 1024

// Filename patterns recognized as candidate build artifacts.
var artifactPatterns = []string{"*.whl", "*.tar.gz", "*.zip"}

// Drives one build request through the linear phase pipeline.
//
// The executor is the only component that knows the full sequence:
// select environment, provision isolation, run the backend build command,
// collect produced files, validate, atomically publish. The isolation
// context is torn down on every exit from Provision onward.
type Executor struct {
	backend isolation.Backend
}

// Creates an executor bound to one isolation backend.
func New(backend isolation.Backend) *Executor {
	return &Executor{backend: backend}
}

// Processes a build request to completion.
//
// Phases run strictly in order with no backward transitions; the first
// failure truncates the sequence and classifies the result. Run never
// returns an error: the outcome, including the failure code and the full
// phase timing record, is always carried on the result.
func (e *Executor) Run(ctx context.Context, req BuildRequest) *Result {
	log := &phaseLog{}
	result := &Result{SourceID: req.SourceID}

	fail := func(code Code, err error) *Result {
		result.Code = code
		result.Phases = log.records
		result.Message = fmt.Sprintf("%s: %v", result.FailedPhase(), err)
		metrics.BuildsTotal.WithLabelValues(string(code)).Inc()
		slog.Error("build failed", "phase", result.FailedPhase(), "code", code, "error", err)
		return result
	}

	if err := log.run(PhaseResolve, func() error {
		return checkSource(req.SourceDir)
	}); err != nil {
		return fail(CodeAnalyzeFailed, err)
	}

	var spec environment.Spec
	if err := log.run(PhaseAnalyze, func() error {
		var err error
		spec, err = e.analyze(req)
		return err
	}); err != nil {
		return fail(classifyAnalyze(err), err)
	}

	var ictx *isolation.Context
	if err := log.run(PhaseProvision, func() error {
		var err error
		ictx, err = e.backend.Provision(ctx, spec, isolation.ProvisionOptions{
			SourceDir: req.SourceDir,
			Mounts:    req.Mounts,
			Env:       req.Env,
			Script: isolation.ScriptSpec{
				Requirements:   req.Requirements,
				Wheel:          req.Wheel,
				Sdist:          req.Sdist,
				ConfigSettings: req.ConfigSettings,
				Repair:         req.Repair,
			},
		})
		return err
	}); err != nil {
		return fail(classifyProvision(err), err)
	}

	// Scoped-resource release for the whole pipeline: the context is
	// destroyed on every exit path from here on. A teardown error is
	// logged and never overrides the primary classification.
	defer func() {
		if err := e.backend.Teardown(ictx); err != nil {
			slog.Warn("teardown failed", "context", ictx.ID, "error", err)
		}
	}()

	var candidates []string
	if err := log.run(PhaseExecute, func() error {
		return e.execute(ctx, req, ictx, &candidates)
	}); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return fail(CodeBuildTimeout, pkgerrors.Errorf("build exceeded timeout of %s", req.Timeout))
		case errors.Is(err, context.Canceled):
			return fail(CodeBackendFailed, errors.New("build cancelled"))
		case errors.Is(err, isolation.ErrIsolation), errors.Is(err, isolation.ErrTornDown):
			return fail(CodeIsolationFailed, err)
		default:
			return fail(CodeBackendFailed, err)
		}
	}

	// Cancellation observed after Execute: no later phase may begin. The
	// failure is recorded on the phase that was prevented from starting,
	// so the failing phase stays identifiable from the result alone.
	if ctx.Err() != nil {
		err := errors.New("build cancelled")
		log.run(PhaseValidate, func() error { return err })
		return fail(CodeBackendFailed, err)
	}

	if err := log.run(PhaseValidate, func() error {
		for _, candidate := range candidates {
			if err := validate.Archive(candidate); err != nil {
				// All candidates for this request are discarded together;
				// none are partially published.
				return err
			}
		}
		return nil
	}); err != nil {
		return fail(classifyValidation(err), err)
	}

	var published []Artifact
	if err := log.run(PhasePublish, func() error {
		var err error
		published, err = e.publishAll(candidates, req.OutputDir)
		return err
	}); err != nil {
		return fail(CodePublishFailed, err)
	}

	result.Success = true
	result.Artifacts = published
	result.Phases = log.records
	result.Message = fmt.Sprintf("published %d artifact(s) to %s", len(published), req.OutputDir)
	metrics.BuildsTotal.WithLabelValues("success").Inc()
	slog.Info("build succeeded", "artifacts", len(published), "output", req.OutputDir)
	return result
}

// Fails fast when the already-resolved source tree is missing or empty.
func checkSource(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return pkgerrors.Errorf("source tree %s does not exist", dir)
	}
	if !info.IsDir() {
		return pkgerrors.Errorf("source %s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return pkgerrors.Errorf("reading source tree %s: %v", dir, err)
	}
	if len(entries) == 0 {
		return pkgerrors.Errorf("source tree %s is empty", dir)
	}
	return nil
}

// Derives the build environment and checks the request's mounts.
//
// Version and platform validation happens here, centrally, so an
// unsupported request fails at Analyze with the supported set in the
// message rather than surfacing a lookup failure from inside a backend.
func (e *Executor) analyze(req BuildRequest) (environment.Spec, error) {
	if !req.Wheel && !req.Sdist {
		return environment.Spec{}, pkgerrors.New("no build products requested")
	}

	if err := validate.Paths(req.Mounts, req.SourceDir, req.OutputDir); err != nil {
		return environment.Spec{}, err
	}

	if e.backend.Name() == "venv" {
		return environment.SelectInterpreter(req.PythonVersion)
	}
	return environment.Select(req.PythonVersion, req.Platform, req.Arch, req.Image)
}

// Runs the backend build command under the caller's timeout and collects
// candidate artifacts on success.
func (e *Executor) execute(ctx context.Context, req BuildRequest, ictx *isolation.Context, candidates *[]string) error {
	execCtx := ctx
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	command := []string{"/bin/sh", ictx.ScriptInContext}
	res, err := e.backend.Execute(execCtx, ictx, command, req.Limits)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return pkgerrors.Errorf("backend exited with code %d: %s", res.ExitCode, truncate(res.Stderr))
	}

	found, err := collectArtifacts(ictx.DistDir)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return pkgerrors.New("backend produced no artifacts")
	}

	*candidates = found
	return nil
}

// Publishes every validated candidate atomically and computes content
// digests over the final bytes.
//
// A failure removes anything already published in this request, so the
// destination directory is left unchanged from its pre-build state.
func (e *Executor) publishAll(candidates []string, outputDir string) ([]Artifact, error) {
	var published []Artifact

	rollback := func() {
		for _, a := range published {
			os.Remove(a.Path)
		}
	}

	for _, candidate := range candidates {
		final, err := publish.Publish(candidate, outputDir)
		if err != nil {
			rollback()
			return nil, err
		}

		d, err := digestFile(final)
		if err != nil {
			os.Remove(final)
			rollback()
			return nil, err
		}

		art := Artifact{Path: final, Kind: artifactKind(final), Digest: d}
		describeWheel(&art)
		published = append(published, art)
		metrics.ArtifactsPublished.WithLabelValues(art.Kind).Inc()
	}

	return published, nil
}

// Attaches compatibility metadata to a published wheel: the filename tags
// and the Requires-Python constraint from its METADATA. Both are
// reporting-only, so a wheel with an unconventional name is published
// with a warning rather than failed.
func describeWheel(art *Artifact) {
	if art.Kind != "wheel" {
		return
	}

	info, err := wheelmeta.ParseFilename(art.Path)
	if err != nil {
		slog.Warn("wheel filename does not parse", "path", art.Path, "error", err)
		return
	}
	art.Wheel = &info

	requires, err := wheelmeta.RequiresPython(art.Path)
	if err != nil {
		slog.Warn("could not read wheel METADATA", "path", art.Path, "error", err)
		return
	}
	art.RequiresPython = requires
}

// Lists candidate artifacts directly inside the raw build output
// directory, sorted for stable ordering.
func collectArtifacts(distDir string) ([]string, error) {
	var found []string
	for _, pattern := range artifactPatterns {
		matches, err := filepath.Glob(filepath.Join(distDir, pattern))
		if err != nil {
			return nil, pkgerrors.Errorf("globbing %s: %v", pattern, err)
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found, nil
}

// Computes the content digest of the published bytes. The digest doubles
// as an integrity report and a cache/dedup key for downstream consumers.
func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pkgerrors.Errorf("opening %s: %v", path, err)
	}
	defer f.Close()

	d, err := digest.FromReader(f)
	if err != nil {
		return "", pkgerrors.Errorf("hashing %s: %v", path, err)
	}
	return d, nil
}

// Reports the artifact kind from its filename.
func artifactKind(path string) string {
	if strings.HasSuffix(path, ".whl") {
		return "wheel"
	}
	return "sdist"
}

// Bounds captured stderr for error messages.
func truncate(s string) string {
	if len(s) <= maxStderrBytes {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-maxStderrBytes:]) + " [truncated]"
}

// Maps Analyze-phase errors onto the failure taxonomy.
func classifyAnalyze(err error) Code {
	switch {
	case errors.Is(err, environment.ErrUnsupported):
		return CodeUnsupportedEnvironment
	case errors.Is(err, validate.ErrUnsafePath):
		return CodeUnsafePath
	default:
		return CodeAnalyzeFailed
	}
}

// Maps Provision-phase errors onto the failure taxonomy. A backend may
// re-check the environment as defense-in-depth; those errors keep their
// UnsupportedEnvironment classification.
func classifyProvision(err error) Code {
	if errors.Is(err, environment.ErrUnsupported) {
		return CodeUnsupportedEnvironment
	}
	return CodeIsolationFailed
}

// Maps Validate-phase errors onto the failure taxonomy.
func classifyValidation(err error) Code {
	switch {
	case errors.Is(err, validate.ErrUnsafeArchive):
		return CodeUnsafeArchive
	case errors.Is(err, validate.ErrMissingMetadata):
		return CodeMissingRequiredMetadata
	default:
		return CodeValidationFailed
	}
}
