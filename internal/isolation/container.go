package isolation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/environment"
	"github.com/wheelforge/wheelforge/internal/metrics"
	"github.com/wheelforge/wheelforge/internal/paths"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges, allowing builds
	// to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultContainerdNamespace = "wheelforge"

	// Mount targets inside build containers.
	containerSourceDir = "/src"
	containerOutputDir = "/output"
	containerForgeDir  = "/forge"

	// Scratch directory the backend builds into before artifacts are
	// repaired or copied to the output mount.
	containerDistDir = "/tmp/dist"

	// CFS scheduling period used when translating a CPU share into a quota.
	cpuPeriod = 100000
)

// Sequence counter for generating unique container names.
var containerSeq uint64

// Containerized isolation backed by containerd.
//
// Provisioning pulls and unpacks the pinned image and prepares a staging
// directory with the generated build script. No long-lived container is
// created ahead of time: each Execute launches a fresh container instance,
// runs the command as its task, and removes the container on every path
// out, including failure and timeout.
type ContainerBackend struct {
	client  *containerd.Client // Containerd client for image and container operations.
	staging string             // Parent directory for per-build staging dirs.
}

// Creates a container backend connected to the containerd socket at the
// given address. The namespace scopes all operations to this tool.
func NewContainerd(address, namespace string) (*ContainerBackend, error) {
	if address == "" {
		address = DefaultContainerdAddress
	}
	if namespace == "" {
		namespace = DefaultContainerdNamespace
	}

	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "no accessible container runtime at %s: %v", address, err)
	}

	return &ContainerBackend{client: client, staging: paths.Staging()}, nil
}

// Closes the containerd client connection.
func (b *ContainerBackend) Close() error {
	return b.client.Close()
}

func (b *ContainerBackend) Name() string { return "container" }

// Reports whether a containerd socket exists at the address. Used by the
// auto isolation mode; a stat keeps the probe cheap.
func ContainerdAvailable(address string) bool {
	if address == "" {
		address = DefaultContainerdAddress
	}
	info, err := os.Stat(address)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

// Pulls the pinned image and prepares the staging directory for one build.
//
// The build script is written once into the staging dir, which Execute
// mounts read-only at /forge, so the exact build steps are reproducible
// outside the container for debugging.
func (b *ContainerBackend) Provision(ctx context.Context, spec environment.Spec, opts ProvisionOptions) (*Context, error) {
	if spec.Image == "" {
		return nil, pkgerrors.Wrap(ErrIsolation, "container backend requires an image spec")
	}

	python, err := environment.ContainerPython(spec.PythonVersion)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	workDir := filepath.Join(b.staging, "build-"+id)
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
		Env:       MergeEnv(opts.Env),
	}

	if err := b.populate(ctx, ictx, spec, opts, python); err != nil {
		b.Teardown(ictx)
		return nil, err
	}

	slog.Debug("container context provisioned", "id", id, "image", spec.Image)
	return ictx, nil
}

// Pulls the image and writes the dist dir and build script.
func (b *ContainerBackend) populate(ctx context.Context, ictx *Context, spec environment.Spec, opts ProvisionOptions, python string) error {
	p, err := ociPlatform(spec)
	if err != nil {
		return err
	}

	if _, err := b.client.Pull(ctx, spec.Image,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
		containerd.WithPlatformMatcher(platforms.Only(p)),
	); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "pulling %s: %v", spec.Image, err)
	}

	if err := os.MkdirAll(ictx.DistDir, paths.DefaultDirMode); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "creating dist dir: %v", err)
	}

	script := renderScript(opts.Script, python, containerDistDir, containerOutputDir)
	ictx.ScriptPath = filepath.Join(ictx.WorkDir, "build.sh")
	ictx.ScriptInContext = filepath.Join(containerForgeDir, "build.sh")
	if err := os.WriteFile(ictx.ScriptPath, []byte(script), paths.ScriptMode); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "writing build script: %v", err)
	}

	return nil
}

// Launches a fresh container from the context's image and runs the command
// as its task.
//
// The source tree and raw output directory are bind-mounted read-write,
// the staging dir read-only, and extra volumes read-only unless marked
// writable. Resource limits and network mode are applied on the OCI spec
// at launch. The task, container, and snapshot are always removed before
// returning; a cancelled or expired context kills the task and surfaces
// ctx.Err for the caller to classify. A non-zero exit is returned as data.
func (b *ContainerBackend) Execute(ctx context.Context, ictx *Context, command []string, limits Limits) (*ExecResult, error) {
	if ictx.TornDown() {
		return nil, ErrTornDown
	}
	if len(command) == 0 {
		return nil, pkgerrors.Wrap(ErrIsolation, "empty command")
	}

	image, err := b.resolveImage(ctx, ictx.Spec)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("wheelforge-%s-%d", ictx.ID, atomic.AddUint64(&containerSeq, 1))
	ictx.containers = append(ictx.containers, id)

	ctr, err := b.client.NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(b.specOpts(ictx, image, command, limits)...),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "creating container %s: %v", id, err)
	}
	defer func() {
		// The container must never outlive the call, success or failure.
		if err := ctr.Delete(cleanupContext(), containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("failed to delete build container", "id", id, "error", err)
		}
	}()

	var stdout, stderr bytes.Buffer
	task, err := ctr.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "creating task for %s: %v", id, err)
	}

	exitCode, err := awaitTask(ctx, task)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Builds the OCI spec options for a single build container.
func (b *ContainerBackend) specOpts(ictx *Context, image containerd.Image, command []string, limits Limits) []oci.SpecOpts {
	opts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(ictx.Spec.OCIPlatform),
		oci.WithImageConfig(image),
		oci.WithProcessArgs(command...),
		oci.WithProcessCwd(containerSourceDir),
		oci.WithEnv(ictx.Env),
		oci.WithMounts(b.mounts(ictx)),
	}

	if limits.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(limits.MemoryBytes)))
	}
	if limits.CPUs > 0 {
		opts = append(opts, oci.WithCPUCFS(int64(limits.CPUs*cpuPeriod), cpuPeriod))
	}
	if limits.Network {
		// Host networking; the default spec's empty network namespace has
		// no interfaces, which is the "network off" mode.
		opts = append(opts, oci.WithHostNamespace(specs.NetworkNamespace), oci.WithHostResolvconf)
	}

	return opts
}

// Bind mounts for a build container: source and raw output read-write,
// the staging dir (build script) read-only, extra volumes read-only
// unless explicitly writable.
func (b *ContainerBackend) mounts(ictx *Context) []specs.Mount {
	mounts := []specs.Mount{
		{Destination: containerSourceDir, Type: "bind", Source: ictx.SourceDir, Options: []string{"rbind", "rw"}},
		{Destination: containerOutputDir, Type: "bind", Source: ictx.DistDir, Options: []string{"rbind", "rw"}},
		{Destination: containerForgeDir, Type: "bind", Source: ictx.WorkDir, Options: []string{"rbind", "ro"}},
	}

	for _, m := range ictx.Mounts {
		mode := "ro"
		if m.Writable {
			mode = "rw"
		}
		mounts = append(mounts, specs.Mount{
			Destination: m.Target,
			Type:        "bind",
			Source:      m.Source,
			Options:     []string{"rbind", mode},
		})
	}

	return mounts
}

// Looks up the pulled image and selects the manifest for the context's
// platform.
func (b *ContainerBackend) resolveImage(ctx context.Context, spec environment.Spec) (containerd.Image, error) {
	p, err := ociPlatform(spec)
	if err != nil {
		return nil, err
	}

	img, err := b.client.ImageService().Get(ctx, spec.Image)
	if err != nil {
		return nil, pkgerrors.Wrapf(ErrIsolation, "image %s not present: %v", spec.Image, err)
	}

	return containerd.NewImageWithPlatform(b.client, img, platforms.Only(p)), nil
}

// Parses the environment's OCI platform string ("linux/amd64") into a
// platform descriptor for pull and manifest selection.
func ociPlatform(spec environment.Spec) (ocispec.Platform, error) {
	p, err := platforms.Parse(spec.OCIPlatform)
	if err != nil {
		return ocispec.Platform{}, pkgerrors.Wrapf(ErrIsolation, "parsing platform %q: %v", spec.OCIPlatform, err)
	}
	return p, nil
}

// Starts the task, waits for it to exit, and returns the exit code.
//
// When ctx is cancelled or times out the task is killed with SIGKILL and
// ctx's error is returned so the caller can classify the interruption.
// The task is always deleted before returning.
func awaitTask(ctx context.Context, task containerd.Task) (int, error) {
	statusC, err := task.Wait(ctx)
	if err != nil {
		task.Delete(cleanupContext())
		return 0, pkgerrors.Wrapf(ErrIsolation, "waiting on task: %v", err)
	}

	if err := task.Start(ctx); err != nil {
		task.Delete(cleanupContext())
		return 0, pkgerrors.Wrapf(ErrIsolation, "starting task: %v", err)
	}

	var status containerd.ExitStatus
	select {
	case status = <-statusC:
	case <-ctx.Done():
		task.Kill(cleanupContext(), syscall.SIGKILL)
		<-statusC
		task.Delete(cleanupContext(), containerd.WithProcessKill)
		return 0, ctx.Err()
	}

	if _, err := task.Delete(cleanupContext()); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete task", "error", err)
	}

	code, _, err := status.Result()
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrIsolation, "reading exit status: %v", err)
	}

	return int(code), nil
}

// Removes any containers left from Execute and deletes the staging
// directory. Safe to call repeatedly and after a partial provision.
func (b *ContainerBackend) Teardown(ictx *Context) error {
	if ictx == nil || !ictx.beginTeardown() {
		return nil
	}

	metrics.ActiveContexts.Dec()

	ctx := cleanupContext()
	for _, id := range ictx.containers {
		b.removeContainer(ctx, id)
	}

	if ictx.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(ictx.WorkDir); err != nil {
		return pkgerrors.Wrapf(ErrIsolation, "removing %s: %v", ictx.WorkDir, err)
	}

	slog.Debug("container context torn down", "id", ictx.ID)
	return nil
}

// Removes a container and its task if either still exists. Execute
// normally removes its own container; this is the backstop that
// guarantees no orphans after a timeout or crash inside Execute.
func (b *ContainerBackend) removeContainer(ctx context.Context, id string) {
	ctr, err := b.client.LoadContainer(ctx, id)
	if err != nil {
		return
	}
	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to remove stale container", "id", id, "error", err)
	}
}

// Context used for cleanup operations that must run even when the build's
// own context is cancelled.
func cleanupContext() context.Context {
	return context.Background()
}
