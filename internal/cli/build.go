package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/config"
	"github.com/wheelforge/wheelforge/internal/executor"
	"github.com/wheelforge/wheelforge/internal/isolation"
	"github.com/wheelforge/wheelforge/internal/publish"
)

// Represents the 'wheelforge build' command.
type BuildCmd struct {
	Source string `arg:"" optional:"" default:"." help:"Path to the project source tree." type:"existingdir"`

	Output string `short:"o" help:"Directory to publish artifacts into." placeholder:"DIR"`
	Python string `short:"p" help:"Target Python version (e.g. 3.12)." placeholder:"VERSION"`

	Wheel bool `default:"true" negatable:"" help:"Build a binary wheel."`
	Sdist bool `help:"Build a source archive as well."`
	Clean bool `help:"Remove previously built artifacts from the output directory first."`

	Isolation string `enum:"auto,venv,container" default:"auto" help:"Isolation variant (auto, venv, container)."`
	Platform  string `enum:"auto,manylinux,musllinux" default:"auto" help:"Target platform family."`
	Arch      string `help:"Target architecture (e.g. x86_64, aarch64)." placeholder:"ARCH"`
	Image     string `help:"Explicit build environment, as a table key or image reference." placeholder:"IMAGE"`

	Requirement   []string          `short:"r" help:"Extra build requirement, repeatable." placeholder:"SPEC"`
	ConfigSetting map[string]string `short:"C" help:"Backend config setting (KEY=VALUE), repeatable." placeholder:"KEY=VALUE"`
	Repair        bool              `default:"true" negatable:"" help:"Repair built wheels for broad Linux compatibility."`

	Env       map[string]string `short:"e" help:"Extra environment variable (KEY=VALUE), repeatable." placeholder:"KEY=VALUE"`
	Mount     []string          `help:"Extra mount as SRC:DST[:rw], repeatable." placeholder:"SRC:DST"`
	Timeout   time.Duration     `help:"Build timeout; overrides the configured default." placeholder:"DURATION"`
	Memory    string            `help:"Memory limit for the build (e.g. 2g)." placeholder:"SIZE"`
	CPUs      float64           `help:"CPU limit for the build (e.g. 2.0)."`
	NoNetwork bool              `help:"Deny network access during the build."`
}

// Executes the build command: one full request through the pipeline.
func (c *BuildCmd) Run(ctx context.Context) error {
	cfg, err := config.Load(RootCmd.Config)
	if err != nil {
		return err
	}

	backend, release, err := selectBackend(c.Isolation, cfg)
	if err != nil {
		return err
	}
	defer release()

	req, err := c.request(cfg)
	if err != nil {
		return err
	}

	if c.Clean {
		removed, err := publish.Clean(req.OutputDir)
		if err != nil {
			return err
		}
		if removed > 0 {
			slog.Info("removed stale artifacts", "count", removed, "dir", req.OutputDir)
		}
	}

	res := executor.New(backend).Run(ctx, req)
	for _, art := range res.Artifacts {
		fmt.Printf("%s  %s\n", art.Digest, art.Path)
		if art.Wheel != nil {
			tags := fmt.Sprintf("%s-%s-%s", art.Wheel.PythonTag, art.Wheel.ABITag, art.Wheel.PlatformTag)
			if art.RequiresPython != "" {
				tags += "  requires-python " + art.RequiresPython
			}
			fmt.Printf("    %s\n", tags)
		}
	}
	if !res.Success {
		return pkgerrors.Errorf("%s [%s]", res.Message, res.Code)
	}
	return nil
}

// Assembles the build request from flags with config defaults filling the
// gaps.
func (c *BuildCmd) request(cfg config.Config) (executor.BuildRequest, error) {
	source, err := filepath.Abs(c.Source)
	if err != nil {
		return executor.BuildRequest{}, pkgerrors.Errorf("resolving source %q: %v", c.Source, err)
	}

	output := c.Output
	if output == "" {
		output = cfg.Build.Output
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(source, output)
	}

	python := c.Python
	if python == "" {
		python = cfg.Build.Python
	}

	arch := c.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = time.Duration(cfg.Build.Timeout)
	}

	memory := cfg.Build.MemoryBytes
	if c.Memory != "" {
		memory, err = parseMemory(c.Memory)
		if err != nil {
			return executor.BuildRequest{}, err
		}
	}

	cpus := c.CPUs
	if cpus == 0 {
		cpus = cfg.Build.CPUs
	}

	network := cfg.Build.Network
	if c.NoNetwork {
		network = false
	}

	mounts, err := parseMounts(c.Mount)
	if err != nil {
		return executor.BuildRequest{}, err
	}

	return executor.BuildRequest{
		SourceDir:      source,
		SourceID:       source,
		PythonVersion:  python,
		Platform:       c.Platform,
		Arch:           arch,
		Image:          c.Image,
		OutputDir:      output,
		Wheel:          c.Wheel,
		Sdist:          c.Sdist,
		Requirements:   c.Requirement,
		ConfigSettings: c.ConfigSetting,
		Repair:         c.Repair,
		Env:            c.Env,
		Mounts:         mounts,
		Limits: isolation.Limits{
			MemoryBytes: memory,
			CPUs:        cpus,
			Network:     network,
		},
		Timeout: timeout,
	}, nil
}

// Picks the isolation backend for the requested mode. The release func
// closes any backend connection and is safe to call unconditionally.
func selectBackend(mode string, cfg config.Config) (isolation.Backend, func(), error) {
	noop := func() {}

	switch mode {
	case "venv":
		return isolation.NewVenv(), noop, nil
	case "container":
		backend, err := isolation.NewContainerd(cfg.Containerd.Address, cfg.Containerd.Namespace)
		if err != nil {
			return nil, noop, err
		}
		return backend, func() { backend.Close() }, nil
	case "auto":
		if isolation.ContainerdAvailable(cfg.Containerd.Address) {
			backend, err := isolation.NewContainerd(cfg.Containerd.Address, cfg.Containerd.Namespace)
			if err == nil {
				return backend, func() { backend.Close() }, nil
			}
			slog.Warn("containerd unreachable, falling back to venv isolation", "error", err)
		}
		return isolation.NewVenv(), noop, nil
	default:
		return nil, noop, pkgerrors.Errorf("unknown isolation mode %q", mode)
	}
}

// Parses repeatable SRC:DST[:rw|ro] mount flags.
func parseMounts(raw []string) ([]isolation.Mount, error) {
	mounts := make([]isolation.Mount, 0, len(raw))
	for _, entry := range raw {
		parts := strings.Split(entry, ":")
		m := isolation.Mount{}
		switch len(parts) {
		case 2:
			m.Source, m.Target = parts[0], parts[1]
		case 3:
			m.Source, m.Target = parts[0], parts[1]
			switch parts[2] {
			case "rw":
				m.Writable = true
			case "ro":
			default:
				return nil, pkgerrors.Errorf("mount %q: mode must be rw or ro", entry)
			}
		default:
			return nil, pkgerrors.Errorf("mount %q is not SRC:DST[:rw|ro]", entry)
		}
		if m.Source == "" || m.Target == "" {
			return nil, pkgerrors.Errorf("mount %q has an empty side", entry)
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// Parses a human memory size ("512m", "2g", "1048576") into bytes.
func parseMemory(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "b")

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1<<10, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1<<20, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "g"):
		mult, s = 1<<30, strings.TrimSuffix(s, "g")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, pkgerrors.Errorf("invalid memory size %q", raw)
	}
	return n * mult, nil
}
