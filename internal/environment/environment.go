package environment

import (
	"errors"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Platform families accepted by [Select].
const (
	PlatformAuto      = "auto"
	PlatformManylinux = "manylinux"
	PlatformMusllinux = "musllinux"
)

// Returned when a requested version, platform, architecture, or override
// has no entry in the known-environment table.
var ErrUnsupported = errors.New("unsupported environment")

// A fully resolved execution environment.
//
// Exactly one of Image and Interpreter is set: Image for the containerized
// variant, Interpreter for the ephemeral-venv variant. Specs are only
// constructed by this package, so anything downstream can rely on the
// identifier being a table entry rather than caller input.
type Spec struct {
	Image         string // Pinned container image reference.
	Interpreter   string // Absolute host interpreter path.
	PythonVersion string // Major.minor Python version the spec satisfies.
	Platform      string // Platform family (manylinux or musllinux).
	Arch          string // Canonical architecture (e.g., "x86_64").
	OCIPlatform   string // OCI platform string (e.g., "linux/amd64").
}

// Resolves a containerized build environment.
//
// An explicit override must be a known table key or a known image
// reference; it is returned verbatim, never substituted. Otherwise the
// lookup key is computed from the platform family and the normalized
// architecture, with "auto" (or empty) defaulting to manylinux. For a
// fixed input the returned spec is byte-identical across runs and
// machines.
func Select(version, platform, arch, override string) (Spec, error) {
	short, err := normalizeVersion(version)
	if err != nil {
		return Spec{}, err
	}

	canonArch := NormalizeArch(arch)

	if override != "" {
		image, key, err := resolveOverride(override)
		if err != nil {
			return Spec{}, err
		}
		return specForKey(key, image, short, canonArch), nil
	}

	family := platform
	if family == "" || family == PlatformAuto {
		family = PlatformManylinux
	}

	key, ok := defaultKeys[family]
	if !ok {
		return Spec{}, pkgerrors.Wrapf(ErrUnsupported,
			"unknown platform %q, available: %s", family, strings.Join(platformFamilies(), ", "))
	}

	if canonArch != "x86_64" {
		key = strings.Replace(key, "x86_64", canonArch, 1)
	}

	image, ok := images[key]
	if !ok {
		return Spec{}, pkgerrors.Wrapf(ErrUnsupported,
			"unknown platform/architecture key %q, available: %s", key, strings.Join(Keys(), ", "))
	}

	return specForKey(key, image, short, canonArch), nil
}

// Resolves a host-interpreter environment for the ephemeral-venv variant.
//
// The requested version is checked against the supported set before any
// lookup, so an unsupported version fails here with the supported set in
// the message instead of surfacing a downstream path error.
func SelectInterpreter(version string) (Spec, error) {
	short, err := normalizeVersion(version)
	if err != nil {
		return Spec{}, err
	}

	interpreter, ok := hostPythons[short]
	if !ok {
		return Spec{}, pkgerrors.Wrapf(ErrUnsupported,
			"no interpreter for Python %s, supported versions: %s", version, strings.Join(SupportedVersions(), ", "))
	}

	return Spec{
		Interpreter:   interpreter,
		PythonVersion: short,
	}, nil
}

// Returns the interpreter path inside a manylinux/musllinux image for the
// given Python version.
func ContainerPython(version string) (string, error) {
	short, err := normalizeVersion(version)
	if err != nil {
		return "", err
	}
	return containerPythons[short], nil
}

// Returns the sorted canonical keys of the image table.
func Keys() []string {
	keys := make([]string, 0, len(images))
	for k := range images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Returns the image table as sorted (key, reference) pairs for display.
func Images() [][2]string {
	out := make([][2]string, 0, len(images))
	for _, k := range Keys() {
		out = append(out, [2]string{k, images[k]})
	}
	return out
}

// Returns the sorted set of supported Python versions.
func SupportedVersions() []string {
	versions := make([]string, 0, len(containerPythons))
	for v := range containerPythons {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Maps architecture aliases to the canonical table spelling. Unknown
// values pass through unchanged and fail at table lookup. An empty
// architecture defaults to x86_64.
func NormalizeArch(arch string) string {
	if arch == "" {
		return "x86_64"
	}
	if canonical, ok := archAliases[strings.ToLower(arch)]; ok {
		return canonical
	}
	return arch
}

// Reduces a version string to major.minor and validates it against the
// supported set. "3.11.5" resolves to "3.11"; "3.8" fails.
func normalizeVersion(version string) (string, error) {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" {
		return "", pkgerrors.Wrapf(ErrUnsupported,
			"python version is empty, supported versions: %s", strings.Join(SupportedVersions(), ", "))
	}

	short := trimmed
	if parts := strings.Split(trimmed, "."); len(parts) >= 2 {
		short = parts[0] + "." + parts[1]
	}

	if _, ok := containerPythons[short]; !ok {
		return "", pkgerrors.Wrapf(ErrUnsupported,
			"unsupported Python version %s, supported versions: %s", version, strings.Join(SupportedVersions(), ", "))
	}

	return short, nil
}

// Validates an explicit image override against the table.
//
// The override may be a table key or a full image reference already present
// among the table values. Anything else is rejected, because caller
// controlled strings must never reach a container pull unvalidated.
func resolveOverride(override string) (image, key string, err error) {
	if ref, ok := images[override]; ok {
		return ref, override, nil
	}

	for k, ref := range images {
		if ref == override {
			return ref, k, nil
		}
	}

	return "", "", pkgerrors.Wrapf(ErrUnsupported,
		"unknown image %q, supported keys: %s", override, strings.Join(Keys(), ", "))
}

// Builds a spec from a resolved table key.
func specForKey(key, image, version, arch string) Spec {
	family := PlatformManylinux
	if strings.HasPrefix(key, "musllinux") {
		family = PlatformMusllinux
	}

	// The override path may target a different architecture than the
	// request; trust the key's suffix over the requested arch.
	for canonical := range ociPlatforms {
		if strings.HasSuffix(key, "_"+canonical) {
			arch = canonical
			break
		}
	}

	return Spec{
		Image:         image,
		PythonVersion: version,
		Platform:      family,
		Arch:          arch,
		OCIPlatform:   ociPlatforms[arch],
	}
}

// Returns the sorted platform families with table defaults.
func platformFamilies() []string {
	families := make([]string, 0, len(defaultKeys))
	for f := range defaultKeys {
		families = append(families, f)
	}
	sort.Strings(families)
	return families
}
