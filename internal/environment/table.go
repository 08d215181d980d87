package environment

// Official manylinux and musllinux images published by PyPA.
//
// Keys are canonical "<family>_<arch>" identifiers. Values are
// fully-qualified image references; nothing here is ever built from
// request fields.
var images = map[string]string{
	// manylinux2014 - CentOS 7 based (oldest, most compatible)
	"manylinux2014_x86_64":  "quay.io/pypa/manylinux2014_x86_64",
	"manylinux2014_i686":    "quay.io/pypa/manylinux2014_i686",
	"manylinux2014_aarch64": "quay.io/pypa/manylinux2014_aarch64",

	// manylinux_2_28 - AlmaLinux 8 based (recommended default)
	"manylinux_2_28_x86_64":  "quay.io/pypa/manylinux_2_28_x86_64",
	"manylinux_2_28_aarch64": "quay.io/pypa/manylinux_2_28_aarch64",

	// manylinux_2_34 - AlmaLinux 9 based (newest glibc)
	"manylinux_2_34_x86_64":  "quay.io/pypa/manylinux_2_34_x86_64",
	"manylinux_2_34_aarch64": "quay.io/pypa/manylinux_2_34_aarch64",

	// musllinux - Alpine based (musl libc distros)
	"musllinux_1_1_x86_64":  "quay.io/pypa/musllinux_1_1_x86_64",
	"musllinux_1_1_aarch64": "quay.io/pypa/musllinux_1_1_aarch64",
	"musllinux_1_2_x86_64":  "quay.io/pypa/musllinux_1_2_x86_64",
	"musllinux_1_2_aarch64": "quay.io/pypa/musllinux_1_2_aarch64",
}

// Default image key per platform family, before architecture adjustment.
var defaultKeys = map[string]string{
	PlatformManylinux: "manylinux_2_28_x86_64",
	PlatformMusllinux: "musllinux_1_2_x86_64",
}

// Interpreter paths inside manylinux/musllinux images, keyed by
// major.minor Python version.
var containerPythons = map[string]string{
	"3.9":  "/opt/python/cp39-cp39/bin/python",
	"3.10": "/opt/python/cp310-cp310/bin/python",
	"3.11": "/opt/python/cp311-cp311/bin/python",
	"3.12": "/opt/python/cp312-cp312/bin/python",
	"3.13": "/opt/python/cp313-cp313/bin/python",
}

// Host interpreter paths for the ephemeral-venv variant, keyed by
// major.minor Python version.
var hostPythons = map[string]string{
	"3.9":  "/usr/bin/python3.9",
	"3.10": "/usr/bin/python3.10",
	"3.11": "/usr/bin/python3.11",
	"3.12": "/usr/bin/python3.12",
	"3.13": "/usr/bin/python3.13",
}

// Architecture aliases normalized to the canonical table spelling.
var archAliases = map[string]string{
	"amd64":  "x86_64",
	"x64":    "x86_64",
	"arm64":  "aarch64",
	"x86":    "i686",
	"i386":   "i686",
	"386":    "i686",
}

// OCI platform strings per canonical architecture, used when unpacking
// images for a non-host architecture.
var ociPlatforms = map[string]string{
	"x86_64":  "linux/amd64",
	"aarch64": "linux/arm64",
	"i686":    "linux/386",
}
