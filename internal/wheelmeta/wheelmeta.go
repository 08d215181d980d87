// Package wheelmeta reads identity and compatibility metadata out of
// built wheels without installing them.
package wheelmeta

import (
	"archive/zip"
	"bufio"
	"errors"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var ErrBadFilename = errors.New("malformed wheel filename")

// Identity and compatibility tags carried in a wheel filename, per the
// binary distribution format:
//
//	{name}-{version}(-{build})?-{python}-{abi}-{platform}.whl
type Info struct {
	Name        string
	Version     string
	Build       string // Optional build number; empty when absent.
	PythonTag   string
	ABITag      string
	PlatformTag string
}

// Parses a wheel filename into its tag components.
//
// Distribution names may themselves contain hyphens only in escaped
// (underscore) form, so splitting on "-" is unambiguous: five fields
// without a build number, six with one.
func ParseFilename(filename string) (Info, error) {
	base := filepath.Base(filename)
	stem, ok := strings.CutSuffix(base, ".whl")
	if !ok {
		return Info{}, pkgerrors.Wrapf(ErrBadFilename, "%q does not end in .whl", base)
	}

	parts := strings.Split(stem, "-")
	switch len(parts) {
	case 5:
		return Info{
			Name:        parts[0],
			Version:     parts[1],
			PythonTag:   parts[2],
			ABITag:      parts[3],
			PlatformTag: parts[4],
		}, nil
	case 6:
		return Info{
			Name:        parts[0],
			Version:     parts[1],
			Build:       parts[2],
			PythonTag:   parts[3],
			ABITag:      parts[4],
			PlatformTag: parts[5],
		}, nil
	default:
		return Info{}, pkgerrors.Wrapf(ErrBadFilename, "%q has %d fields, want 5 or 6", base, len(parts))
	}
}

// Reports whether the wheel installs on any platform and interpreter.
func (i Info) IsUniversal() bool {
	return i.ABITag == "none" && i.PlatformTag == "any"
}

// Reports whether the wheel targets a manylinux platform.
func (i Info) IsManylinux() bool {
	return strings.HasPrefix(i.PlatformTag, "manylinux")
}

// Reports whether the wheel targets a musllinux platform.
func (i Info) IsMusllinux() bool {
	return strings.HasPrefix(i.PlatformTag, "musllinux")
}

// Extracts the Requires-Python constraint from the wheel's METADATA
// entry. Returns "" when the wheel declares no constraint.
func RequiresPython(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", pkgerrors.Errorf("opening %s: %v", filepath.Base(path), err)
	}
	defer r.Close()

	for _, f := range r.File {
		dir, base := filepath.Split(f.Name)
		if base != "METADATA" || !strings.HasSuffix(strings.TrimSuffix(dir, "/"), ".dist-info") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", pkgerrors.Errorf("opening METADATA in %s: %v", filepath.Base(path), err)
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			line := scanner.Text()
			// Headers end at the first blank line; the body is the
			// package description.
			if line == "" {
				break
			}
			if v, ok := strings.CutPrefix(line, "Requires-Python:"); ok {
				return strings.TrimSpace(v), nil
			}
		}
		return "", scanner.Err()
	}

	return "", pkgerrors.Errorf("%s has no METADATA entry", filepath.Base(path))
}
