package validate

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/isolation"
)

var (
	ErrUnsafePath      = errors.New("unsafe path")
	ErrUnsafeArchive   = errors.New("unsafe archive")
	ErrMissingMetadata = errors.New("missing required metadata")
	ErrUnknownFormat   = errors.New("unknown archive format")
)

// Checks every mount source and target before it reaches an isolation
// backend.
//
// A source must resolve inside one of the permitted roots, and neither
// side may contain a parent-directory traversal segment. Targets must be
// absolute: a relative target would be interpreted against whatever
// working directory the runtime picks.
func Paths(mounts []isolation.Mount, permittedRoots ...string) error {
	roots := make([]string, 0, len(permittedRoots))
	for _, root := range permittedRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return pkgerrors.Wrapf(ErrUnsafePath, "resolving permitted root %q: %v", root, err)
		}
		roots = append(roots, filepath.Clean(abs))
	}

	for _, m := range mounts {
		if hasTraversal(m.Source) {
			return pkgerrors.Wrapf(ErrUnsafePath, "mount source %q contains a parent-directory segment", m.Source)
		}
		if hasTraversal(m.Target) {
			return pkgerrors.Wrapf(ErrUnsafePath, "mount target %q contains a parent-directory segment", m.Target)
		}
		if !filepath.IsAbs(m.Target) {
			return pkgerrors.Wrapf(ErrUnsafePath, "mount target %q is not absolute", m.Target)
		}

		abs, err := filepath.Abs(m.Source)
		if err != nil {
			return pkgerrors.Wrapf(ErrUnsafePath, "resolving mount source %q: %v", m.Source, err)
		}
		if !insideAny(filepath.Clean(abs), roots) {
			return pkgerrors.Wrapf(ErrUnsafePath, "mount source %q resolves outside permitted roots", m.Source)
		}
	}

	return nil
}

// Inspects a candidate build output archive.
//
// Every entry name is checked: absolute names and names containing a
// parent-directory segment fail with [ErrUnsafeArchive] carrying the exact
// offending entry, which is the signal operators use to find malicious or
// buggy packaging behavior. The archive must also contain the structural
// metadata entries its format requires; a missing entry fails with
// [ErrMissingMetadata] naming it. The file is only read, never modified.
func Archive(path string) error {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".whl") || strings.HasSuffix(name, ".zip"):
		return wheelArchive(path)
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		return sdistArchive(path)
	default:
		return pkgerrors.Wrapf(ErrUnknownFormat, "%q is neither a wheel nor a source archive", name)
	}
}

// Validates a wheel (zip) archive.
//
// Wheels must carry METADATA and WHEEL inside their .dist-info directory;
// installers resolve the package identity from those two entries.
func wheelArchive(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return pkgerrors.Wrapf(ErrUnsafeArchive, "opening %s: %v", filepath.Base(path), err)
	}
	defer r.Close()

	var hasMetadata, hasWheel bool
	for _, f := range r.File {
		if err := entryName(f.Name); err != nil {
			return err
		}
		dir, base := filepath.Split(f.Name)
		if strings.HasSuffix(strings.TrimSuffix(dir, "/"), ".dist-info") {
			switch base {
			case "METADATA":
				hasMetadata = true
			case "WHEEL":
				hasWheel = true
			}
		}
	}

	if !hasMetadata {
		return pkgerrors.Wrapf(ErrMissingMetadata, "%s has no .dist-info/METADATA entry", filepath.Base(path))
	}
	if !hasWheel {
		return pkgerrors.Wrapf(ErrMissingMetadata, "%s has no .dist-info/WHEEL entry", filepath.Base(path))
	}

	return nil
}

// Validates a source distribution (tar.gz) archive.
//
// Sdists must carry a PKG-INFO entry under the top-level project
// directory.
func sdistArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return pkgerrors.Wrapf(ErrUnsafeArchive, "opening %s: %v", filepath.Base(path), err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return pkgerrors.Wrapf(ErrUnsafeArchive, "decompressing %s: %v", filepath.Base(path), err)
	}
	defer gz.Close()

	var hasPkgInfo bool
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return pkgerrors.Wrapf(ErrUnsafeArchive, "reading %s: %v", filepath.Base(path), err)
		}

		if err := entryName(hdr.Name); err != nil {
			return err
		}

		// PKG-INFO lives directly under "<name>-<version>/".
		parts := strings.Split(strings.TrimSuffix(hdr.Name, "/"), "/")
		if len(parts) == 2 && parts[1] == "PKG-INFO" {
			hasPkgInfo = true
		}
	}

	if !hasPkgInfo {
		return pkgerrors.Wrapf(ErrMissingMetadata, "%s has no PKG-INFO entry", filepath.Base(path))
	}

	return nil
}

// Rejects absolute entry names and names with parent-directory segments.
// The offending entry is always included verbatim in the error.
func entryName(name string) error {
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return pkgerrors.Wrapf(ErrUnsafeArchive, "absolute entry name %q", name)
	}
	if hasTraversal(name) {
		return pkgerrors.Wrapf(ErrUnsafeArchive, "parent-directory traversal in entry %q", name)
	}
	return nil
}

// Reports whether any slash-separated segment of the path is "..".
// Checked segment-wise so names like "a..b" pass.
func hasTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// Reports whether path equals or descends from any of the roots.
func insideAny(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
