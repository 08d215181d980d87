package validate

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wheelforge/wheelforge/internal/isolation"
)

// Writes a zip archive with the given entry names to dir and returns its path.
func writeZip(t *testing.T, dir, name string, entries []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, entry := range entries {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("adding entry %q: %v", entry, err)
		}
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("writing entry %q: %v", entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	return path
}

// Writes a tar.gz archive with the given entry names to dir and returns its path.
func writeTarGz(t *testing.T, dir, name string, entries []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		hdr := &tar.Header{Name: entry, Mode: 0644, Size: 1}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %q: %v", entry, err)
		}
		if _, err := tw.Write([]byte("x")); err != nil {
			t.Fatalf("writing entry %q: %v", entry, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}

	return path
}

func TestArchiveValidWheel(t *testing.T) {
	path := writeZip(t, t.TempDir(), "demo-1.0-py3-none-any.whl", []string{
		"demo/__init__.py",
		"demo-1.0.dist-info/METADATA",
		"demo-1.0.dist-info/WHEEL",
		"demo-1.0.dist-info/RECORD",
	})

	if err := Archive(path); err != nil {
		t.Fatalf("Archive returned error for valid wheel: %v", err)
	}
}

func TestArchiveTraversalEntry(t *testing.T) {
	path := writeZip(t, t.TempDir(), "demo-1.0-py3-none-any.whl", []string{
		"demo-1.0.dist-info/METADATA",
		"demo-1.0.dist-info/WHEEL",
		"../outside.py",
	})

	err := Archive(path)
	if !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("err = %v, want ErrUnsafeArchive", err)
	}
	if !strings.Contains(err.Error(), "../outside.py") {
		t.Fatalf("error %q does not name the offending entry", err)
	}
}

func TestArchiveAbsoluteEntry(t *testing.T) {
	path := writeZip(t, t.TempDir(), "demo-1.0-py3-none-any.whl", []string{
		"demo-1.0.dist-info/METADATA",
		"demo-1.0.dist-info/WHEEL",
		"/etc/passwd",
	})

	err := Archive(path)
	if !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("err = %v, want ErrUnsafeArchive", err)
	}
	if !strings.Contains(err.Error(), "/etc/passwd") {
		t.Fatalf("error %q does not name the offending entry", err)
	}
}

func TestArchiveDottedNameNotTraversal(t *testing.T) {
	path := writeZip(t, t.TempDir(), "demo-1.0-py3-none-any.whl", []string{
		"demo/a..b.py",
		"demo-1.0.dist-info/METADATA",
		"demo-1.0.dist-info/WHEEL",
	})

	if err := Archive(path); err != nil {
		t.Fatalf("Archive rejected benign dotted name: %v", err)
	}
}

func TestArchiveMissingMetadata(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		missing string
	}{
		{
			name:    "no METADATA",
			entries: []string{"demo-1.0.dist-info/WHEEL"},
			missing: "METADATA",
		},
		{
			name:    "no WHEEL",
			entries: []string{"demo-1.0.dist-info/METADATA"},
			missing: "WHEEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeZip(t, t.TempDir(), "demo-1.0-py3-none-any.whl", tt.entries)
			err := Archive(path)
			if !errors.Is(err, ErrMissingMetadata) {
				t.Fatalf("err = %v, want ErrMissingMetadata", err)
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Fatalf("error %q does not name the missing entry %s", err, tt.missing)
			}
		})
	}
}

func TestArchiveValidSdist(t *testing.T) {
	path := writeTarGz(t, t.TempDir(), "demo-1.0.tar.gz", []string{
		"demo-1.0/PKG-INFO",
		"demo-1.0/setup.py",
	})

	if err := Archive(path); err != nil {
		t.Fatalf("Archive returned error for valid sdist: %v", err)
	}
}

func TestArchiveSdistTraversal(t *testing.T) {
	path := writeTarGz(t, t.TempDir(), "demo-1.0.tar.gz", []string{
		"demo-1.0/PKG-INFO",
		"demo-1.0/../../escape",
	})

	err := Archive(path)
	if !errors.Is(err, ErrUnsafeArchive) {
		t.Fatalf("err = %v, want ErrUnsafeArchive", err)
	}
	if !strings.Contains(err.Error(), "demo-1.0/../../escape") {
		t.Fatalf("error %q does not name the offending entry", err)
	}
}

func TestArchiveSdistMissingPkgInfo(t *testing.T) {
	path := writeTarGz(t, t.TempDir(), "demo-1.0.tar.gz", []string{
		"demo-1.0/setup.py",
	})

	err := Archive(path)
	if !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("err = %v, want ErrMissingMetadata", err)
	}
	if !strings.Contains(err.Error(), "PKG-INFO") {
		t.Fatalf("error %q does not name PKG-INFO", err)
	}
}

func TestArchiveUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.rpm")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if err := Archive(path); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestPaths(t *testing.T) {
	root := t.TempDir()

	ok := []isolation.Mount{
		{Source: filepath.Join(root, "src"), Target: "/src", Writable: true},
		{Source: filepath.Join(root, "dist"), Target: "/output", Writable: true},
	}
	if err := Paths(ok, root); err != nil {
		t.Fatalf("Paths rejected valid mounts: %v", err)
	}

	tests := []struct {
		name  string
		mount isolation.Mount
	}{
		{"traversal in source", isolation.Mount{Source: root + "/../escape", Target: "/src"}},
		{"traversal in target", isolation.Mount{Source: filepath.Join(root, "src"), Target: "/src/../etc"}},
		{"relative target", isolation.Mount{Source: filepath.Join(root, "src"), Target: "src"}},
		{"source outside roots", isolation.Mount{Source: "/etc", Target: "/src"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Paths([]isolation.Mount{tt.mount}, root)
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("err = %v, want ErrUnsafePath", err)
			}
		})
	}
}

func TestPathsReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "demo-1.0-py3-none-any.whl", []string{"/abs"})

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	Archive(path)

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("archive was removed by validation: %v", err)
	}
	if after.Size() != before.Size() {
		t.Fatalf("archive size changed from %d to %d", before.Size(), after.Size())
	}
}
