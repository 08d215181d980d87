package wheelmeta

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseFilename(t *testing.T) {
	info, err := ParseFilename("numpy-1.26.4-cp312-cp312-manylinux_2_28_x86_64.whl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Name != "numpy" || info.Version != "1.26.4" {
		t.Fatalf("identity = %s %s", info.Name, info.Version)
	}
	if info.PythonTag != "cp312" || info.ABITag != "cp312" || info.PlatformTag != "manylinux_2_28_x86_64" {
		t.Fatalf("tags = %s %s %s", info.PythonTag, info.ABITag, info.PlatformTag)
	}
	if info.Build != "" {
		t.Fatalf("unexpected build number %q", info.Build)
	}
	if !info.IsManylinux() || info.IsMusllinux() || info.IsUniversal() {
		t.Fatal("platform classification wrong")
	}
}

func TestParseFilenameBuildNumber(t *testing.T) {
	info, err := ParseFilename("demo-1.0-2-py3-none-any.whl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Build != "2" {
		t.Fatalf("build = %q, want 2", info.Build)
	}
	if !info.IsUniversal() {
		t.Fatal("py3-none-any should be universal")
	}
}

func TestParseFilenameRejectsMalformed(t *testing.T) {
	for _, name := range []string{
		"demo-1.0.whl",
		"demo-1.0-py3-none-any.tar.gz",
		"demo-1.0-extra-2-py3-none-any-junk.whl",
	} {
		if _, err := ParseFilename(name); !errors.Is(err, ErrBadFilename) {
			t.Errorf("ParseFilename(%q) err = %v, want ErrBadFilename", name, err)
		}
	}
}

func TestParseFilenameStripsDirectory(t *testing.T) {
	info, err := ParseFilename("/some/dist/dir/demo-1.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Name != "demo" {
		t.Fatalf("name = %q", info.Name)
	}
}

func TestRequiresPython(t *testing.T) {
	path := writeWheel(t, "Metadata-Version: 2.1\nName: demo\nRequires-Python: >=3.9\n\nLong description here.\n")
	got, err := RequiresPython(path)
	if err != nil {
		t.Fatalf("RequiresPython: %v", err)
	}
	if got != ">=3.9" {
		t.Fatalf("constraint = %q, want >=3.9", got)
	}
}

func TestRequiresPythonAbsent(t *testing.T) {
	path := writeWheel(t, "Metadata-Version: 2.1\nName: demo\n\nRequires-Python: >=3.9 only in the body\n")
	got, err := RequiresPython(path)
	if err != nil {
		t.Fatalf("RequiresPython: %v", err)
	}
	if got != "" {
		t.Fatalf("constraint = %q, want empty", got)
	}
}

func TestRequiresPythonNoMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo-1.0-py3-none-any.whl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	if _, err := zw.Create("demo/__init__.py"); err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	f.Close()

	if _, err := RequiresPython(path); err == nil {
		t.Fatal("expected error for wheel without METADATA")
	}
}

func writeWheel(t *testing.T, metadata string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo-1.0-py3-none-any.whl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("demo-1.0.dist-info/METADATA")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if _, err := w.Write([]byte(metadata)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}
