package isolation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTeardownIdempotent(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "venv-test")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	b := &VenvBackend{staging: dir}
	ictx := &Context{ID: "test", Backend: "venv", WorkDir: work}
	ictx.torn.Store(false)

	if err := b.Teardown(ictx); err != nil {
		t.Fatalf("first teardown returned error: %v", err)
	}
	if _, err := os.Stat(work); !os.IsNotExist(err) {
		t.Fatalf("work dir still exists after teardown")
	}

	// Second and third calls are no-ops, not errors.
	if err := b.Teardown(ictx); err != nil {
		t.Fatalf("second teardown returned error: %v", err)
	}
	if err := b.Teardown(ictx); err != nil {
		t.Fatalf("third teardown returned error: %v", err)
	}
}

func TestTeardownNilContext(t *testing.T) {
	b := &VenvBackend{staging: t.TempDir()}
	if err := b.Teardown(nil); err != nil {
		t.Fatalf("teardown of nil context returned error: %v", err)
	}
}

func TestExecuteAfterTeardown(t *testing.T) {
	b := &VenvBackend{staging: t.TempDir()}
	ictx := &Context{ID: "test", Backend: "venv"}
	ictx.torn.Store(true)

	if _, err := b.Execute(t.Context(), ictx, []string{"/bin/true"}, Limits{}); err != ErrTornDown {
		t.Fatalf("err = %v, want ErrTornDown", err)
	}
}

func TestContainerdAvailableMissingSocket(t *testing.T) {
	if ContainerdAvailable(filepath.Join(t.TempDir(), "absent.sock")) {
		t.Fatal("ContainerdAvailable reported a missing socket as reachable")
	}

	// A regular file is not a socket.
	path := filepath.Join(t.TempDir(), "not-a-socket")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if ContainerdAvailable(path) {
		t.Fatal("ContainerdAvailable reported a regular file as a socket")
	}
}
