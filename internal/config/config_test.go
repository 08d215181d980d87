package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "containerd:\n  namespace: custom\nbuild:\n  python: \"3.11\"\n  timeout: 5m\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Containerd.Namespace != "custom" {
		t.Fatalf("namespace = %q", cfg.Containerd.Namespace)
	}
	if cfg.Build.Python != "3.11" {
		t.Fatalf("python = %q", cfg.Build.Python)
	}
	if time.Duration(cfg.Build.Timeout) != 5*time.Minute {
		t.Fatalf("timeout = %v", time.Duration(cfg.Build.Timeout))
	}

	// Values the file does not mention keep their defaults.
	if cfg.Containerd.Address != Default().Containerd.Address {
		t.Fatalf("address = %q, want default", cfg.Containerd.Address)
	}
	if cfg.Build.Output != "dist" {
		t.Fatalf("output = %q, want dist", cfg.Build.Output)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("build: [not a mapping"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("build:\n  timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected duration error")
	}
}
