package isolation

import (
	"strings"
	"testing"
)

func TestRenderScriptWheel(t *testing.T) {
	script := renderScript(ScriptSpec{Wheel: true, Repair: true}, "/opt/python/cp312-cp312/bin/python", "/tmp/dist", "/output")

	for _, want := range []string{
		"set -ex",
		"/opt/python/cp312-cp312/bin/python -m pip install --upgrade pip build auditwheel",
		"/opt/python/cp312-cp312/bin/python -m build --wheel",
		"--outdir /tmp/dist",
		"auditwheel repair",
		"-w /output/",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}
}

func TestRenderScriptSdistOnly(t *testing.T) {
	script := renderScript(ScriptSpec{Sdist: true}, "python", "/tmp/dist", "/output")

	if !strings.Contains(script, "-m build --sdist") {
		t.Fatalf("script missing sdist flag:\n%s", script)
	}
	if strings.Contains(script, "auditwheel") {
		t.Fatalf("sdist-only script mentions auditwheel:\n%s", script)
	}
	if !strings.Contains(script, "cp /tmp/dist/* /output/") {
		t.Fatalf("script missing artifact copy:\n%s", script)
	}
}

func TestRenderScriptBothProducts(t *testing.T) {
	script := renderScript(ScriptSpec{Wheel: true, Sdist: true}, "python", "/tmp/dist", "/output")

	// Neither --wheel nor --sdist: the backend builds both by default.
	if strings.Contains(script, "--wheel") || strings.Contains(script, "--sdist") {
		t.Fatalf("both-products script restricts the build:\n%s", script)
	}
}

func TestRenderScriptRequirements(t *testing.T) {
	script := renderScript(ScriptSpec{
		Wheel:        true,
		Requirements: []string{"setuptools>=68", "cython"},
	}, "python", "/dist", "/dist")

	if !strings.Contains(script, `python -m pip install "setuptools>=68" "cython"`) {
		t.Fatalf("script missing quoted requirements:\n%s", script)
	}
}

func TestRenderScriptConfigSettingsDeterministic(t *testing.T) {
	spec := ScriptSpec{
		Wheel:          true,
		ConfigSettings: map[string]string{"zflag": "1", "aflag": "2"},
	}

	first := renderScript(spec, "python", "/dist", "/dist")
	if !strings.Contains(first, "--config-setting=aflag=2 --config-setting=zflag=1") {
		t.Fatalf("config settings not sorted:\n%s", first)
	}
	for i := 0; i < 5; i++ {
		if renderScript(spec, "python", "/dist", "/dist") != first {
			t.Fatalf("script rendering is not deterministic")
		}
	}
}

func TestRenderScriptSameDistAndOutput(t *testing.T) {
	script := renderScript(ScriptSpec{Wheel: true}, "python", "/dist", "/dist")

	if strings.Contains(script, "cp /dist/* /dist/") {
		t.Fatalf("script copies a directory onto itself:\n%s", script)
	}
}
