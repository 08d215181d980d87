package isolation

import (
	"sort"
	"strings"
	"testing"
)

func TestMergeEnvBaseline(t *testing.T) {
	env := MergeEnv(nil)

	want := []string{
		"DEBIAN_FRONTEND=noninteractive",
		"PIP_NO_CACHE_DIR=1",
		"PIP_DISABLE_PIP_VERSION_CHECK=1",
		"PYTHONDONTWRITEBYTECODE=1",
	}
	for _, entry := range want {
		if !contains(env, entry) {
			t.Fatalf("baseline env missing %q in %v", entry, env)
		}
	}
}

func TestMergeEnvUserCannotOverrideBaseline(t *testing.T) {
	env := MergeEnv(map[string]string{
		"PIP_NO_CACHE_DIR": "0",
		"DEBIAN_FRONTEND":  "dialog",
		"MY_FLAG":          "on",
	})

	if !contains(env, "PIP_NO_CACHE_DIR=1") {
		t.Fatalf("baseline PIP_NO_CACHE_DIR was overridden: %v", env)
	}
	if !contains(env, "DEBIAN_FRONTEND=noninteractive") {
		t.Fatalf("baseline DEBIAN_FRONTEND was overridden: %v", env)
	}
	if !contains(env, "MY_FLAG=on") {
		t.Fatalf("user variable missing: %v", env)
	}
}

func TestMergeEnvSorted(t *testing.T) {
	env := MergeEnv(map[string]string{"ZZZ": "1", "AAA": "2"})
	if !sort.StringsAreSorted(env) {
		t.Fatalf("env not sorted: %v", env)
	}
}

func TestMergeEnvDeterministic(t *testing.T) {
	user := map[string]string{"B": "2", "A": "1", "C": "3"}
	first := strings.Join(MergeEnv(user), "\n")
	for i := 0; i < 5; i++ {
		if got := strings.Join(MergeEnv(user), "\n"); got != first {
			t.Fatalf("run %d produced different env:\n%s\nwant:\n%s", i, got, first)
		}
	}
}

func contains(env []string, entry string) bool {
	for _, e := range env {
		if e == entry {
			return true
		}
	}
	return false
}
