package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlagsSplitsModeFromSwitches(t *testing.T) {
	o, err := parseFlags([]string{"copy", "--source=/a", "--target=/b,/c"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.mode != "copy" || o.source != "/a" || o.target != "/b,/c" {
		t.Fatalf("parseFlags = %+v", o)
	}
}

func TestParseFlagsDefaultsToCreate(t *testing.T) {
	o, err := parseFlags([]string{"--target=/b"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if o.mode != "create" {
		t.Fatalf("mode = %q, want create", o.mode)
	}
}

func TestBuildConfigParsesSizeSuffixes(t *testing.T) {
	o, err := parseFlags([]string{"create", "--bsize=4K", "--length=1M", "--rate=2G"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, err := buildConfig(o)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.BSize != 4*1024 || cfg.Length != 1<<20 || cfg.Rate != 2<<30 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestSplitTargets(t *testing.T) {
	if got := splitTargets(""); got != nil {
		t.Fatalf("splitTargets(\"\") = %v, want nil", got)
	}
	got := splitTargets("/a,/b:4K,/c")
	want := []string{"/a", "/b:4K", "/c"}
	if len(got) != len(want) {
		t.Fatalf("splitTargets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitTargets = %v, want %v", got, want)
		}
	}
}

// TestCreateThenVerifyEndToEnd drives the binary's own run() entrypoint
// through the create-then-verify scenario from spec.md §8 scenario 1,
// scaled down for test speed.
func TestCreateThenVerifyEndToEnd(t *testing.T) {
	dir := t.TempDir()

	createArgs := []string{
		"create",
		"--target=" + dir,
		"--threads=1",
		"--maxfiles=2",
		"--bsize=1024",
		"--length=4096",
		"--update=1",
	}
	if status := run(createArgs, emptyStdin(t), devNull(t)); status != 0 {
		t.Fatalf("create run() = %d, want 0", status)
	}

	files, err := filepath.Glob(filepath.Join(dir, "Thread0000", "FILE*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("created %d files, want 2", len(files))
	}

	verifyArgs := []string{
		"read",
		"--verify",
		"--target=" + dir,
		"--threads=1",
		"--maxfiles=2",
		"--bsize=1024",
		"--update=1",
	}
	if status := run(verifyArgs, emptyStdin(t), devNull(t)); status != 0 {
		t.Fatalf("verify run() = %d, want 0", status)
	}
}

func emptyStdin(t *testing.T) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	w.Close()
	t.Cleanup(func() { r.Close() })
	return r
}

func devNull(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stdout")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}
