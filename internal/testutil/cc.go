// Package testutil holds helpers shared by tests across packages: a C
// compiler wrapper for building real artifacts, and in-memory fakes for the
// loader and watch source.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// CC returns the C compiler to use, skipping the test when none is present.
func CC(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping C compilation")
	}
	for _, name := range []string{os.Getenv("CC"), "cc", "gcc", "clang"} {
		if name == "" {
			continue
		}
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no C compiler found")
	return ""
}

// SharedLibName returns the platform file name for a library called name.
func SharedLibName(name string) string {
	if runtime.GOOS == "darwin" {
		return "lib" + name + ".dylib"
	}
	return "lib" + name + ".so"
}

// CompileShared writes sources into dir and links them into out as a shared
// library. Sources ending in .c are compiled; everything else is just written
// (headers).
func CompileShared(t testing.TB, dir, out string, sources map[string]string) string {
	t.Helper()
	cc := CC(t)
	var cfiles []string
	for name, body := range sources {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if filepath.Ext(name) == ".c" {
			cfiles = append(cfiles, p)
		}
	}
	// build next to the target and rename, so a watcher sees one atomic create
	tmp := out + ".tmp"
	args := append([]string{"-shared", "-fPIC", "-I", dir, "-o", tmp}, cfiles...)
	cmd := exec.Command(cc, args...)
	cmd.Dir = dir
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("compile %s: %v: %s", out, err, string(b))
	}
	if err := os.Rename(tmp, out); err != nil {
		t.Fatalf("rename: %v", err)
	}
	return out
}
