// Package artifact maps library names to platform file names and scans a
// directory for loadable artifacts.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"livereload/internal/common/fsutil"
	"livereload/pkg/types"
)

// Prefix and Suffix of shared libraries on the running platform.
func Prefix() string { return prefixFor(runtime.GOOS) }
func Suffix() string { return suffixFor(runtime.GOOS) }

func prefixFor(goos string) string {
	if goos == "windows" {
		return ""
	}
	return "lib"
}

func suffixFor(goos string) string {
	switch goos {
	case "windows":
		return ".dll"
	case "darwin", "ios":
		return ".dylib"
	default:
		return ".so"
	}
}

// FileName returns the platform file name for library name, e.g. "game" ->
// "libgame.so" on Linux.
func FileName(name string) string { return Prefix() + name + Suffix() }

// Resolve joins dir with the platform file name of name. dir may start with ~.
func Resolve(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("artifact name is empty")
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("artifact name %q must not contain a path separator", name)
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return filepath.Join(abs, FileName(name)), nil
}

// NameOf strips the platform prefix and suffix from a file name. ok is false
// when file is not a shared library name for this platform.
func NameOf(file string) (name string, ok bool) {
	base := filepath.Base(file)
	if !strings.HasPrefix(base, Prefix()) || !strings.HasSuffix(base, Suffix()) {
		return "", false
	}
	name = strings.TrimSuffix(strings.TrimPrefix(base, Prefix()), Suffix())
	return name, name != ""
}

// List scans dir for shared libraries, sorted by name. Subdirectories and
// other files are skipped.
func List(dir string) ([]types.Artifact, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := NameOf(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while scanning
		}
		out = append(out, types.Artifact{
			Name:        name,
			Path:        filepath.Join(abs, e.Name()),
			SizeBytes:   info.Size(),
			ModTimeUnix: info.ModTime().Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
