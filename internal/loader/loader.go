// Package loader opens reloadable artifacts and resolves their exported table.
//
// The real implementation uses the platform dynamic loader through cgo
// (dl_cgo.go). Builds without cgo get a stub that refuses to load anything
// (dl_stub.go), keeping CGO_ENABLED=0 builds of the rest of the tree working.
package loader

import (
	"errors"
	"fmt"
	"os"

	"livereload/internal/abi"
)

// Library owns one loaded artifact. Closing it invalidates its Table.
type Library interface {
	Path() string
	Table() abi.Table
	Close() error
}

// Opener opens artifacts. DL is the production implementation.
type Opener interface {
	Open(path string) (Library, error)
}

// Kind classifies load failures.
type Kind string

const (
	KindIO          Kind = "io"          // missing, unreadable, permissions
	KindOpen        Kind = "open"        // not a loadable library for this platform
	KindSymbol      Kind = "symbol"      // RELOAD_API not exported
	KindABI         Kind = "abi"         // table header magic/version rejected
	KindUnavailable Kind = "unavailable" // built without dynamic loading support
)

// Error is returned by Open.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("load %s: %s", e.Path, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a load error, or "" if err is not one.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// statArtifact separates "file is not there" from "file is not a library".
func statArtifact(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &Error{Kind: KindIO, Path: path, Err: err}
	}
	if fi.IsDir() {
		return &Error{Kind: KindIO, Path: path, Msg: "is a directory"}
	}
	f, err := os.Open(path)
	if err != nil {
		return &Error{Kind: KindIO, Path: path, Err: err}
	}
	return f.Close()
}

// checkTable validates the header of a freshly resolved table.
func checkTable(path string, t abi.Table) error {
	if err := abi.CheckHeader(t.Header()); err != nil {
		return &Error{Kind: KindABI, Path: path, Err: err}
	}
	return nil
}
