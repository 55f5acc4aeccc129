// Package abi describes the contract shared by the host and every reloadable
// artifact: one exported symbol holding a fixed-layout table of lifecycle
// entry points, prefixed by a small header used to reject incompatible builds.
//
// The C layout of the table is:
//
//	typedef struct lr_api {
//	    uint32_t magic;
//	    uint32_t version;
//	    uint64_t host_signature;
//	    size_t  (*size)(void);
//	    void    (*init)(void *host, void *state);
//	    void    (*reload)(void *host, void *state);
//	    int32_t (*update)(void *host, void *state);
//	    void    (*unload)(void *host, void *state);
//	    void    (*deinit)(void *host, void *state);
//	} lr_api;
//
// Artifacts must keep all mutable data in the state buffer (and the host
// value); anything stored in their own globals is discarded on unload.
package abi

import (
	"fmt"
	"unsafe"
)

// SymbolName is the exported symbol every artifact defines.
const SymbolName = "RELOAD_API"

const (
	// Magic is "LVRL" read as a little-endian uint32.
	Magic uint32 = 0x4C52564C
	// Version is bumped whenever the table layout changes.
	Version uint32 = 1
)

// ShouldQuit is the verdict returned by update.
type ShouldQuit int32

const (
	No  ShouldQuit = 0
	Yes ShouldQuit = 1
)

func (q ShouldQuit) String() string {
	if q == No {
		return "no"
	}
	return "yes"
}

// FromC maps the int32 returned across the ABI; anything non-zero is Yes.
func FromC(v int32) ShouldQuit {
	if v == 0 {
		return No
	}
	return Yes
}

// Header is the fixed prefix of the exported table.
type Header struct {
	Magic         uint32
	Version       uint32
	HostSignature uint64
}

// Table is a view of one loaded artifact's exported entry points. It is only
// valid while the library that produced it is open.
type Table interface {
	Header() Header
	Size() uintptr
	Init(host, state unsafe.Pointer)
	Reload(host, state unsafe.Pointer)
	Update(host, state unsafe.Pointer) ShouldQuit
	Unload(host, state unsafe.Pointer)
	Deinit(host, state unsafe.Pointer)
}

// HeaderError reports a table whose magic or version this host does not speak.
type HeaderError struct {
	Got Header
}

func (e *HeaderError) Error() string {
	if e.Got.Magic != Magic {
		return fmt.Sprintf("abi: bad magic %#08x (want %#08x)", e.Got.Magic, Magic)
	}
	return fmt.Sprintf("abi: unsupported version %d (want %d)", e.Got.Version, Version)
}

// CheckHeader validates magic and version.
func CheckHeader(h Header) error {
	if h.Magic != Magic || h.Version != Version {
		return &HeaderError{Got: h}
	}
	return nil
}

// HostMismatchError reports disagreement on the host layout.
type HostMismatchError struct {
	Want uint64
	Got  uint64
}

func (e *HostMismatchError) Error() string {
	switch {
	case e.Want == 0:
		return fmt.Sprintf("abi: artifact expects a host (signature %#016x) but none is provided", e.Got)
	case e.Got == 0:
		return fmt.Sprintf("abi: host provided (signature %#016x) but artifact is host-less", e.Want)
	default:
		return fmt.Sprintf("abi: host signature mismatch: host %#016x, artifact %#016x", e.Want, e.Got)
	}
}

// CheckHost compares the artifact's declared host signature with the one the
// caller provides. Zero on both sides is the host-less variant.
func CheckHost(h Header, want uint64) error {
	if h.HostSignature != want {
		return &HostMismatchError{Want: want, Got: h.HostSignature}
	}
	return nil
}
