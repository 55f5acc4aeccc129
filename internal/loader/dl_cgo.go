//go:build cgo && (linux || darwin || freebsd)

package loader

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct lr_api {
	uint32_t magic;
	uint32_t version;
	uint64_t host_signature;
	size_t (*size)(void);
	void (*init)(void *host, void *state);
	void (*reload)(void *host, void *state);
	int32_t (*update)(void *host, void *state);
	void (*unload)(void *host, void *state);
	void (*deinit)(void *host, void *state);
} lr_api;

// dlerror state is per thread, so each helper reads it before returning.
static void *lr_dlopen(const char *path, const char **err) {
	void *h = dlopen(path, RTLD_NOW | RTLD_LOCAL);
	*err = h ? NULL : dlerror();
	return h;
}

static int lr_dlclose(void *h, const char **err) {
	int rc = dlclose(h);
	*err = rc ? dlerror() : NULL;
	return rc;
}

// Clear dlerror, call dlsym, and hand back the error text alongside the symbol.
static void *lr_dlsym(void *h, const char *name, const char **err) {
	dlerror();
	void *p = dlsym(h, name);
	const char *e = dlerror();
	*err = e;
	return e ? NULL : p;
}

static size_t lr_size(const lr_api *a) { return a->size(); }
static void lr_init(const lr_api *a, void *h, void *s) { a->init(h, s); }
static void lr_reload(const lr_api *a, void *h, void *s) { a->reload(h, s); }
static int32_t lr_update(const lr_api *a, void *h, void *s) { return a->update(h, s); }
static void lr_unload(const lr_api *a, void *h, void *s) { a->unload(h, s); }
static void lr_deinit(const lr_api *a, void *h, void *s) { a->deinit(h, s); }

static int lr_complete(const lr_api *a) {
	return a->size && a->init && a->reload && a->update && a->unload && a->deinit;
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"livereload/internal/abi"
)

// DL opens artifacts with dlopen(RTLD_NOW|RTLD_LOCAL).
type DL struct{}

// Open loads path and resolves abi.SymbolName.
func (DL) Open(path string) (Library, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var cerr *C.char
	h := C.lr_dlopen(cpath, &cerr)
	if h == nil {
		return nil, &Error{Kind: KindOpen, Path: path, Msg: errText(cerr, "dlopen failed")}
	}

	csym := C.CString(abi.SymbolName)
	defer C.free(unsafe.Pointer(csym))
	sym := C.lr_dlsym(h, csym, &cerr)
	if sym == nil {
		msg := errText(cerr, "symbol "+abi.SymbolName+" not found")
		C.lr_dlclose(h, &cerr)
		return nil, &Error{Kind: KindSymbol, Path: path, Msg: msg}
	}

	api := (*C.lr_api)(sym)
	lib := &dlLibrary{path: path, handle: h, table: &dlTable{api: api}}
	if err := checkTable(path, lib.table); err != nil {
		_ = lib.Close()
		return nil, err
	}
	if C.lr_complete(api) == 0 {
		_ = lib.Close()
		return nil, &Error{Kind: KindABI, Path: path, Msg: "table has null entries"}
	}
	return lib, nil
}

func errText(e *C.char, fallback string) string {
	if e != nil {
		return C.GoString(e)
	}
	return fallback
}

type dlLibrary struct {
	path   string
	table  *dlTable
	once   sync.Once
	handle unsafe.Pointer
}

func (l *dlLibrary) Path() string     { return l.path }
func (l *dlLibrary) Table() abi.Table { return l.table }

func (l *dlLibrary) Close() error {
	var err error
	l.once.Do(func() {
		l.table.api = nil
		var cerr *C.char
		if C.lr_dlclose(l.handle, &cerr) != 0 {
			err = errors.New("dlclose " + l.path + ": " + errText(cerr, "failed"))
		}
		l.handle = nil
	})
	return err
}

// dlTable forwards to the C function pointers of one lr_api.
type dlTable struct {
	api *C.lr_api
}

func (t *dlTable) Header() abi.Header {
	return abi.Header{
		Magic:         uint32(t.api.magic),
		Version:       uint32(t.api.version),
		HostSignature: uint64(t.api.host_signature),
	}
}

func (t *dlTable) Size() uintptr { return uintptr(C.lr_size(t.api)) }

func (t *dlTable) Init(host, state unsafe.Pointer)   { C.lr_init(t.api, host, state) }
func (t *dlTable) Reload(host, state unsafe.Pointer) { C.lr_reload(t.api, host, state) }
func (t *dlTable) Unload(host, state unsafe.Pointer) { C.lr_unload(t.api, host, state) }
func (t *dlTable) Deinit(host, state unsafe.Pointer) { C.lr_deinit(t.api, host, state) }

func (t *dlTable) Update(host, state unsafe.Pointer) abi.ShouldQuit {
	return abi.FromC(int32(C.lr_update(t.api, host, state)))
}
