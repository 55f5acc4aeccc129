//go:build cgo

package hostcap

/*
#include <stdint.h>
extern void lr_host_log_shim(int32_t level, const char *msg);
*/
import "C"

import "unsafe"

//export lrHostLog
func lrHostLog(level C.int32_t, msg *C.char) {
	emit(int32(level), C.GoString(msg))
}

func logCallback() unsafe.Pointer { return unsafe.Pointer(C.lr_host_log_shim) }
