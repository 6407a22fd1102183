// Command executorhost is the only process that ever dlopens a compiled
// function's cdylib. It is spawned fresh by internal/sandbox for every
// invocation of a Rust artifact and never runs inside fluxfaasd itself,
// so a crash or memory corruption in the loaded library cannot take
// down the daemon.
//
// Usage: executorhost <path-to-cdylib> <json-input>
package main

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

typedef char* (*flux_execute_fn)(const char*);
typedef void (*flux_free_string_fn)(char*);

static char* call_flux_execute(void* sym, const char* input) {
	flux_execute_fn fn = (flux_execute_fn)sym;
	return fn(input);
}

static void call_flux_free_string(void* sym, char* s) {
	flux_free_string_fn fn = (flux_free_string_fn)sym;
	fn(s);
}
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: executorhost <cdylib-path> <json-input>")
		os.Exit(2)
	}
	libPath, input := os.Args[1], os.Args[2]

	cLibPath := C.CString(libPath)
	defer C.free(unsafe.Pointer(cLibPath))

	handle := C.dlopen(cLibPath, C.RTLD_NOW)
	if handle == nil {
		fmt.Fprintf(os.Stderr, "dlopen failed: %s\n", C.GoString(C.dlerror()))
		os.Exit(1)
	}

	execSym := C.CString("flux_execute")
	defer C.free(unsafe.Pointer(execSym))
	execFn := C.dlsym(handle, execSym)
	if execFn == nil {
		fmt.Fprintf(os.Stderr, "dlsym(flux_execute) failed: %s\n", C.GoString(C.dlerror()))
		os.Exit(1)
	}

	freeSym := C.CString("flux_free_string")
	defer C.free(unsafe.Pointer(freeSym))
	freeFn := C.dlsym(handle, freeSym)
	if freeFn == nil {
		fmt.Fprintf(os.Stderr, "dlsym(flux_free_string) failed: %s\n", C.GoString(C.dlerror()))
		os.Exit(1)
	}

	cInput := C.CString(input)
	defer C.free(unsafe.Pointer(cInput))

	result := C.call_flux_execute(execFn, cInput)
	if result == nil {
		fmt.Fprintln(os.Stderr, "flux_execute returned null")
		os.Exit(1)
	}
	fmt.Println(C.GoString(result))
	C.call_flux_free_string(freeFn, result)
}
