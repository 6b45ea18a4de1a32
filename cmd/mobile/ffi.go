//go:build cgo

// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libpawtrail.so (Android) / pawtrail.framework (iOS)
package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"context"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/kimhsiao/pawtrail/core/internal/bridge"
	"github.com/kimhsiao/pawtrail/core/internal/config"
	"github.com/kimhsiao/pawtrail/core/internal/logging"
)

var (
	coreMu  sync.RWMutex
	core    *bridge.Core
	lastErr string
	lastMu  sync.RWMutex
)

//export Init
// Init opens the walk core with data under dataDir. Returns 0 on success and
// -1 on failure; GetLastError then describes the failure. Calling Init again
// while open is a no-op.
func Init(dataDir *C.char) C.int {
	coreMu.Lock()
	defer coreMu.Unlock()

	if core != nil {
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		setLastError(err.Error())
		return -1
	}
	if dir := C.GoString(dataDir); dir != "" {
		cfg.DataDir = dir
	}
	if err := logging.Init(cfg.LogLevel, zap.String("service", "pawtrail-mobile")); err != nil {
		setLastError(err.Error())
		return -1
	}

	opened, err := bridge.Open(context.Background(), cfg)
	if err != nil {
		setLastError(err.Error())
		return -1
	}
	core = opened
	return 0
}

//export Cleanup
// Cleanup stops background work and closes storage. The active walk stays in
// its slot and is offered for recovery after the next Init.
func Cleanup() {
	coreMu.Lock()
	defer coreMu.Unlock()

	if core == nil {
		return
	}
	if err := core.Close(); err != nil {
		setLastError(err.Error())
	}
	core = nil
	_ = logging.Sync()
}

//export GetLastError
// GetLastError returns the last error message.
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()

	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// call runs method through the bridge dispatcher and returns its JSON
// envelope as a C string, or nil when the core is not initialized.
func call(method string, payload []byte) *C.char {
	coreMu.RLock()
	c := core
	coreMu.RUnlock()

	if c == nil {
		setLastError("core not initialized")
		return nil
	}
	return C.CString(string(c.Dispatch(context.Background(), method, payload)))
}

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Required for c-shared build mode; not run when loaded as a library.
}
