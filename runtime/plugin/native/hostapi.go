package native

/*
#include <stdlib.h>
#include "abi.h"
*/
import "C"

import (
	"strings"
	"sync"
	"unsafe"
)

// LocationResolver maps a location prefix and path to an absolute filesystem
// path or URL. Returning false marks the location unresolvable.
type LocationResolver func(prefix, path string) (string, bool)

var (
	resolverMu sync.RWMutex
	resolver   LocationResolver
)

// SetLocationResolver installs the resolver backing the resolve_location
// host callback. The host installs it once at startup, before any plugin
// call can run; the mutex only guards against racy reconfiguration.
func SetLocationResolver(r LocationResolver) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolver = r
}

// orirocksResolveLocation resolves a `<prefix>:<path>` location for a
// plugin. The returned bytes are host-allocated and stay valid until the
// plugin passes them to free_memory. A null return means unresolvable.
//
//export orirocksResolveLocation
func orirocksResolveLocation(location C.or_bytes) C.or_bytes {
	loc := goString(location)
	prefix, path, ok := strings.Cut(loc, ":")
	if !ok {
		return C.or_bytes{ptr: nil, len: 0}
	}
	resolverMu.RLock()
	r := resolver
	resolverMu.RUnlock()
	if r == nil {
		return C.or_bytes{ptr: nil, len: 0}
	}
	resolved, ok := r(prefix, path)
	if !ok || resolved == "" {
		return C.or_bytes{ptr: nil, len: 0}
	}
	p := C.CBytes([]byte(resolved))
	return C.or_bytes{ptr: (*C.uint8_t)(p), len: C.uint64_t(len(resolved))}
}

// orirocksFreeMemory releases memory previously returned to a plugin by a
// host callback.
//
//export orirocksFreeMemory
func orirocksFreeMemory(mem C.or_bytes) {
	if mem.ptr != nil {
		C.free(unsafe.Pointer(mem.ptr))
	}
}
