package native

/*
#include <stdlib.h>
#include "abi.h"
*/
import "C"

import (
	"sort"
	"strings"
	"unsafe"
)

// cParams marshals a string map into a C or_param array. The returned free
// function releases every allocation; the array is only valid until then,
// matching the ABI rule that param blocks live for the duration of one call.
func cParams(params map[string]string) (C.or_params, func()) {
	n := len(params)
	if n == 0 {
		return C.or_params{ptr: nil, len: 0}, func() {}
	}
	keys := make([]string, 0, n)
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	arr := (*C.or_param)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.or_param{}))))
	slice := unsafe.Slice(arr, n)
	var owned []unsafe.Pointer
	for i, k := range keys {
		kb, kf := cBytes(k)
		vb, vf := cBytes(params[k])
		owned = append(owned, kf, vf)
		slice[i] = C.or_param{key: kb, value: vb}
	}
	free := func() {
		for _, p := range owned {
			C.free(p)
		}
		C.free(unsafe.Pointer(arr))
	}
	return C.or_params{ptr: arr, len: C.uint64_t(n)}, free
}

// cBytes copies s into C memory. The second return is the allocation to free
// (nil for empty strings, where the slice is (null, 0)).
func cBytes(s string) (C.or_bytes, unsafe.Pointer) {
	if s == "" {
		return C.or_bytes{ptr: nil, len: 0}, nil
	}
	p := C.CBytes([]byte(s))
	return C.or_bytes{ptr: (*C.uint8_t)(p), len: C.uint64_t(len(s))}, p
}

// goString copies a borrowed ABI byte slice into a Go string, replacing
// invalid UTF-8 so plugin-supplied text can never corrupt diagnostics.
func goString(b C.or_bytes) string {
	if b.ptr == nil || b.len == 0 {
		return ""
	}
	raw := C.GoBytes(unsafe.Pointer(b.ptr), C.int(b.len))
	return strings.ToValidUTF8(string(raw), "�")
}

// errString interprets an ABI error return: nil pointer means success. The
// message is copied, never freed — the plugin guarantees static storage.
func errString(b C.or_bytes) (string, bool) {
	if b.ptr == nil {
		return "", false
	}
	return goString(b), true
}
