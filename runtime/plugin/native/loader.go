// Package native loads plugins across the C ABI declared in abi.h and wraps
// them in the host-side provider interfaces.
//
// The wrapper upholds the ABI contracts so the rest of the host never sees
// raw pointers: creates are serialized per plugin, param blocks live only for
// the duration of a call, plugin error strings are copied and never freed,
// and every environment handle must be consumed by exactly one Finish.
package native

/*
#cgo linux LDFLAGS: -ldl

#include <stdlib.h>
#include <dlfcn.h>
#include "abi.h"
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/orirocks/orirocks/core/diag"
	"github.com/orirocks/orirocks/core/invariant"
	"github.com/orirocks/orirocks/runtime/plugin"
)

const (
	initSymbol       = "_orirocks_plugin_init"
	destroySymbol    = "_orirocks_plugin_destroy"
	setHostAPISymbol = "_orirocks_plugin_set_host_api"
)

// Library is a loaded plugin. It owns the dlopen handle and the manifest;
// Environments borrow from it and must be finished before Close.
type Library struct {
	path    string
	name    string
	handle  unsafe.Pointer
	destroy unsafe.Pointer
	mf      *C.or_plugin_manifest

	envs map[string]*C.or_environment_provider
	deps map[string]*C.or_deployment_provider

	// The ABI requires create to never run concurrently within one plugin.
	createMu sync.Mutex

	closeOnce sync.Once
}

// Open loads the shared library at path, runs the init/version handshake,
// and indexes its providers by name. On a version mismatch the manifest is
// destroyed and the library unloaded before the error returns.
func Open(path string) (plugin.Plugin, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, &diag.LibLoadingError{Path: path, Cause: dlError()}
	}

	initFn, err := symbol(handle, initSymbol)
	if err != nil {
		C.dlclose(handle)
		return nil, &diag.LibLoadingError{Path: path, Cause: err}
	}
	destroyFn, err := symbol(handle, destroySymbol)
	if err != nil {
		C.dlclose(handle)
		return nil, &diag.LibLoadingError{Path: path, Cause: err}
	}

	mf := C.or_call_init(initFn)
	if mf == nil {
		C.dlclose(handle)
		return nil, &diag.LibLoadingError{Path: path, Cause: fmt.Errorf("%s returned a null manifest", initSymbol)}
	}
	if uint32(mf.version) != plugin.ABIVersion {
		v := uint32(mf.version)
		C.or_call_destroy(destroyFn, mf)
		C.dlclose(handle)
		return nil, &diag.InvalidVersionError{Expected: plugin.ABIVersion, Actual: v}
	}

	lib := &Library{
		path:    path,
		name:    goString(mf.name),
		handle:  handle,
		destroy: destroyFn,
		mf:      mf,
		envs:    make(map[string]*C.or_environment_provider),
		deps:    make(map[string]*C.or_deployment_provider),
	}
	for i := uint64(0); i < uint64(mf.environments.len); i++ {
		p := (*C.or_environment_provider)(unsafe.Add(unsafe.Pointer(mf.environments.ptr), uintptr(i)*unsafe.Sizeof(C.or_environment_provider{})))
		lib.envs[goString(p.name)] = p
	}
	for i := uint64(0); i < uint64(mf.deployments.len); i++ {
		p := (*C.or_deployment_provider)(unsafe.Add(unsafe.Pointer(mf.deployments.ptr), uintptr(i)*unsafe.Sizeof(C.or_deployment_provider{})))
		lib.deps[goString(p.name)] = p
	}

	// Hand the host API to plugins that opt in.
	if setAPI, err := symbol(handle, setHostAPISymbol); err == nil {
		C.or_call_set_host_api(setAPI, C.or_host_api_instance())
	}
	return lib, nil
}

func symbol(handle unsafe.Pointer, name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.dlerror() // clear
	sym := C.dlsym(handle, cname)
	if sym == nil {
		return nil, fmt.Errorf("symbol `%s`: %v", name, dlError())
	}
	return sym, nil
}

func dlError() error {
	msg := C.dlerror()
	if msg == nil {
		return fmt.Errorf("unknown dl error")
	}
	return fmt.Errorf("%s", C.GoString(msg))
}

// Name returns the plugin's manifest name.
func (l *Library) Name() string { return l.name }

// Environment returns the provider for one environment kind.
func (l *Library) Environment(kind string) (plugin.EnvironmentProvider, bool) {
	p, ok := l.envs[kind]
	if !ok {
		return nil, false
	}
	return &envProvider{lib: l, kind: kind, raw: p}, true
}

// Deployment returns the provider for one deployment kind.
func (l *Library) Deployment(kind string) (plugin.DeploymentProvider, bool) {
	p, ok := l.deps[kind]
	if !ok {
		return nil, false
	}
	return &depProvider{lib: l, kind: kind, raw: p}, true
}

// Close destroys the manifest and unloads the library. Safe to call once;
// environments created from this library must already be finished.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		C.or_call_destroy(l.destroy, l.mf)
		C.dlclose(l.handle)
	})
	return nil
}

type envProvider struct {
	lib  *Library
	kind string
	raw  *C.or_environment_provider
}

func (p *envProvider) Name() string { return p.kind }

// Create invokes the plugin's create under the per-plugin serialization the
// ABI demands and binds the returned opaque handle to an Environment.
func (p *envProvider) Create(params map[string]string) (plugin.Environment, error) {
	cp, free := cParams(params)
	defer free()

	p.lib.createMu.Lock()
	var handle unsafe.Pointer
	errBytes := C.or_call_create(p.raw, cp, &handle)
	p.lib.createMu.Unlock()

	if msg, failed := errString(errBytes); failed {
		return nil, &diag.PluginError{Plugin: p.lib.name, Message: msg}
	}
	env := &Environment{provider: p, handle: handle}
	// Dropping an environment without Finish is a programmer error; surface
	// it loudly rather than leaking the plugin-side resources.
	runtime.SetFinalizer(env, func(e *Environment) {
		if !e.finished {
			invariant.Violated("environment `%s/%s` dropped without finish", p.lib.name, p.kind)
		}
	})
	return env, nil
}

// Environment is a live environment handle. Not safe for concurrent use;
// distinct Environments may be driven from different goroutines.
type Environment struct {
	provider *envProvider
	handle   unsafe.Pointer
	finished bool
}

// Action runs a named step inside the environment.
func (e *Environment) Action(name string, params map[string]string) error {
	invariant.Precondition(!e.finished, "action on finished environment `%s`", e.provider.kind)
	cp, freeParams := cParams(params)
	defer freeParams()
	nameBytes, nameAlloc := cBytes(name)
	defer cFree(nameAlloc)

	errBytes := C.or_call_action(e.provider.raw, e.handle, nameBytes, cp)
	if msg, failed := errString(errBytes); failed {
		return &diag.PluginError{Plugin: e.provider.lib.name, Message: msg}
	}
	return nil
}

// Finish saves the environment's image to path and consumes the handle. The
// receiver is invalid afterwards; a second Finish is a contract violation.
func (e *Environment) Finish(path string) error {
	invariant.Precondition(!e.finished, "double finish on environment `%s`", e.provider.kind)
	pathBytes, pathAlloc := cBytes(path)
	defer cFree(pathAlloc)

	errBytes := C.or_call_finish(e.provider.raw, e.handle, pathBytes)
	e.finished = true
	e.handle = nil
	runtime.SetFinalizer(e, nil)
	if msg, failed := errString(errBytes); failed {
		return &diag.PluginError{Plugin: e.provider.lib.name, Message: msg}
	}
	return nil
}

type depProvider struct {
	lib  *Library
	kind string
	raw  *C.or_deployment_provider
}

func (p *depProvider) Name() string { return p.kind }

// Deploy publishes the artifact at path. Fully concurrent per the ABI.
func (p *depProvider) Deploy(path string, params map[string]string) error {
	cp, freeParams := cParams(params)
	defer freeParams()
	pathBytes, pathAlloc := cBytes(path)
	defer cFree(pathAlloc)

	errBytes := C.or_call_deploy(p.raw, pathBytes, cp)
	if msg, failed := errString(errBytes); failed {
		return &diag.PluginError{Plugin: p.lib.name, Message: msg}
	}
	return nil
}

func cFree(p unsafe.Pointer) {
	if p != nil {
		C.free(p)
	}
}
