// Package plugin is the authoring side of the plugin ABI: a plugin author
// implements the typed provider interfaces, registers them on a builder, and
// the package synthesizes the C manifest and the two exported ABI symbols.
//
// Build plugins with `go build -buildmode=c-shared` from a main package that
// registers its providers in init():
//
//	func init() {
//		b := sdk.NewPlugin("qemu")
//		b.AddEnvironment(&vmProvider{})
//		sdk.Register(b)
//	}
//
// Environment handles live on the Go heap behind cgo handles; they are freed
// when the host calls finish. Error strings returned to the host are interned
// for the lifetime of the plugin, satisfying the ABI's static-lifetime rule.
package plugin

/*
#include <stdlib.h>
#include "abi.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"

	hostabi "github.com/orirocks/orirocks/runtime/plugin"
)

// Builder accumulates a plugin's providers before Register.
type Builder struct {
	name string
	envs []hostabi.EnvironmentProvider
	deps []hostabi.DeploymentProvider
}

// NewPlugin starts a builder for a plugin with the given manifest name.
func NewPlugin(name string) *Builder {
	return &Builder{name: name}
}

// AddEnvironment registers an environment provider.
func (b *Builder) AddEnvironment(p hostabi.EnvironmentProvider) *Builder {
	b.envs = append(b.envs, p)
	return b
}

// AddDeployment registers a deployment provider.
func (b *Builder) AddDeployment(p hostabi.DeploymentProvider) *Builder {
	b.deps = append(b.deps, p)
	return b
}

var state struct {
	mu         sync.Mutex
	registered *Builder

	manifest *C.or_plugin_manifest
	allocs   []unsafe.Pointer

	envSlots []hostabi.EnvironmentProvider
	depSlots []hostabi.DeploymentProvider

	errIntern map[string]C.or_bytes

	hostAPI *C.or_host_api
}

// Register installs the builder the exported init symbol will materialize.
// Call it from an init function of the plugin's main package.
func Register(b *Builder) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.registered = b
}

// ResolveLocation asks the host to resolve a `<prefix>:<path>` location.
// Returns false when no host API was handed over or the host cannot resolve.
func ResolveLocation(location string) (string, bool) {
	state.mu.Lock()
	api := state.hostAPI
	state.mu.Unlock()
	if api == nil {
		return "", false
	}
	loc := C.CBytes([]byte(location))
	defer C.free(loc)
	res := C.or_sdk_call_resolve(api, C.or_bytes{ptr: (*C.uint8_t)(loc), len: C.uint64_t(len(location))})
	if res.ptr == nil {
		return "", false
	}
	out := C.GoBytes(unsafe.Pointer(res.ptr), C.int(res.len))
	C.or_sdk_call_free(api, res)
	return string(out), true
}

func alloc(size uintptr) unsafe.Pointer {
	p := C.malloc(C.size_t(size))
	state.allocs = append(state.allocs, p)
	return p
}

func staticBytes(s string) C.or_bytes {
	if s == "" {
		return C.or_bytes{ptr: nil, len: 0}
	}
	p := C.CBytes([]byte(s))
	state.allocs = append(state.allocs, p)
	return C.or_bytes{ptr: (*C.uint8_t)(p), len: C.uint64_t(len(s))}
}

// internErr returns a static-lifetime error slice for msg, reusing prior
// allocations so repeated failures do not grow without bound.
func internErr(msg string) C.or_bytes {
	if msg == "" {
		msg = "unknown plugin error"
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if b, ok := state.errIntern[msg]; ok {
		return b
	}
	p := C.CBytes([]byte(msg))
	state.allocs = append(state.allocs, p)
	b := C.or_bytes{ptr: (*C.uint8_t)(p), len: C.uint64_t(len(msg))}
	state.errIntern[msg] = b
	return b
}

func okBytes() C.or_bytes {
	return C.or_bytes{ptr: nil, len: 0}
}

func goParams(params C.or_params) map[string]string {
	out := make(map[string]string, int(params.len))
	if params.ptr == nil {
		return out
	}
	entries := unsafe.Slice(params.ptr, int(params.len))
	for _, e := range entries {
		out[byteString(e.key)] = byteString(e.value)
	}
	return out
}

func byteString(b C.or_bytes) string {
	if b.ptr == nil || b.len == 0 {
		return ""
	}
	return string(C.GoBytes(unsafe.Pointer(b.ptr), C.int(b.len)))
}

// orirocksSdkInit materializes the registered builder into a C manifest.
// Called exactly once per load through _orirocks_plugin_init.
//
//export orirocksSdkInit
func orirocksSdkInit() *C.or_plugin_manifest {
	state.mu.Lock()
	defer state.mu.Unlock()
	b := state.registered
	if b == nil {
		return nil
	}
	maxSlots := uint64(C.or_sdk_max_slots())
	if uint64(len(b.envs)) > maxSlots || uint64(len(b.deps)) > maxSlots {
		return nil
	}
	state.errIntern = make(map[string]C.or_bytes)
	state.envSlots = append([]hostabi.EnvironmentProvider(nil), b.envs...)
	state.depSlots = append([]hostabi.DeploymentProvider(nil), b.deps...)

	mf := (*C.or_plugin_manifest)(alloc(unsafe.Sizeof(C.or_plugin_manifest{})))
	mf.version = C.uint32_t(hostabi.ABIVersion)
	mf.name = staticBytes(b.name)

	mf.environments.ptr = nil
	mf.environments.len = C.uint64_t(len(b.envs))
	if len(b.envs) > 0 {
		arr := (*C.or_environment_provider)(alloc(uintptr(len(b.envs)) * unsafe.Sizeof(C.or_environment_provider{})))
		providers := unsafe.Slice(arr, len(b.envs))
		for i, p := range b.envs {
			providers[i] = C.or_environment_provider{
				name:   staticBytes(p.Name()),
				create: (*[0]byte)(C.or_sdk_create_slot(C.uint64_t(i))),
				action: (*[0]byte)(C.or_sdk_action_fn()),
				finish: (*[0]byte)(C.or_sdk_finish_fn()),
			}
		}
		mf.environments.ptr = arr
	}

	mf.deployments.ptr = nil
	mf.deployments.len = C.uint64_t(len(b.deps))
	if len(b.deps) > 0 {
		arr := (*C.or_deployment_provider)(alloc(uintptr(len(b.deps)) * unsafe.Sizeof(C.or_deployment_provider{})))
		providers := unsafe.Slice(arr, len(b.deps))
		for i, p := range b.deps {
			providers[i] = C.or_deployment_provider{
				name:   staticBytes(p.Name()),
				deploy: (*[0]byte)(C.or_sdk_deploy_slot(C.uint64_t(i))),
			}
		}
		mf.deployments.ptr = arr
	}

	state.manifest = mf
	return mf
}

// orirocksSdkDestroy frees the manifest and every allocation made for it.
// Called exactly once per load through _orirocks_plugin_destroy.
//
//export orirocksSdkDestroy
func orirocksSdkDestroy(mf *C.or_plugin_manifest) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if mf != state.manifest {
		return
	}
	for _, p := range state.allocs {
		C.free(p)
	}
	state.allocs = nil
	state.manifest = nil
	state.envSlots = nil
	state.depSlots = nil
	state.errIntern = nil
}

//export orirocksSdkSetHostAPI
func orirocksSdkSetHostAPI(api *C.or_host_api) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.hostAPI = api
}

//export orirocksSdkCreate
func orirocksSdkCreate(slot C.uint64_t, params C.or_params, envOut *unsafe.Pointer) C.or_bytes {
	state.mu.Lock()
	if int(slot) >= len(state.envSlots) {
		state.mu.Unlock()
		return internErr("invalid provider slot")
	}
	provider := state.envSlots[slot]
	state.mu.Unlock()

	env, err := provider.Create(goParams(params))
	if err != nil {
		return internErr(err.Error())
	}
	h := cgo.NewHandle(env)
	*envOut = unsafe.Pointer(uintptr(h))
	return okBytes()
}

//export orirocksSdkAction
func orirocksSdkAction(env unsafe.Pointer, name C.or_bytes, params C.or_params) C.or_bytes {
	h := cgo.Handle(uintptr(env))
	instance := h.Value().(hostabi.Environment)
	if err := instance.Action(byteString(name), goParams(params)); err != nil {
		return internErr(err.Error())
	}
	return okBytes()
}

// orirocksSdkFinish consumes the handle: the Go environment object becomes
// collectable once the plugin's Finish returns.
//
//export orirocksSdkFinish
func orirocksSdkFinish(env unsafe.Pointer, path C.or_bytes) C.or_bytes {
	h := cgo.Handle(uintptr(env))
	instance := h.Value().(hostabi.Environment)
	err := instance.Finish(byteString(path))
	h.Delete()
	if err != nil {
		return internErr(err.Error())
	}
	return okBytes()
}

//export orirocksSdkDeploy
func orirocksSdkDeploy(slot C.uint64_t, path C.or_bytes, params C.or_params) C.or_bytes {
	state.mu.Lock()
	if int(slot) >= len(state.depSlots) {
		state.mu.Unlock()
		return internErr("invalid provider slot")
	}
	provider := state.depSlots[slot]
	state.mu.Unlock()

	if err := provider.Deploy(byteString(path), goParams(params)); err != nil {
		return internErr(err.Error())
	}
	return okBytes()
}
