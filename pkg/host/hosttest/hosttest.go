// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2023 The Falco Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package hosttest provides a bridge_host_api backed by an in-process
// managed.Runtime, so that the host adapter and the exported C symbols can
// be tested without a real managed runtime.
//
// Element acquisitions are always served as native copies, since Go memory
// cannot be handed to C code and retained.
package hosttest

/*
#cgo CFLAGS: -I${SRCDIR}/..
#include <stdlib.h>
#include "host_api.h"
*/
import "C"
import (
	"sync"
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/managed"
)

type acquisition struct {
	env   bridge.Env
	array bridge.Ref
	elems []int64
}

var (
	mu           sync.Mutex
	envs         = make(map[unsafe.Pointer]bridge.Env)
	vms          = make(map[unsafe.Pointer]bridge.VM)
	owners       = make(map[unsafe.Pointer]*Host)
	acquisitions = make(map[unsafe.Pointer]*acquisition)
)

// Host is a host function table bound to a managed.Runtime.
type Host struct {
	rt   *managed.Runtime
	api  *C.bridge_host_api
	env  unsafe.Pointer
	keys []unsafe.Pointer
}

// New creates a Host serving rt.
func New(rt *managed.Runtime) *Host {
	h := &Host{rt: rt, api: newAPI()}
	h.env = h.register(rt.Env(), nil)
	return h
}

// API returns the address of the bridge_host_api table.
func (h *Host) API() unsafe.Pointer {
	return unsafe.Pointer(h.api)
}

// Env returns the env pointer of the thread that created the runtime.
func (h *Host) Env() unsafe.Pointer {
	return h.env
}

// Runtime returns the runtime served by h.
func (h *Host) Runtime() *managed.Runtime {
	return h.rt
}

// Close releases the native memory of h. No pointer obtained from h can
// be used afterwards.
func (h *Host) Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, k := range h.keys {
		delete(envs, k)
		delete(vms, k)
		delete(owners, k)
		C.free(k)
	}
	h.keys = nil
	C.free(unsafe.Pointer(h.api))
	h.api = nil
}

// register allocates an opaque native key for either env or vm.
func (h *Host) register(env bridge.Env, vm bridge.VM) unsafe.Pointer {
	k := C.malloc(1)
	mu.Lock()
	defer mu.Unlock()
	if env != nil {
		envs[k] = env
	} else {
		vms[k] = vm
	}
	owners[k] = h
	h.keys = append(h.keys, k)
	return k
}

func lookupEnv(k unsafe.Pointer) (bridge.Env, *Host, bool) {
	mu.Lock()
	defer mu.Unlock()
	e, ok := envs[k]
	return e, owners[k], ok
}

func lookupVM(k unsafe.Pointer) (bridge.VM, *Host, bool) {
	mu.Lock()
	defer mu.Unlock()
	v, ok := vms[k]
	return v, owners[k], ok
}

//export hosttest_get_array_length
func hosttest_get_array_length(env unsafe.Pointer, array C.bridge_ref, n *C.int64_t) C.int32_t {
	e, _, ok := lookupEnv(env)
	if !ok {
		return 1
	}
	l, err := e.GetArrayLength(bridge.Ref(array))
	if err != nil {
		return 1
	}
	*n = C.int64_t(l)
	return 0
}

//export hosttest_get_long_array_elements
func hosttest_get_long_array_elements(env unsafe.Pointer, array C.bridge_ref, mode C.uint32_t, n *C.int64_t, isCopy *C.uint8_t) *C.int64_t {
	e, _, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	elems, _, err := e.GetLongArrayElements(bridge.Ref(array), bridge.AcquireMode(mode))
	if err != nil {
		return nil
	}

	size := C.size_t(len(elems)) * C.size_t(unsafe.Sizeof(C.int64_t(0)))
	if size == 0 {
		size = 1
	}
	p := C.malloc(size)
	copy(unsafe.Slice((*int64)(p), len(elems)), elems)
	mu.Lock()
	acquisitions[p] = &acquisition{env: e, array: bridge.Ref(array), elems: elems}
	mu.Unlock()
	*n = C.int64_t(len(elems))
	*isCopy = 1
	return (*C.int64_t)(p)
}

//export hosttest_release_long_array_elements
func hosttest_release_long_array_elements(env unsafe.Pointer, array C.bridge_ref, elems *C.int64_t, acquired, mode C.uint32_t) {
	p := unsafe.Pointer(elems)
	mu.Lock()
	a, ok := acquisitions[p]
	delete(acquisitions, p)
	mu.Unlock()
	if !ok {
		panic("native-bridge-go/hosttest: release of unknown elements")
	}
	if bridge.ReleaseMode(mode) == bridge.CopyBack {
		copy(a.elems, unsafe.Slice((*int64)(p), len(a.elems)))
	}
	a.env.ReleaseLongArrayElements(a.array, a.elems, bridge.AcquireMode(acquired), bridge.ReleaseMode(mode))
	C.free(p)
}

//export hosttest_get_long_array_region
func hosttest_get_long_array_region(env unsafe.Pointer, array C.bridge_ref, start, n C.int64_t, buf *C.int64_t) C.int32_t {
	e, _, ok := lookupEnv(env)
	if !ok {
		return 1
	}
	tmp := make([]int64, int(n))
	if err := e.GetLongArrayRegion(bridge.Ref(array), int(start), tmp); err != nil {
		return 1
	}
	copy(unsafe.Slice((*int64)(unsafe.Pointer(buf)), int(n)), tmp)
	return 0
}

//export hosttest_get_string_utf
func hosttest_get_string_utf(env unsafe.Pointer, str C.bridge_ref, n *C.int64_t) *C.char {
	e, _, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	b, err := e.GetStringUTF(bridge.Ref(str))
	if err != nil {
		return nil
	}
	p := C.malloc(C.size_t(len(b) + 1))
	buf := unsafe.Slice((*byte)(p), len(b)+1)
	copy(buf, b)
	buf[len(b)] = 0
	*n = C.int64_t(len(b))
	return (*C.char)(p)
}

//export hosttest_release_string_utf
func hosttest_release_string_utf(env unsafe.Pointer, str C.bridge_ref, chars *C.char) {
	C.free(unsafe.Pointer(chars))
}

//export hosttest_new_string_utf
func hosttest_new_string_utf(env unsafe.Pointer, s *C.char, n C.int64_t) C.bridge_ref {
	e, _, ok := lookupEnv(env)
	if !ok {
		return 0
	}
	ref, err := e.NewStringUTF(C.GoStringN(s, C.int(n)))
	if err != nil {
		return 0
	}
	return C.bridge_ref(ref)
}

//export hosttest_new_global_ref
func hosttest_new_global_ref(env unsafe.Pointer, obj C.bridge_ref) C.bridge_ref {
	e, _, ok := lookupEnv(env)
	if !ok {
		return 0
	}
	ref, err := e.NewGlobalRef(bridge.Ref(obj))
	if err != nil {
		return 0
	}
	return C.bridge_ref(ref)
}

//export hosttest_delete_global_ref
func hosttest_delete_global_ref(env unsafe.Pointer, ref C.bridge_ref) {
	if e, _, ok := lookupEnv(env); ok {
		e.DeleteGlobalRef(bridge.Ref(ref))
	}
}

//export hosttest_call_long
func hosttest_call_long(env unsafe.Pointer, obj C.bridge_ref, value C.int64_t) C.int32_t {
	e, _, ok := lookupEnv(env)
	if !ok {
		return 1
	}
	if err := e.CallLong(bridge.Ref(obj), int64(value)); err != nil {
		return 1
	}
	return 0
}

//export hosttest_get_vm
func hosttest_get_vm(env unsafe.Pointer) unsafe.Pointer {
	e, h, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	vm, err := e.VM()
	if err != nil {
		return nil
	}
	return h.register(nil, vm)
}

//export hosttest_attach_current_thread
func hosttest_attach_current_thread(vm unsafe.Pointer) unsafe.Pointer {
	v, h, ok := lookupVM(vm)
	if !ok {
		return nil
	}
	env, err := v.AttachCurrentThread()
	if err != nil {
		return nil
	}
	return h.register(env, nil)
}

//export hosttest_detach_current_thread
func hosttest_detach_current_thread(vm unsafe.Pointer) C.int32_t {
	v, _, ok := lookupVM(vm)
	if !ok {
		return 1
	}
	if err := v.DetachCurrentThread(); err != nil {
		return 1
	}
	return 0
}
