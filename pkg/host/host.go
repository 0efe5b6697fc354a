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

// Package host binds the bridge to a managed runtime reached through a C
// table of function pointers, as defined by host_api.h.
//
// The host passes the address of a bridge_host_api at init time, and an
// opaque env pointer to every call. API wraps the former and Env the
// latter into implementations of bridge.Env and bridge.VM.
package host

/*
#include <stdlib.h>
#include "host_api.h"

static inline int32_t host_get_array_length(const bridge_host_api* a, void* env, bridge_ref array, int64_t* len)
{
	return a->get_array_length(env, array, len);
}

static inline int64_t* host_get_long_array_elements(const bridge_host_api* a, void* env, bridge_ref array, uint32_t mode, int64_t* len, uint8_t* is_copy)
{
	return a->get_long_array_elements(env, array, mode, len, is_copy);
}

static inline void host_release_long_array_elements(const bridge_host_api* a, void* env, bridge_ref array, int64_t* elems, uint32_t acquired, uint32_t mode)
{
	a->release_long_array_elements(env, array, elems, acquired, mode);
}

static inline int32_t host_get_long_array_region(const bridge_host_api* a, void* env, bridge_ref array, int64_t start, int64_t len, int64_t* buf)
{
	return a->get_long_array_region(env, array, start, len, buf);
}

static inline const char* host_get_string_utf(const bridge_host_api* a, void* env, bridge_ref str, int64_t* len)
{
	return a->get_string_utf(env, str, len);
}

static inline void host_release_string_utf(const bridge_host_api* a, void* env, bridge_ref str, const char* chars)
{
	a->release_string_utf(env, str, chars);
}

static inline bridge_ref host_new_string_utf(const bridge_host_api* a, void* env, const char* s, int64_t len)
{
	return a->new_string_utf(env, s, len);
}

static inline bridge_ref host_new_global_ref(const bridge_host_api* a, void* env, bridge_ref obj)
{
	return a->new_global_ref(env, obj);
}

static inline void host_delete_global_ref(const bridge_host_api* a, void* env, bridge_ref ref)
{
	a->delete_global_ref(env, ref);
}

static inline int32_t host_call_long(const bridge_host_api* a, void* env, bridge_ref obj, int64_t value)
{
	return a->call_long(env, obj, value);
}

static inline void* host_get_vm(const bridge_host_api* a, void* env)
{
	return a->get_vm(env);
}

static inline void* host_attach_current_thread(const bridge_host_api* a, void* vm)
{
	return a->attach_current_thread(vm);
}

static inline int32_t host_detach_current_thread(const bridge_host_api* a, void* vm)
{
	return a->detach_current_thread(vm);
}

static inline int host_api_complete(const bridge_host_api* a)
{
	return a->get_array_length
		&& a->get_long_array_elements
		&& a->release_long_array_elements
		&& a->get_long_array_region
		&& a->get_string_utf
		&& a->release_string_utf
		&& a->new_string_utf
		&& a->new_global_ref
		&& a->delete_global_ref
		&& a->call_long
		&& a->get_vm
		&& a->attach_current_thread
		&& a->detach_current_thread;
}
*/
import "C"
import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/ptr"
)

var (
	// ErrNilAPI is returned by NewAPI for a null function table
	ErrNilAPI = errors.New("host api table is null")
	//
	// ErrIncompleteAPI is returned by NewAPI when the function table has
	// unset entries
	ErrIncompleteAPI = errors.New("host api table is incomplete")
)

// API is the function table of a host runtime.
type API struct {
	p *C.bridge_host_api
}

// NewAPI wraps a pointer to a bridge_host_api. The table is owned by the
// host and must outlive the returned API.
func NewAPI(p unsafe.Pointer) (*API, error) {
	if p == nil {
		return nil, ErrNilAPI
	}
	a := (*C.bridge_host_api)(p)
	if C.host_api_complete(a) == 0 {
		return nil, ErrIncompleteAPI
	}
	return &API{p: a}, nil
}

// Env returns the bridge.Env of a host env pointer. The returned Env has
// the same lifetime and thread affinity as the host env.
func (a *API) Env(env unsafe.Pointer) *Env {
	return &Env{api: a, env: env}
}

// Env implements bridge.Env on top of a host env pointer.
type Env struct {
	api *API
	env unsafe.Pointer

	// acquired element pointers, as a stack per array, since slices of
	// length zero do not retain the pointer they were built from
	pending map[bridge.Ref][]*C.int64_t
}

func hostError(fn string, rc C.int32_t) error {
	return fmt.Errorf("host %s failed with code %d", fn, int32(rc))
}

// GetArrayLength implements bridge.Env.
func (e *Env) GetArrayLength(array bridge.Ref) (int, error) {
	var n C.int64_t
	if rc := C.host_get_array_length(e.api.p, e.env, C.bridge_ref(array), &n); rc != 0 {
		return 0, hostError("get_array_length", rc)
	}
	return int(n), nil
}

// GetLongArrayElements implements bridge.Env.
func (e *Env) GetLongArrayElements(array bridge.Ref, mode bridge.AcquireMode) ([]int64, bool, error) {
	var n C.int64_t
	var isCopy C.uint8_t
	p := C.host_get_long_array_elements(e.api.p, e.env, C.bridge_ref(array), C.uint32_t(mode), &n, &isCopy)
	if p == nil {
		return nil, false, fmt.Errorf("host get_long_array_elements returned null for array %d", array)
	}
	if e.pending == nil {
		e.pending = make(map[bridge.Ref][]*C.int64_t)
	}
	e.pending[array] = append(e.pending[array], p)
	return unsafe.Slice((*int64)(unsafe.Pointer(p)), int(n)), isCopy != 0, nil
}

// ReleaseLongArrayElements implements bridge.Env.
func (e *Env) ReleaseLongArrayElements(array bridge.Ref, elems []int64, acquired bridge.AcquireMode, mode bridge.ReleaseMode) {
	stack := e.pending[array]
	if len(stack) == 0 {
		panic(fmt.Sprintf("native-bridge-go/host: release of array %d without acquisition", array))
	}
	p := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(e.pending, array)
	} else {
		e.pending[array] = stack[:len(stack)-1]
	}
	C.host_release_long_array_elements(e.api.p, e.env, C.bridge_ref(array), p, C.uint32_t(acquired), C.uint32_t(mode))
}

// GetLongArrayRegion implements bridge.Env.
func (e *Env) GetLongArrayRegion(array bridge.Ref, start int, buf []int64) error {
	if len(buf) == 0 {
		return nil
	}
	// buf is Go memory, copied through a native buffer
	cBuf := (*C.int64_t)(C.malloc(C.size_t(len(buf)) * C.size_t(unsafe.Sizeof(C.int64_t(0)))))
	defer C.free(unsafe.Pointer(cBuf))
	if rc := C.host_get_long_array_region(e.api.p, e.env, C.bridge_ref(array), C.int64_t(start), C.int64_t(len(buf)), cBuf); rc != 0 {
		return hostError("get_long_array_region", rc)
	}
	copy(buf, unsafe.Slice((*int64)(unsafe.Pointer(cBuf)), len(buf)))
	return nil
}

// GetStringUTF implements bridge.Env.
func (e *Env) GetStringUTF(str bridge.Ref) ([]byte, error) {
	var n C.int64_t
	chars := C.host_get_string_utf(e.api.p, e.env, C.bridge_ref(str), &n)
	if chars == nil {
		return nil, fmt.Errorf("host get_string_utf returned null for string %d", str)
	}
	defer C.host_release_string_utf(e.api.p, e.env, C.bridge_ref(str), chars)
	return C.GoBytes(unsafe.Pointer(chars), C.int(n)), nil
}

// NewStringUTF implements bridge.Env.
func (e *Env) NewStringUTF(s string) (bridge.Ref, error) {
	var buf ptr.StringBuffer
	buf.Write(s)
	defer buf.Free()
	ref := C.host_new_string_utf(e.api.p, e.env, (*C.char)(buf.CharPtr()), C.int64_t(len(s)))
	if ref == 0 {
		return 0, errors.New("host new_string_utf returned null")
	}
	return bridge.Ref(ref), nil
}

// NewGlobalRef implements bridge.Env.
func (e *Env) NewGlobalRef(obj bridge.Ref) (bridge.Ref, error) {
	ref := C.host_new_global_ref(e.api.p, e.env, C.bridge_ref(obj))
	if ref == 0 {
		return 0, fmt.Errorf("host new_global_ref returned null for object %d", obj)
	}
	return bridge.Ref(ref), nil
}

// DeleteGlobalRef implements bridge.Env.
func (e *Env) DeleteGlobalRef(ref bridge.Ref) {
	C.host_delete_global_ref(e.api.p, e.env, C.bridge_ref(ref))
}

// CallLong implements bridge.Env.
func (e *Env) CallLong(obj bridge.Ref, value int64) error {
	if rc := C.host_call_long(e.api.p, e.env, C.bridge_ref(obj), C.int64_t(value)); rc != 0 {
		return hostError("call_long", rc)
	}
	return nil
}

// VM implements bridge.Env.
func (e *Env) VM() (bridge.VM, error) {
	vm := C.host_get_vm(e.api.p, e.env)
	if vm == nil {
		return nil, errors.New("host get_vm returned null")
	}
	return &VM{api: e.api, vm: vm}, nil
}

// VM implements bridge.VM on top of a host vm pointer.
type VM struct {
	api *API
	vm  unsafe.Pointer
}

// AttachCurrentThread implements bridge.VM.
func (v *VM) AttachCurrentThread() (bridge.Env, error) {
	env := C.host_attach_current_thread(v.api.p, v.vm)
	if env == nil {
		return nil, errors.New("host attach_current_thread returned null")
	}
	return v.api.Env(env), nil
}

// DetachCurrentThread implements bridge.VM.
func (v *VM) DetachCurrentThread() error {
	if rc := C.host_detach_current_thread(v.api.p, v.vm); rc != 0 {
		return hostError("detach_current_thread", rc)
	}
	return nil
}

var (
	_ bridge.Env = (*Env)(nil)
	_ bridge.VM  = (*VM)(nil)
)
