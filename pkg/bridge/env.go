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

package bridge

// Ref is an opaque reference to an object owned by the managed runtime.
// The zero value is the null reference.
type Ref uint64

// AcquireMode selects how the elements of a managed array are exposed
// to the native side.
type AcquireMode uint32

const (
	// AcquireElements lets the runtime choose between exposing the array
	// memory directly or a temporary copy of it.
	AcquireElements AcquireMode = iota
	//
	// AcquireCritical asks the runtime to expose the array memory without
	// copying. The runtime may suspend its collector until the view is
	// released, so the holder must not call back into the runtime in the
	// meantime.
	AcquireCritical
)

func (m AcquireMode) String() string {
	switch m {
	case AcquireElements:
		return "elements"
	case AcquireCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ReleaseMode tells the runtime what to do with a possibly copied array
// on release.
type ReleaseMode uint32

const (
	// CopyBack writes the content back and frees the copy.
	CopyBack ReleaseMode = iota
	//
	// NoCopyBack frees the copy discarding any change. This is the only
	// mode used by the bridge, as all its views are read-only.
	NoCopyBack
)

// Env is the set of capabilities the managed runtime offers to the native
// side, bound to the thread that is currently running. An Env must only be
// used on the thread it was obtained on, and must never be retained past
// the call it was received in. Use VM to obtain an Env on another thread.
type Env interface {
	// GetArrayLength returns the length of a managed array.
	GetArrayLength(array Ref) (int, error)
	//
	// GetLongArrayElements exposes the elements of a managed int64 array.
	// The returned slice is only valid until the paired call to
	// ReleaseLongArrayElements. isCopy reports whether the runtime handed
	// out a copy instead of the array memory itself.
	GetLongArrayElements(array Ref, mode AcquireMode) (elems []int64, isCopy bool, err error)
	//
	// ReleaseLongArrayElements releases a slice obtained with
	// GetLongArrayElements. It must be called exactly once per acquisition.
	ReleaseLongArrayElements(array Ref, elems []int64, acquired AcquireMode, mode ReleaseMode)
	//
	// GetLongArrayRegion copies len(buf) elements starting at start into buf.
	GetLongArrayRegion(array Ref, start int, buf []int64) error
	//
	// GetStringUTF returns the UTF-8 bytes of a managed string. The bytes
	// are owned by the native side.
	GetStringUTF(str Ref) ([]byte, error)
	//
	// NewStringUTF allocates a new managed string.
	NewStringUTF(s string) (Ref, error)
	//
	// NewGlobalRef pins obj, so that it is not collected until the
	// returned reference is deleted.
	NewGlobalRef(obj Ref) (Ref, error)
	//
	// DeleteGlobalRef unpins an object pinned with NewGlobalRef.
	DeleteGlobalRef(ref Ref)
	//
	// CallLong invokes the single-argument call capability of obj with
	// value, synchronously on the current thread. The return value of the
	// managed callable, if any, is discarded. An error is returned if the
	// managed side raised during the call.
	CallLong(obj Ref, value int64) error
	//
	// VM returns a capability that can be moved to another thread and
	// used there to obtain a thread-local Env.
	VM() (VM, error)
}

// VM is the thread-transferable handle of a managed runtime.
type VM interface {
	// AttachCurrentThread attaches the calling OS thread to the runtime
	// and returns an Env bound to it. The caller must keep running on
	// the same OS thread (see runtime.LockOSThread) until the paired call
	// to DetachCurrentThread.
	AttachCurrentThread() (Env, error)
	//
	// DetachCurrentThread detaches the calling OS thread.
	DetachCurrentThread() error
}
