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

package cgo

import (
	"fmt"
	"math/bits"
	"sync"
)

// Handle is an alternative implementation of cgo.Handle introduced by
// Go 1.17, see https://pkg.go.dev/runtime/cgo. It provides a way to pass
// values that contain Go pointers between Go and a foreign host without
// breaking the cgo pointer passing rules. The underlying type of Handle is
// guaranteed to fit in an integer type that is large enough to hold the bit
// pattern of any pointer. The zero value of a Handle is not valid and thus
// is safe to use as a sentinel in C APIs.
//
// Unlike runtime/cgo.Handle, a Handle is not a monotonic counter.
// The low bits of the value select a slot of a fixed-size table, and the
// remaining bits carry the generation of that slot. Each Delete bumps the
// generation, so a handle that has been deleted never resolves again, even
// after its slot has been reused by a newer value. This turns use-after-delete
// and double-delete into detectable conditions (see Load and Take) instead of
// silently resolving to someone else's value. Generations never wrap: a slot
// whose generation is exhausted is retired and never handed out again.
//
// The maximum number of simultaneously valid handles is capped to MaxHandle.
//
// All the functions of this package are safe for concurrent use.
type Handle uintptr

const (
	// indexBits is the number of low bits of a Handle used as slot index
	indexBits = 16

	// MaxHandle is the largest slot index that an Handle can hold, and thus
	// the maximum number of handles that can be valid at the same time
	MaxHandle = 1<<indexBits - 1

	indexMask = MaxHandle

	// maxGeneration uses every bit of an uintptr above the slot index,
	// except the sign bit, so that a Handle is always a positive int64
	maxGeneration = 1<<(bits.UintSize-1-indexBits) - 1
)

type slot struct {
	gen   uintptr
	used  bool
	value interface{}
}

var (
	mu    sync.RWMutex
	slots []slot
	free  []uintptr
)

func init() {
	resetHandles()
}

func makeHandle(idx, gen uintptr) Handle {
	return Handle(gen<<indexBits | idx)
}

func (h Handle) index() uintptr {
	return uintptr(h) & indexMask
}

func (h Handle) generation() uintptr {
	return uintptr(h) >> indexBits
}

// NewHandle returns a handle for a given value.
//
// The handle is valid until the program calls Delete or Take on it. The
// handle uses resources, and this package assumes that foreign code may hold
// on to the handle, so a program must explicitly delete it when the handle
// is no longer needed.
//
// This function panics if there are no more handles available, see TryNewHandle
// for a non-panicking variant.
func NewHandle(v interface{}) Handle {
	h, ok := TryNewHandle(v)
	if !ok {
		panic(fmt.Sprintf("native-bridge-go/cgo: could not obtain a new handle, all %d are in use", MaxHandle))
	}
	return h
}

// TryNewHandle is the same as NewHandle, but returns false instead of
// panicking when the maximum number of valid handles has been reached.
func TryNewHandle(v interface{}) (Handle, bool) {
	mu.Lock()
	defer mu.Unlock()

	var idx uintptr
	if n := len(free); n > 0 {
		idx = free[n-1]
		free = free[:n-1]
	} else {
		if len(slots) > MaxHandle {
			return 0, false
		}
		// note: slot 0 is never handed out, so the first real slot is 1
		slots = append(slots, slot{gen: 1})
		idx = uintptr(len(slots) - 1)
	}

	s := &slots[idx]
	s.used = true
	s.value = v
	return makeHandle(idx, s.gen), true
}

// lookup returns the slot referenced by h, or nil if h is not valid.
// mu must be held by the caller.
func (h Handle) lookup() *slot {
	idx := h.index()
	if idx == 0 || idx >= uintptr(len(slots)) {
		return nil
	}
	s := &slots[idx]
	if !s.used || s.gen != h.generation() {
		return nil
	}
	return s
}

// Load returns the associated Go value for the handle, and false
// if the handle is invalid or has already been deleted.
func (h Handle) Load() (interface{}, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s := h.lookup()
	if s == nil {
		return nil, false
	}
	return s.value, true
}

// Take invalidates the handle and returns the value it was associated with.
// Returns false if the handle is invalid or has already been deleted, in
// which case nothing changes.
func (h Handle) Take() (interface{}, bool) {
	mu.Lock()
	defer mu.Unlock()
	s := h.lookup()
	if s == nil {
		return nil, false
	}
	v := s.value
	s.value = nil
	s.used = false
	if s.gen >= maxGeneration {
		// retired, the slot stays out of the free list forever
		return v, true
	}
	s.gen++
	free = append(free, h.index())
	return v, true
}

// Value returns the associated Go value for a valid handle.
//
// The method panics if the handle is invalid.
func (h Handle) Value() interface{} {
	v, ok := h.Load()
	if !ok {
		panic(fmt.Sprintf("native-bridge-go/cgo: misuse (value) of an invalid Handle %d", h))
	}
	return v
}

// Delete invalidates a handle. This method should only be called once
// the program no longer needs to pass the handle to the host and the host
// no longer has a copy of the handle value.
//
// The method panics if the handle is invalid.
func (h Handle) Delete() {
	if _, ok := h.Take(); !ok {
		panic(fmt.Sprintf("native-bridge-go/cgo: misuse (delete) of an invalid Handle %d", h))
	}
}

// Len returns the number of handles that are currently valid.
func Len() int {
	mu.RLock()
	defer mu.RUnlock()
	n := 0
	for i := 1; i < len(slots); i++ {
		if slots[i].used {
			n++
		}
	}
	return n
}

func resetHandles() {
	mu.Lock()
	defer mu.Unlock()
	slots = make([]slot, 1, 64)
	free = nil
}
