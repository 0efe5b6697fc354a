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

// Package ptr provides helpers to move text across the C boundary without
// allocating on every call.
package ptr

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"
)

const cStringNullTerminator = byte(0)

// GoString converts a C string to a Go string without copying it. The
// returned string aliases the C memory, so it is only valid for as long as
// the C memory is, and reflects any change made to it.
// A nil pointer converts to the empty string.
func GoString(charPtr unsafe.Pointer) string {
	if charPtr == nil {
		return ""
	}
	return unsafe.String((*byte)(charPtr), int(C.strlen((*C.char)(charPtr))))
}

// StringBuffer is a C-allocated, null-terminated string buffer that can be
// rewritten many times and handed to the host as a const char*. The buffer
// is reallocated only when a write does not fit in its current capacity.
//
// The memory is not garbage collected and must be released with Free.
type StringBuffer struct {
	cPtr *C.char
	len  int
	cap  int
}

// Write copies str into the buffer, followed by a null terminator.
func (s *StringBuffer) Write(str string) {
	if s.cPtr == nil || len(str) >= s.cap {
		if s.cPtr != nil {
			C.free(unsafe.Pointer(s.cPtr))
		}
		s.cap = len(str) + 1
		s.cPtr = (*C.char)(C.malloc(C.size_t(s.cap)))
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(s.cPtr)), s.cap)
	copy(buf, str)
	buf[len(str)] = cStringNullTerminator
	s.len = len(str)
}

// CharPtr returns the C pointer to the buffer, or nil if nothing has
// been written yet.
func (s *StringBuffer) CharPtr() unsafe.Pointer {
	return unsafe.Pointer(s.cPtr)
}

// Free releases the C memory of the buffer. The buffer can be written
// again after being freed.
func (s *StringBuffer) Free() {
	if s.cPtr != nil {
		C.free(unsafe.Pointer(s.cPtr))
		s.cPtr = nil
		s.len = 0
		s.cap = 0
	}
}
