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
	"reflect"
	"sync"
	"testing"
)

// This test suite derivates from
// https://cs.opensource.google/go/go/+/refs/tags/go1.17.2:src/runtime/cgo/handle_test.go

func TestHandle(t *testing.T) {
	resetHandles()
	v := 42

	tests := []struct {
		v1 interface{}
		v2 interface{}
	}{
		{v1: v, v2: v},
		{v1: &v, v2: &v},
		{v1: nil, v2: nil},
	}

	for _, tt := range tests {
		h1 := NewHandle(tt.v1)
		h2 := NewHandle(tt.v2)

		if uintptr(h1) == 0 || uintptr(h2) == 0 {
			t.Fatalf("NewHandle returns zero")
		}

		if uintptr(h1) == uintptr(h2) {
			t.Fatalf("Duplicated Go values should have different handles, but got equal")
		}

		h1v := h1.Value()
		h2v := h2.Value()
		if !reflect.DeepEqual(h1v, h2v) || !reflect.DeepEqual(h1v, tt.v1) {
			t.Fatalf("Value of a Handle got wrong, got %+v %+v, want %+v", h1v, h2v, tt.v1)
		}

		h1.Delete()
		h2.Delete()
	}

	if siz := Len(); siz != 0 {
		t.Fatalf("handles are not cleared, got %d, want %d", siz, 0)
	}
}

func TestInvalidHandle(t *testing.T) {
	resetHandles()

	t.Run("zero", func(t *testing.T) {
		h := Handle(0)

		defer func() {
			if r := recover(); r != nil {
				return
			}
			t.Fatalf("Delete of zero handle did not trigger a panic")
		}()

		h.Delete()
	})

	t.Run("zero-value", func(t *testing.T) {
		h := Handle(0)
		defer func() {
			if r := recover(); r != nil {
				return
			}
			t.Fatalf("Value of zero handle did not trigger a panic")
		}()
		h.Value()
	})

	t.Run("invalid", func(t *testing.T) {
		h := NewHandle(42)

		defer func() {
			if r := recover(); r != nil {
				h.Delete()
				return
			}
			t.Fatalf("Invalid handle did not trigger a panic")
		}()

		Handle(h + 1).Delete()
	})

	t.Run("load-take", func(t *testing.T) {
		if _, ok := Handle(0).Load(); ok {
			t.Fatalf("Load of zero handle succeeded")
		}
		if _, ok := Handle(MaxHandle).Take(); ok {
			t.Fatalf("Take of unused handle succeeded")
		}
	})
}

func TestStaleHandle(t *testing.T) {
	resetHandles()

	h1 := NewHandle("first")
	v, ok := h1.Take()
	if !ok || v != "first" {
		t.Fatalf("Take returned %v, %v", v, ok)
	}

	// the slot is reused, but with a different generation
	h2 := NewHandle("second")
	if h2.index() != h1.index() {
		t.Fatalf("expected slot %d to be reused, got %d", h1.index(), h2.index())
	}
	if h1 == h2 {
		t.Fatalf("reused slot returned the same handle value %d", h1)
	}

	if _, ok := h1.Load(); ok {
		t.Fatalf("stale handle %d resolved after deletion", h1)
	}
	if _, ok := h1.Take(); ok {
		t.Fatalf("stale handle %d was deleted twice", h1)
	}
	if h2.Value() != "second" {
		t.Fatalf("stale delete affected the new handle")
	}
	h2.Delete()
}

func TestStaleHandleAfterManyReuses(t *testing.T) {
	resetHandles()

	stale := NewHandle("first")
	stale.Delete()
	for i := 0; i < MaxHandle-1; i++ {
		NewHandle(i).Delete()
	}

	h := NewHandle("second")
	defer h.Delete()
	if h == stale {
		t.Fatalf("handle %d was handed out again after %d reuses of its slot", h, MaxHandle)
	}
	if v, ok := stale.Load(); ok {
		t.Fatalf("stale handle %d resolved to %v", stale, v)
	}
	if h.Value() != "second" {
		t.Fatalf("new handle %d resolved to a foreign value", h)
	}
}

func TestExhaustedGeneration(t *testing.T) {
	resetHandles()
	defer resetHandles()

	h1 := NewHandle("first")
	h1.Delete()
	mu.Lock()
	slots[h1.index()].gen = maxGeneration
	mu.Unlock()

	h2 := NewHandle("last")
	if h2.index() != h1.index() || h2.generation() != maxGeneration {
		t.Fatalf("expected slot %d with generation %d, got slot %d with generation %d",
			h1.index(), uintptr(maxGeneration), h2.index(), h2.generation())
	}
	if int64(h2) <= 0 {
		t.Fatalf("handle %d does not fit in a positive int64", h2)
	}
	h2.Delete()

	// the exhausted slot is retired instead of wrapping to generation 1
	h3 := NewHandle("third")
	defer h3.Delete()
	if h3.index() == h2.index() {
		t.Fatalf("retired slot %d was reused", h2.index())
	}
	for _, h := range []Handle{h1, h2, makeHandle(h2.index(), 1)} {
		if _, ok := h.Load(); ok {
			t.Fatalf("handle %d of a retired slot resolved", h)
		}
	}
	if siz := Len(); siz != 1 {
		t.Fatalf("unexpected number of valid handles, got %d, want %d", siz, 1)
	}
}

func TestMaxHandle(t *testing.T) {
	t.Run("non-max", func(t *testing.T) {
		resetHandles()
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("NewHandle with non-max handle count triggered a panic")
			}
		}()
		handles := make([]Handle, 0)
		for i := 1; i <= MaxHandle; i++ {
			v := i
			handles = append(handles, NewHandle(&v))
		}
		for _, h := range handles {
			h.Delete()
		}
	})

	t.Run("max", func(t *testing.T) {
		resetHandles()
		defer resetHandles()
		handles := make([]Handle, 0)
		for i := 1; i <= MaxHandle; i++ {
			v := i
			handles = append(handles, NewHandle(&v))
		}
		if _, ok := TryNewHandle(0); ok {
			t.Fatalf("TryNewHandle succeeded past MaxHandle")
		}
		defer func() {
			if r := recover(); r != nil {
				return
			}
			t.Fatalf("NewHandle with max handle count did not triggered a panic")
		}()
		NewHandle(0)
	})
}

func TestConcurrentHandles(t *testing.T) {
	resetHandles()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				h := NewHandle(i)
				if h.Value() != i {
					t.Errorf("handle %d resolved to a foreign value", h)
				}
				h.Delete()
			}
		}(i)
	}
	wg.Wait()

	if siz := Len(); siz != 0 {
		t.Fatalf("handles are not cleared, got %d, want %d", siz, 0)
	}
}

func BenchmarkHandle(b *testing.B) {
	b.Run("non-concurrent", func(b *testing.B) {
		resetHandles()
		for i := 0; i < b.N; i++ {
			h := NewHandle(i)
			_ = h.Value()
			h.Delete()
		}
	})
}
