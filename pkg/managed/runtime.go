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

// Package managed is an in-process implementation of a garbage-collected
// managed runtime, satisfying the bridge.Env and bridge.VM interfaces.
//
// Objects live in a heap owned by the Runtime and are designated by
// references. References returned by the allocation methods are local
// references held by the host program, and keep their object reachable
// until DeleteLocalRef is called. Global references created through an Env
// pin their object in the same way. GC collects every object that is
// neither referenced nor currently exposed through an array view.
//
// The runtime enforces the rules a real one would: elements acquired
// through an Env must be released exactly once, nothing may call into the
// runtime while a critical view is held on the same Env, and an Env stops
// working once its thread is detached.
package managed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"go.uber.org/zap"
)

var (
	// ErrNoSuchObject is returned when a reference does not designate a live object
	ErrNoSuchObject = errors.New("no such object")
	//
	// ErrWrongType is returned when an object is not of the expected type
	ErrWrongType = errors.New("object has the wrong type")
	//
	// ErrOutOfMemory is returned when the heap limit has been reached
	ErrOutOfMemory = errors.New("out of memory")
	//
	// ErrCriticalRegion is returned when calling into the runtime while
	// a critical array view is held
	ErrCriticalRegion = errors.New("call into the runtime inside a critical region")
	//
	// ErrDetached is returned when using the Env of a detached thread
	ErrDetached = errors.New("thread is detached")
)

// Callable is the single-argument call capability of a managed object.
// Returning an error, or panicking, is equivalent to the managed side
// raising an exception.
type Callable func(value int64) error

type kind int

const (
	kindLongArray kind = iota
	kindString
	kindCallable
)

func (k kind) String() string {
	switch k {
	case kindLongArray:
		return "long[]"
	case kindString:
		return "string"
	case kindCallable:
		return "callable"
	default:
		return "unknown"
	}
}

type object struct {
	kind  kind
	longs []int64
	str   []byte
	fn    Callable
	views int
}

// Runtime is an in-process managed runtime.
type Runtime struct {
	log *zap.Logger

	mu           sync.Mutex
	next         bridge.Ref
	objects      map[bridge.Ref]*object
	locals       map[bridge.Ref]struct{}
	globals      map[bridge.Ref]bridge.Ref
	maxObjects   int
	copyElements bool
	attached     int
	attachErr    error

	main *Env
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCopyElements makes the runtime hand out copies of arrays acquired
// with bridge.AcquireElements, like a runtime that cannot expose its heap
// would. Critical acquisitions are never copied.
func WithCopyElements(copy bool) Option {
	return func(r *Runtime) {
		r.copyElements = copy
	}
}

// WithMaxObjects limits the number of live objects. Allocations beyond
// the limit fail with ErrOutOfMemory. Zero means no limit.
func WithMaxObjects(n int) Option {
	return func(r *Runtime) {
		r.maxObjects = n
	}
}

// WithLogger sets the logger of the runtime.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		r.log = l
	}
}

// New creates an empty runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		objects: make(map[bridge.Ref]*object),
		locals:  make(map[bridge.Ref]struct{}),
		globals: make(map[bridge.Ref]bridge.Ref),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.main = &Env{rt: r}
	return r
}

// Env returns the Env of the thread that created the runtime. It is
// never detached.
func (r *Runtime) Env() *Env {
	return r.main
}

// alloc must be called with r.mu held.
func (r *Runtime) alloc(o *object) (bridge.Ref, error) {
	if r.maxObjects > 0 && len(r.objects) >= r.maxObjects {
		return 0, fmt.Errorf("%w: %d objects live", ErrOutOfMemory, len(r.objects))
	}
	r.next++
	ref := r.next
	r.objects[ref] = o
	r.locals[ref] = struct{}{}
	return ref, nil
}

func (r *Runtime) mustAlloc(o *object) bridge.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.alloc(o)
	if err != nil {
		panic(err)
	}
	return ref
}

// NewLongArray allocates a managed int64 array holding a copy of values.
// It panics if the heap limit has been reached.
func (r *Runtime) NewLongArray(values ...int64) bridge.Ref {
	longs := make([]int64, len(values))
	copy(longs, values)
	return r.mustAlloc(&object{kind: kindLongArray, longs: longs})
}

// NewString allocates a managed string. It panics if the heap limit has
// been reached.
func (r *Runtime) NewString(s string) bridge.Ref {
	return r.mustAlloc(&object{kind: kindString, str: []byte(s)})
}

// NewRawString allocates a managed string with arbitrary content, which
// is not necessarily valid UTF-8.
func (r *Runtime) NewRawString(b []byte) bridge.Ref {
	str := make([]byte, len(b))
	copy(str, b)
	return r.mustAlloc(&object{kind: kindString, str: str})
}

// NewCallable allocates a managed object whose call capability runs fn.
func (r *Runtime) NewCallable(fn Callable) bridge.Ref {
	return r.mustAlloc(&object{kind: kindCallable, fn: fn})
}

// DeleteLocalRef drops a local reference held by the host program. The
// object is collectible from then on, unless pinned.
func (r *Runtime) DeleteLocalRef(ref bridge.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locals, ref)
}

// resolve returns the object designated by ref, which is either a local
// or a global reference. r.mu must be held.
func (r *Runtime) resolve(ref bridge.Ref, k kind) (*object, error) {
	if target, ok := r.globals[ref]; ok {
		ref = target
	}
	o, ok := r.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchObject, ref)
	}
	if o.kind != k {
		return nil, fmt.Errorf("%w: %d is a %s, not a %s", ErrWrongType, ref, o.kind, k)
	}
	return o, nil
}

// String returns the content of a managed string.
func (r *Runtime) String(ref bridge.Ref) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.resolve(ref, kindString)
	if err != nil {
		return "", err
	}
	return string(o.str), nil
}

// GC collects every object that is not referenced by a local or a
// global reference and not exposed through an array view. It returns the
// number of collected objects.
func (r *Runtime) GC() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reachable := make(map[bridge.Ref]struct{}, len(r.locals)+len(r.globals))
	for ref := range r.locals {
		reachable[ref] = struct{}{}
	}
	for _, target := range r.globals {
		reachable[target] = struct{}{}
	}

	n := 0
	for ref, o := range r.objects {
		if _, ok := reachable[ref]; ok || o.views > 0 {
			continue
		}
		delete(r.objects, ref)
		n++
	}
	r.log.Debug("gc", zap.Int("collected", n), zap.Int("live", len(r.objects)))
	return n
}

// Alive reports whether ref designates an object that has not been collected.
func (r *Runtime) Alive(ref bridge.Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objects[ref]
	return ok
}

// Pinned reports whether at least one global reference designates obj.
func (r *Runtime) Pinned(obj bridge.Ref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, target := range r.globals {
		if target == obj {
			return true
		}
	}
	return false
}

// GlobalRefs returns the number of live global references.
func (r *Runtime) GlobalRefs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.globals)
}

// OutstandingViews returns the number of array views that have been
// acquired and not yet released.
func (r *Runtime) OutstandingViews() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.objects {
		n += o.views
	}
	return n
}

// Attached returns the number of threads currently attached through
// AttachCurrentThread.
func (r *Runtime) Attached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

// FailAttach makes every following AttachCurrentThread fail with err.
// A nil err restores the normal behavior.
func (r *Runtime) FailAttach(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachErr = err
}
