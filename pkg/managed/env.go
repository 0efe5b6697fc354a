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

package managed

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
)

// Env is the bridge.Env of a thread of a Runtime.
type Env struct {
	rt       *Runtime
	critical atomic.Int32
	detached atomic.Bool
}

// check returns an error if the env cannot call into the runtime.
func (e *Env) check() error {
	if e.detached.Load() {
		return ErrDetached
	}
	return nil
}

// checkCall is check, plus the critical region rule.
func (e *Env) checkCall() error {
	if err := e.check(); err != nil {
		return err
	}
	if e.critical.Load() > 0 {
		return ErrCriticalRegion
	}
	return nil
}

// GetArrayLength implements bridge.Env.
func (e *Env) GetArrayLength(array bridge.Ref) (int, error) {
	if err := e.checkCall(); err != nil {
		return 0, err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	o, err := e.rt.resolve(array, kindLongArray)
	if err != nil {
		return 0, err
	}
	return len(o.longs), nil
}

// GetLongArrayElements implements bridge.Env.
func (e *Env) GetLongArrayElements(array bridge.Ref, mode bridge.AcquireMode) ([]int64, bool, error) {
	if err := e.check(); err != nil {
		return nil, false, err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	o, err := e.rt.resolve(array, kindLongArray)
	if err != nil {
		return nil, false, err
	}

	o.views++
	if mode == bridge.AcquireCritical {
		e.critical.Add(1)
		return o.longs, false, nil
	}
	if e.rt.copyElements {
		elems := make([]int64, len(o.longs))
		copy(elems, o.longs)
		return elems, true, nil
	}
	return o.longs, false, nil
}

// ReleaseLongArrayElements implements bridge.Env.
func (e *Env) ReleaseLongArrayElements(array bridge.Ref, elems []int64, acquired bridge.AcquireMode, mode bridge.ReleaseMode) {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	o, err := e.rt.resolve(array, kindLongArray)
	if err != nil {
		panic(fmt.Sprintf("native-bridge-go/managed: release of %d: %s", array, err))
	}
	if o.views == 0 {
		panic(fmt.Sprintf("native-bridge-go/managed: release of %d without acquisition", array))
	}
	o.views--
	if acquired == bridge.AcquireCritical {
		e.critical.Add(-1)
		return
	}
	if e.rt.copyElements && mode == bridge.CopyBack {
		copy(o.longs, elems)
	}
}

// GetLongArrayRegion implements bridge.Env.
func (e *Env) GetLongArrayRegion(array bridge.Ref, start int, buf []int64) error {
	if err := e.checkCall(); err != nil {
		return err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	o, err := e.rt.resolve(array, kindLongArray)
	if err != nil {
		return err
	}
	if start < 0 || start+len(buf) > len(o.longs) {
		return fmt.Errorf("region [%d, %d) out of bounds of array of length %d", start, start+len(buf), len(o.longs))
	}
	copy(buf, o.longs[start:start+len(buf)])
	return nil
}

// GetStringUTF implements bridge.Env.
func (e *Env) GetStringUTF(str bridge.Ref) ([]byte, error) {
	if err := e.checkCall(); err != nil {
		return nil, err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	o, err := e.rt.resolve(str, kindString)
	if err != nil {
		return nil, err
	}
	b := make([]byte, len(o.str))
	copy(b, o.str)
	return b, nil
}

// NewStringUTF implements bridge.Env. The new string is held by a local
// reference owned by the host program.
func (e *Env) NewStringUTF(s string) (bridge.Ref, error) {
	if err := e.checkCall(); err != nil {
		return 0, err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	return e.rt.alloc(&object{kind: kindString, str: []byte(s)})
}

// NewGlobalRef implements bridge.Env.
func (e *Env) NewGlobalRef(obj bridge.Ref) (bridge.Ref, error) {
	if err := e.checkCall(); err != nil {
		return 0, err
	}
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	if target, ok := e.rt.globals[obj]; ok {
		obj = target
	}
	if _, ok := e.rt.objects[obj]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchObject, obj)
	}
	e.rt.next++
	ref := e.rt.next
	e.rt.globals[ref] = obj
	return ref, nil
}

// DeleteGlobalRef implements bridge.Env.
func (e *Env) DeleteGlobalRef(ref bridge.Ref) {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	delete(e.rt.globals, ref)
}

// CallLong implements bridge.Env. The callable runs on the calling
// goroutine, without any runtime lock held.
func (e *Env) CallLong(obj bridge.Ref, value int64) (err error) {
	if err := e.checkCall(); err != nil {
		return err
	}
	e.rt.mu.Lock()
	o, err := e.rt.resolve(obj, kindCallable)
	e.rt.mu.Unlock()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exception in callable %d: %v", obj, r)
		}
	}()
	if err := o.fn(value); err != nil {
		return fmt.Errorf("exception in callable %d: %w", obj, err)
	}
	return nil
}

// VM implements bridge.Env.
func (e *Env) VM() (bridge.VM, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return &VM{rt: e.rt}, nil
}

// VM is the bridge.VM of a Runtime. A VM keeps track of the threads
// attached through it, and detaches them in reverse order.
type VM struct {
	rt *Runtime

	mu   sync.Mutex
	envs []*Env
}

// AttachCurrentThread implements bridge.VM.
func (v *VM) AttachCurrentThread() (bridge.Env, error) {
	v.rt.mu.Lock()
	if v.rt.attachErr != nil {
		err := v.rt.attachErr
		v.rt.mu.Unlock()
		return nil, err
	}
	v.rt.attached++
	v.rt.mu.Unlock()

	env := &Env{rt: v.rt}
	v.mu.Lock()
	v.envs = append(v.envs, env)
	v.mu.Unlock()
	return env, nil
}

// DetachCurrentThread implements bridge.VM. The Env of the detached
// thread fails every following call.
func (v *VM) DetachCurrentThread() error {
	v.mu.Lock()
	n := len(v.envs)
	if n == 0 {
		v.mu.Unlock()
		return errors.New("no thread is attached")
	}
	env := v.envs[n-1]
	v.envs = v.envs[:n-1]
	v.mu.Unlock()

	env.detached.Store(true)
	v.rt.mu.Lock()
	v.rt.attached--
	v.rt.mu.Unlock()
	return nil
}

var (
	_ bridge.Env = (*Env)(nil)
	_ bridge.VM  = (*VM)(nil)
)
