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

import (
	"fmt"
	"sync/atomic"
)

// pin is a global reference shared by one or more Callback owners.
// The object is unpinned when the last owner releases it.
type pin struct {
	ref     Ref
	owners  atomic.Int32
	onUnpin func()
}

// Callback is a pinned reference to a managed object implementing a
// single-argument call capability. While at least one Callback sharing
// the same pin exists, the managed object is excluded from collection.
//
// A Callback is owned by exactly one holder: a call frame, a Counter, or a
// progress worker. Use Clone to hand out another owner of the same pin.
type Callback struct {
	p        *pin
	released atomic.Bool
}

// Pin creates a global reference to obj and wraps it in a Callback.
func Pin(env Env, obj Ref) (*Callback, error) {
	return pinWith(env, obj, nil)
}

func pinWith(env Env, obj Ref, onUnpin func()) (*Callback, error) {
	if obj == 0 {
		return nil, newError("", KindPin, "null callback reference", nil)
	}
	ref, err := env.NewGlobalRef(obj)
	if err != nil {
		return nil, newError("", KindPin, fmt.Sprintf("callback %d", obj), err)
	}
	if ref == 0 {
		return nil, newError("", KindPin, fmt.Sprintf("callback %d is not a live object", obj), nil)
	}
	p := &pin{ref: ref, onUnpin: onUnpin}
	p.owners.Store(1)
	return &Callback{p: p}, nil
}

// Ref returns the global reference held by the callback.
func (c *Callback) Ref() Ref {
	return c.p.ref
}

// Clone returns a new owner of the same pin. The pin is dropped only
// after both c and the clone have been released.
//
// The method panics if c has been released.
func (c *Callback) Clone() *Callback {
	if c.released.Load() {
		panic("native-bridge-go/bridge: clone of a released Callback")
	}
	c.p.owners.Add(1)
	return &Callback{p: c.p}
}

// Invoke calls the managed callback with value, synchronously on the
// thread env is bound to. A failure raised by the managed side is
// returned as an invocation error.
func (c *Callback) Invoke(env Env, value int64) error {
	if c.released.Load() {
		return newError("", KindPin, "invoke of a released callback", nil)
	}
	if err := env.CallLong(c.p.ref, value); err != nil {
		return newError("", KindInvocation, fmt.Sprintf("callback %d with value %d", c.p.ref, value), err)
	}
	return nil
}

// Release drops this owner of the pin. When the last owner is released,
// the global reference is deleted through env and the managed object
// becomes collectible again. Calling Release more than once on the same
// Callback has no further effect.
func (c *Callback) Release(env Env) {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.p.owners.Add(-1) == 0 {
		env.DeleteGlobalRef(c.p.ref)
		if c.p.onUnpin != nil {
			c.p.onUnpin()
		}
	}
}
