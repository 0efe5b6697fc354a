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

// Package instance defines the state shared by the exported C symbols of a
// bridge instance, and the conventions they follow to report errors.
package instance

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/cgo"
	"github.com/falcosecurity/native-bridge-go/pkg/host"
	"github.com/falcosecurity/native-bridge-go/pkg/ptr"
)

// Return codes of the exported functions.
const (
	BridgeSuccess      int32 = 0
	BridgeFailure      int32 = 1
	BridgeInvalidToken int32 = 2
)

var (
	// ErrNotInitialized is reported by instances whose init failed
	ErrNotInitialized = errors.New("bridge is not initialized")
)

// Instance is the value designated by the handle returned by bridge_init.
type Instance struct {
	Bridge *bridge.Bridge
	API    *host.API

	mu         sync.Mutex
	lastErr    error
	lastErrBuf ptr.StringBuffer
	statsBuf   ptr.StringBuffer
}

// New returns an Instance serving b through api. A nil b is an instance
// whose initialization failed, and only reports its last error.
func New(b *bridge.Bridge, api *host.API) *Instance {
	return &Instance{Bridge: b, API: api}
}

// Load returns the Instance designated by handle.
func Load(handle uintptr) (*Instance, bool) {
	v, ok := cgo.Handle(handle).Load()
	if !ok {
		return nil, false
	}
	i, ok := v.(*Instance)
	return i, ok && i != nil
}

// LastError returns the error reported by the last failed call.
func (i *Instance) LastError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// SetLastError sets the error returned by LastError.
func (i *Instance) SetLastError(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastErr = err
}

// LastErrorString writes the last error into a C buffer owned by i and
// returns it. The buffer is valid until the next call or until Free.
func (i *Instance) LastErrorString() unsafe.Pointer {
	i.mu.Lock()
	defer i.mu.Unlock()
	msg := ""
	if i.lastErr != nil {
		msg = i.lastErr.Error()
	}
	i.lastErrBuf.Write(msg)
	return i.lastErrBuf.CharPtr()
}

// StatsString writes s into a C buffer owned by i and returns it. The
// buffer is valid until the next call or until Free.
func (i *Instance) StatsString(s string) unsafe.Pointer {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.statsBuf.Write(s)
	return i.statsBuf.CharPtr()
}

// Env returns the bridge.Env of a host env pointer.
func (i *Instance) Env(env unsafe.Pointer) bridge.Env {
	return i.API.Env(env)
}

// Get returns the Instance designated by handle and its bridge. When the
// instance cannot serve calls, the returned code reports why.
func Get(handle uintptr) (*Instance, *bridge.Bridge, int32) {
	i, ok := Load(handle)
	if !ok {
		return nil, nil, BridgeFailure
	}
	if i.Bridge == nil {
		return i, nil, i.Result(ErrNotInitialized)
	}
	return i, i.Bridge, BridgeSuccess
}

// Result records err as the last error, and returns the code reporting it.
func (i *Instance) Result(err error) int32 {
	if err == nil {
		return BridgeSuccess
	}
	i.SetLastError(err)
	if errors.Is(err, bridge.ErrInvalidToken) {
		return BridgeInvalidToken
	}
	return BridgeFailure
}

// Free releases the C memory of i.
func (i *Instance) Free() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastErrBuf.Free()
	i.statsBuf.Free()
}
