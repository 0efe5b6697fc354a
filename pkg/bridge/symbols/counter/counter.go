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

// This package exports the C functions managing counters. A counter is
// designated by an opaque int64 token, and each function returns
// BridgeInvalidToken (2) when given a token that does not designate a
// live counter.
package counter

/*
#include <stdint.h>
*/
import "C"
import (
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
)

//export bridge_counter_create
func bridge_counter_create(b C.uintptr_t, env unsafe.Pointer, callback C.uint64_t, token *C.int64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	t, err := br.CounterCreate(i.Env(env), bridge.Ref(callback))
	if err == nil {
		*token = C.int64_t(t)
	}
	return i.Result(err)
}

//export bridge_counter_increment
func bridge_counter_increment(b C.uintptr_t, env unsafe.Pointer, token C.int64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	return i.Result(br.CounterIncrement(i.Env(env), int64(token)))
}

//export bridge_counter_value
func bridge_counter_value(b C.uintptr_t, token C.int64_t, value *C.int64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	v, err := br.CounterValue(int64(token))
	if err == nil {
		*value = C.int64_t(v)
	}
	return i.Result(err)
}

//export bridge_counter_destroy
func bridge_counter_destroy(b C.uintptr_t, env unsafe.Pointer, token C.int64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	return i.Result(br.CounterDestroy(i.Env(env), int64(token)))
}
