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

// This package exports the stateless C functions of the bridge: echo and
// the dot product variants.
package compute

/*
#include <stdint.h>
*/
import "C"
import (
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
)

//export bridge_echo
func bridge_echo(b C.uintptr_t, env unsafe.Pointer, text C.uint64_t, out *C.uint64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	ref, err := br.Echo(i.Env(env), bridge.Ref(text))
	if err == nil {
		*out = C.uint64_t(ref)
	}
	return i.Result(err)
}

type dotProductFn func(*bridge.Bridge, bridge.Env, bridge.Ref, bridge.Ref) (int64, error)

func dotProduct(fn dotProductFn, b C.uintptr_t, env unsafe.Pointer, x, y C.uint64_t, out *C.int64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	res, err := fn(br, i.Env(env), bridge.Ref(x), bridge.Ref(y))
	if err == nil {
		*out = C.int64_t(bridge.ToManagedI64(res))
	}
	return i.Result(err)
}

//export bridge_dot_product
func bridge_dot_product(b C.uintptr_t, env unsafe.Pointer, x, y C.uint64_t, out *C.int64_t) int32 {
	return dotProduct((*bridge.Bridge).DotProduct, b, env, x, y, out)
}

//export bridge_dot_product_critical
func bridge_dot_product_critical(b C.uintptr_t, env unsafe.Pointer, x, y C.uint64_t, out *C.int64_t) int32 {
	return dotProduct((*bridge.Bridge).DotProductCritical, b, env, x, y, out)
}

//export bridge_dot_product_copy
func bridge_dot_product_copy(b C.uintptr_t, env unsafe.Pointer, x, y C.uint64_t, out *C.int64_t) int32 {
	return dotProduct((*bridge.Bridge).DotProductCopy, b, env, x, y, out)
}

//export bridge_dot_product_callback
func bridge_dot_product_callback(b C.uintptr_t, env unsafe.Pointer, x, y, callback C.uint64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	return i.Result(br.DotProductWithCallback(i.Env(env), bridge.Ref(x), bridge.Ref(y), bridge.Ref(callback)))
}
