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

// This package exports the C function bridge_start_async_progress(), which
// starts a progress worker and returns once the worker is running.
package progress

/*
#include <stdint.h>
*/
import "C"
import (
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
)

//export bridge_start_async_progress
func bridge_start_async_progress(b C.uintptr_t, env unsafe.Pointer, callback C.uint64_t) int32 {
	i, br, rc := instance.Get(uintptr(b))
	if br == nil {
		return rc
	}
	return i.Result(br.StartAsyncProgress(i.Env(env), bridge.Ref(callback)))
}
