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

// This package exports a C function bridge_get_last_error() which is used
// by the host to get the last error of a bridge instance.
//
// The *only* case where a library should not import this module is when
// it exports its own bridge_get_last_error manually.
package lasterr

/*
#include <stdint.h> // for uintptr_t
*/
import "C"
import (
	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
)

//export bridge_get_last_error
func bridge_get_last_error(b C.uintptr_t) *C.char {
	i, ok := instance.Load(uintptr(b))
	if !ok {
		return nil
	}
	return (*C.char)(i.LastErrorString())
}
