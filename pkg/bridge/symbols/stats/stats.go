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

// This package exports the C function bridge_get_stats(), which returns
// the metrics of a bridge instance as a JSON object.
package stats

/*
#include <stdint.h>
*/
import "C"
import (
	"encoding/json"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
)

//export bridge_get_stats
func bridge_get_stats(b C.uintptr_t) *C.char {
	i, br, _ := instance.Get(uintptr(b))
	if br == nil {
		return nil
	}
	data, err := json.Marshal(br.Stats())
	if err != nil {
		i.SetLastError(err)
		return nil
	}
	return (*C.char)(i.StatsString(string(data)))
}
