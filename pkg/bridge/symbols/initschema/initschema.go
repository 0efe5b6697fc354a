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

// This package exports the C function bridge_get_init_schema(), which
// returns the JSON schema of the configuration accepted by bridge_init().
package initschema

/*
#include <stdint.h>
*/
import "C"
import (
	"sync"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/ptr"
)

var (
	schemaOnce sync.Once
	schemaBuf  ptr.StringBuffer
)

//export bridge_get_init_schema
func bridge_get_init_schema() *C.char {
	schemaOnce.Do(func() {
		schemaBuf.Write(bridge.InitSchema)
	})
	return (*C.char)(schemaBuf.CharPtr())
}
