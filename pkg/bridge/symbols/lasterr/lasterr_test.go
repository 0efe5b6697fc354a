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

package lasterr

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
	"github.com/falcosecurity/native-bridge-go/pkg/cgo"
	"github.com/falcosecurity/native-bridge-go/pkg/ptr"
)

var errTest = fmt.Errorf("test")

func TestLastErr(t *testing.T) {
	i := instance.New(nil, nil)
	p := cgo.NewHandle(i)
	defer p.Delete()
	defer i.Free()

	cStr := bridge_get_last_error(_Ctype_uintptr_t(p))
	if errStr := ptr.GoString(unsafe.Pointer(cStr)); errStr != "" {
		t.Fatalf(`expected empty string - got: "%s"`, errStr)
	}

	i.SetLastError(errTest)
	cStr = bridge_get_last_error(_Ctype_uintptr_t(p))
	errStr := ptr.GoString(unsafe.Pointer(cStr))
	if errTest.Error() != errStr {
		t.Fatalf(`expected: "%s" - got: "%s"`, errTest.Error(), errStr)
	}

	if cStr = bridge_get_last_error(0); cStr != nil {
		t.Fatalf("expected nil for an invalid handle")
	}
}
