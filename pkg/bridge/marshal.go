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
	"unicode/utf8"
)

// ToNativeString converts a managed string into a Go string.
func ToNativeString(env Env, str Ref) (string, error) {
	if str == 0 {
		return "", newError("", KindDecode, "null string reference", nil)
	}
	b, err := env.GetStringUTF(str)
	if err != nil {
		return "", newError("", KindDecode, fmt.Sprintf("string %d", str), err)
	}
	if !utf8.Valid(b) {
		return "", newError("", KindDecode, fmt.Sprintf("string %d is not valid UTF-8", str), nil)
	}
	return string(b), nil
}

// ToManagedString allocates a managed string holding s.
func ToManagedString(env Env, s string) (Ref, error) {
	ref, err := env.NewStringUTF(s)
	if err != nil {
		return 0, newError("", KindAllocation, fmt.Sprintf("string of %d bytes", len(s)), err)
	}
	if ref == 0 {
		return 0, newError("", KindAllocation, "runtime returned a null string", nil)
	}
	return ref, nil
}

// ToNativeI64 converts a managed 64-bit integer. Both sides share the same
// representation, so the conversion never fails.
func ToNativeI64(v int64) int64 {
	return v
}

// ToManagedI64 is the inverse of ToNativeI64.
func ToManagedI64(v int64) int64 {
	return v
}
