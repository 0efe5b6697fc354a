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

// Package bridge implements the native side of a bridge with a managed,
// garbage-collected host runtime.
//
// The runtime is only reached through the Env and VM interfaces, which
// provide the four capabilities the bridge depends on: read-only views over
// managed int64 arrays, string conversion, pinning and invocation of
// single-argument callables, and attachment of new threads. The package
// builds the lifecycle rules of the boundary on top of them:
//
//   - ArrayView and WithLongArrays expose managed arrays for the duration
//     of a call and release them on every exit path.
//   - Callback pins a managed callable. Pins are shared and reference
//     counted, and the object is unpinned when the last owner releases it.
//   - Counter is native state designated by an opaque integer token. Tokens
//     are generation-checked handles of the cgo package, so a destroyed or
//     forged token is reported as ErrInvalidToken instead of being
//     dereferenced.
//   - ProgressTask is a background worker that attaches its own thread to
//     the runtime and notifies a pinned callback. Its start is synchronized
//     with the spawning call.
//
// Bridge ties them together into the entry points exposed to the runtime.
// Bindings for a concrete runtime are in the managed package (an in-process
// runtime) and in the host and symbols packages (a C ABI).
package bridge
