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

// Package symbols provides prebuilt implementations for all the C symbols
// of a native bridge library, as a C ABI for a host managed runtime.
//
// The C symbol set is divided in different sub-packages to allow library
// developers to import only the ones they need. Importing one of the
// sub-packages automatically includes its prebuilt symbols in the library.
// If one of the prebuilt symbols is imported it would not be possible
// to re-define it in the library, as this would lead to a linking failure
// due to multiple definitions of the same symbol.
//
// The mapping between the prebuilt C exported symbols and their sub-package
// is designed as follows:
//  - initialize:   bridge_init, bridge_destroy
//  - initschema:   bridge_get_init_schema
//  - lasterr:      bridge_get_last_error
//  - compute:      bridge_echo, bridge_dot_product,
//                  bridge_dot_product_critical, bridge_dot_product_copy,
//                  bridge_dot_product_callback
//  - counter:      bridge_counter_create, bridge_counter_increment,
//                  bridge_counter_value, bridge_counter_destroy
//  - progress:     bridge_start_async_progress
//  - stats:        bridge_get_stats
//
// Every function operating on an instance receives the handle returned by
// bridge_init, and the host env pointer of the calling thread when it needs
// to reach the runtime. Functions returning int32_t return 0 on success,
// 2 for a token that does not designate a live counter, and 1 for any other
// failure, in which case bridge_get_last_error describes the error.
//
// There are no horizontal dependencies between the sub-packages. Each
// sub-package only depends on the bridge package and on the instance state
// shared by all of them, and occasionally uses constructs from the ptr and
// cgo packages.
package symbols
