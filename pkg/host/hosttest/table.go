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

package hosttest

/*
#cgo CFLAGS: -I${SRCDIR}/..
#include <stdlib.h>
#include "host_api.h"

extern int32_t hosttest_get_array_length(void*, bridge_ref, int64_t*);
extern int64_t* hosttest_get_long_array_elements(void*, bridge_ref, uint32_t, int64_t*, uint8_t*);
extern void hosttest_release_long_array_elements(void*, bridge_ref, int64_t*, uint32_t, uint32_t);
extern int32_t hosttest_get_long_array_region(void*, bridge_ref, int64_t, int64_t, int64_t*);
extern char* hosttest_get_string_utf(void*, bridge_ref, int64_t*);
extern void hosttest_release_string_utf(void*, bridge_ref, char*);
extern bridge_ref hosttest_new_string_utf(void*, char*, int64_t);
extern bridge_ref hosttest_new_global_ref(void*, bridge_ref);
extern void hosttest_delete_global_ref(void*, bridge_ref);
extern int32_t hosttest_call_long(void*, bridge_ref, int64_t);
extern void* hosttest_get_vm(void*);
extern void* hosttest_attach_current_thread(void*);
extern int32_t hosttest_detach_current_thread(void*);

typedef const char* (*get_string_utf_fn)(void*, bridge_ref, int64_t*);
typedef void (*release_string_utf_fn)(void*, bridge_ref, const char*);
typedef bridge_ref (*new_string_utf_fn)(void*, const char*, int64_t);

static bridge_host_api* hosttest_new_api()
{
	bridge_host_api* a = (bridge_host_api*) calloc(1, sizeof(bridge_host_api));
	a->get_array_length = hosttest_get_array_length;
	a->get_long_array_elements = hosttest_get_long_array_elements;
	a->release_long_array_elements = hosttest_release_long_array_elements;
	a->get_long_array_region = hosttest_get_long_array_region;
	a->get_string_utf = (get_string_utf_fn) hosttest_get_string_utf;
	a->release_string_utf = (release_string_utf_fn) hosttest_release_string_utf;
	a->new_string_utf = (new_string_utf_fn) hosttest_new_string_utf;
	a->new_global_ref = hosttest_new_global_ref;
	a->delete_global_ref = hosttest_delete_global_ref;
	a->call_long = hosttest_call_long;
	a->get_vm = hosttest_get_vm;
	a->attach_current_thread = hosttest_attach_current_thread;
	a->detach_current_thread = hosttest_detach_current_thread;
	return a;
}
*/
import "C"

func newAPI() *C.bridge_host_api {
	return C.hosttest_new_api()
}
