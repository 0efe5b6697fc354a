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

import "fmt"

// ArrayView is a read-only view over a managed int64 array. The memory
// behind a view is owned by the managed runtime, and is only valid between
// AcquireLongArray and Release. A view must never be retained past the call
// that acquired it.
type ArrayView struct {
	env      Env
	array    Ref
	mode     AcquireMode
	elems    []int64
	isCopy   bool
	released bool
}

// AcquireLongArray acquires a view over the given managed array.
func AcquireLongArray(env Env, array Ref, mode AcquireMode) (*ArrayView, error) {
	if array == 0 {
		return nil, newError("", KindAcquisition, "null array reference", nil)
	}
	elems, isCopy, err := env.GetLongArrayElements(array, mode)
	if err != nil {
		return nil, newError("", KindAcquisition, fmt.Sprintf("array %d (%s)", array, mode), err)
	}
	return &ArrayView{
		env:    env,
		array:  array,
		mode:   mode,
		elems:  elems,
		isCopy: isCopy,
	}, nil
}

// Slice returns the elements of the view. The slice must not be modified
// and must not be used after Release.
//
// The method panics if the view has been released.
func (v *ArrayView) Slice() []int64 {
	if v.released {
		panic("native-bridge-go/bridge: use of a released ArrayView")
	}
	return v.elems
}

// Len returns the number of elements of the view.
func (v *ArrayView) Len() int {
	return len(v.elems)
}

// IsCopy reports whether the runtime exposed a copy of the array.
func (v *ArrayView) IsCopy() bool {
	return v.isCopy
}

// Mode returns the mode the view was acquired with.
func (v *ArrayView) Mode() AcquireMode {
	return v.mode
}

// Release gives the view back to the runtime. Changes are never copied
// back, as views are read-only. Calling Release more than once has
// no further effect.
func (v *ArrayView) Release() {
	if v.released {
		return
	}
	v.released = true
	v.env.ReleaseLongArrayElements(v.array, v.elems, v.mode, NoCopyBack)
	v.elems = nil
}

// WithLongArrays acquires a view for each of the given arrays and passes
// their elements to fn, in the same order. Every acquired view is released
// before WithLongArrays returns, including when a later acquisition fails
// or when fn returns an error or panics. The slices passed to fn must not
// escape it.
func WithLongArrays(env Env, mode AcquireMode, arrays []Ref, fn func(elems [][]int64) error) (err error) {
	views := make([]*ArrayView, 0, len(arrays))
	defer func() {
		// release in reverse acquisition order
		for i := len(views) - 1; i >= 0; i-- {
			views[i].Release()
		}
	}()

	elems := make([][]int64, len(arrays))
	for i, a := range arrays {
		v, err := AcquireLongArray(env, a, mode)
		if err != nil {
			return err
		}
		views = append(views, v)
		elems[i] = v.Slice()
	}
	return fn(elems)
}

// CopyLongArray copies the content of a managed array into a new slice
// owned by the native side, which can be retained freely.
func CopyLongArray(env Env, array Ref) ([]int64, error) {
	if array == 0 {
		return nil, newError("", KindAcquisition, "null array reference", nil)
	}
	n, err := env.GetArrayLength(array)
	if err != nil {
		return nil, newError("", KindAcquisition, fmt.Sprintf("length of array %d", array), err)
	}
	buf := make([]int64, n)
	if n == 0 {
		return buf, nil
	}
	if err := env.GetLongArrayRegion(array, 0, buf); err != nil {
		return nil, newError("", KindAcquisition, fmt.Sprintf("region of array %d", array), err)
	}
	return buf, nil
}
