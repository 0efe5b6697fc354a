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

package managed

import (
	"errors"
	"testing"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongArrayViews(t *testing.T) {
	rt := New()
	env := rt.Env()
	arr := rt.NewLongArray(1, 2, 3)

	n, err := env.GetArrayLength(arr)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	elems, isCopy, err := env.GetLongArrayElements(arr, bridge.AcquireElements)
	require.NoError(t, err)
	assert.False(t, isCopy)
	assert.Equal(t, []int64{1, 2, 3}, elems)
	assert.Equal(t, 1, rt.OutstandingViews())

	// an array exposed through a view is never collected
	rt.DeleteLocalRef(arr)
	assert.Equal(t, 0, rt.GC())
	assert.True(t, rt.Alive(arr))

	env.ReleaseLongArrayElements(arr, elems, bridge.AcquireElements, bridge.NoCopyBack)
	assert.Equal(t, 0, rt.OutstandingViews())
	assert.Equal(t, 1, rt.GC())
	assert.False(t, rt.Alive(arr))
}

func TestCopyElements(t *testing.T) {
	rt := New(WithCopyElements(true))
	env := rt.Env()
	arr := rt.NewLongArray(1, 2, 3)

	elems, isCopy, err := env.GetLongArrayElements(arr, bridge.AcquireElements)
	require.NoError(t, err)
	assert.True(t, isCopy)
	elems[0] = 42
	env.ReleaseLongArrayElements(arr, elems, bridge.AcquireElements, bridge.NoCopyBack)

	buf := make([]int64, 3)
	require.NoError(t, env.GetLongArrayRegion(arr, 0, buf))
	assert.Equal(t, []int64{1, 2, 3}, buf)

	elems, _, err = env.GetLongArrayElements(arr, bridge.AcquireElements)
	require.NoError(t, err)
	elems[0] = 42
	env.ReleaseLongArrayElements(arr, elems, bridge.AcquireElements, bridge.CopyBack)
	require.NoError(t, env.GetLongArrayRegion(arr, 0, buf))
	assert.Equal(t, []int64{42, 2, 3}, buf)

	// critical views are never copies
	_, isCopy, err = env.GetLongArrayElements(arr, bridge.AcquireCritical)
	require.NoError(t, err)
	assert.False(t, isCopy)
	env.ReleaseLongArrayElements(arr, nil, bridge.AcquireCritical, bridge.NoCopyBack)
}

func TestCriticalRegion(t *testing.T) {
	rt := New()
	env := rt.Env()
	arr := rt.NewLongArray(1)
	fn := rt.NewCallable(func(int64) error { return nil })

	elems, _, err := env.GetLongArrayElements(arr, bridge.AcquireCritical)
	require.NoError(t, err)
	assert.ErrorIs(t, env.CallLong(fn, 1), ErrCriticalRegion)
	_, err = env.NewStringUTF("x")
	assert.ErrorIs(t, err, ErrCriticalRegion)

	// nested critical acquisitions are allowed
	other := rt.NewLongArray(2)
	elems2, _, err := env.GetLongArrayElements(other, bridge.AcquireCritical)
	require.NoError(t, err)
	env.ReleaseLongArrayElements(other, elems2, bridge.AcquireCritical, bridge.NoCopyBack)
	assert.ErrorIs(t, env.CallLong(fn, 1), ErrCriticalRegion)

	env.ReleaseLongArrayElements(arr, elems, bridge.AcquireCritical, bridge.NoCopyBack)
	assert.NoError(t, env.CallLong(fn, 1))
}

func TestUnbalancedRelease(t *testing.T) {
	rt := New()
	arr := rt.NewLongArray(1)
	assert.Panics(t, func() {
		rt.Env().ReleaseLongArrayElements(arr, nil, bridge.AcquireElements, bridge.NoCopyBack)
	})
}

func TestWrongType(t *testing.T) {
	rt := New()
	env := rt.Env()
	str := rt.NewString("hello")

	_, _, err := env.GetLongArrayElements(str, bridge.AcquireElements)
	assert.ErrorIs(t, err, ErrWrongType)
	assert.ErrorIs(t, env.CallLong(str, 1), ErrWrongType)
	_, err = env.GetStringUTF(12345)
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestStrings(t *testing.T) {
	rt := New(WithMaxObjects(2))
	env := rt.Env()
	in := rt.NewString("héllo")

	b, err := env.GetStringUTF(in)
	require.NoError(t, err)
	assert.Equal(t, "héllo", string(b))

	out, err := env.NewStringUTF("world")
	require.NoError(t, err)
	s, err := rt.String(out)
	require.NoError(t, err)
	assert.Equal(t, "world", s)

	_, err = env.NewStringUTF("full")
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Panics(t, func() { rt.NewString("full") })
}

func TestGlobalRefs(t *testing.T) {
	rt := New()
	env := rt.Env()
	fn := rt.NewCallable(func(int64) error { return nil })

	g, err := env.NewGlobalRef(fn)
	require.NoError(t, err)
	assert.NotEqual(t, fn, g)
	assert.True(t, rt.Pinned(fn))
	assert.Equal(t, 1, rt.GlobalRefs())

	// a global reference resolves to its object
	assert.NoError(t, env.CallLong(g, 1))

	rt.DeleteLocalRef(fn)
	assert.Equal(t, 0, rt.GC())
	assert.True(t, rt.Alive(fn))

	env.DeleteGlobalRef(g)
	assert.False(t, rt.Pinned(fn))
	assert.Equal(t, 1, rt.GC())
	assert.False(t, rt.Alive(fn))

	_, err = env.NewGlobalRef(fn)
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestCallLong(t *testing.T) {
	rt := New()
	env := rt.Env()
	errThrown := errors.New("thrown")

	var got []int64
	ok := rt.NewCallable(func(v int64) error {
		got = append(got, v)
		return nil
	})
	fails := rt.NewCallable(func(int64) error { return errThrown })
	panics := rt.NewCallable(func(int64) error { panic("boom") })

	require.NoError(t, env.CallLong(ok, 1))
	require.NoError(t, env.CallLong(ok, 2))
	assert.Equal(t, []int64{1, 2}, got)
	assert.ErrorIs(t, env.CallLong(fails, 1), errThrown)
	assert.ErrorContains(t, env.CallLong(panics, 1), "boom")

	// callables may call back into the runtime
	reentrant := rt.NewCallable(func(v int64) error {
		return env.CallLong(ok, v*10)
	})
	require.NoError(t, env.CallLong(reentrant, 3))
	assert.Equal(t, []int64{1, 2, 30}, got)
}

func TestAttach(t *testing.T) {
	rt := New()
	vm, err := rt.Env().VM()
	require.NoError(t, err)
	fn := rt.NewCallable(func(int64) error { return nil })

	env, err := vm.AttachCurrentThread()
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Attached())
	assert.NoError(t, env.CallLong(fn, 1))

	require.NoError(t, vm.DetachCurrentThread())
	assert.Equal(t, 0, rt.Attached())
	assert.ErrorIs(t, env.CallLong(fn, 1), ErrDetached)
	_, err = env.VM()
	assert.ErrorIs(t, err, ErrDetached)
	assert.Error(t, vm.DetachCurrentThread())

	errAttach := errors.New("no more threads")
	rt.FailAttach(errAttach)
	_, err = vm.AttachCurrentThread()
	assert.ErrorIs(t, err, errAttach)
	assert.Equal(t, 0, rt.Attached())

	rt.FailAttach(nil)
	_, err = vm.AttachCurrentThread()
	assert.NoError(t, err)
	assert.NoError(t, vm.DetachCurrentThread())
}
