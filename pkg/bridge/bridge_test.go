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

package bridge_test

import (
	"errors"
	"testing"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/managed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBridge(t *testing.T, cfg bridge.Config) *bridge.Bridge {
	return bridge.New(cfg, bridge.WithLogger(zaptest.NewLogger(t)))
}

// recorder is a managed callable recording the values it receives.
type recorder struct {
	values []int64
	fail   func(v int64) error
}

func (r *recorder) call(v int64) error {
	r.values = append(r.values, v)
	if r.fail != nil {
		return r.fail(v)
	}
	return nil
}

func TestDotProduct(t *testing.T) {
	tests := []struct {
		name string
		a, b []int64
		want int64
	}{
		{"basic", []int64{1, 2, 3}, []int64{4, 5, 6}, 32},
		{"empty", nil, nil, 0},
		{"empty and non-empty", nil, []int64{1, 2}, 0},
		{"prefix", []int64{1, 2, 3}, []int64{1, 1, 1, 100, 100}, 6},
		{"negative", []int64{-1, 2}, []int64{3, -4}, -11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bridge.DotProduct(tt.a, tt.b))
			assert.Equal(t, tt.want, bridge.DotProduct(tt.b, tt.a))
		})
	}
}

func TestBridgeDotProduct(t *testing.T) {
	for _, copyElements := range []bool{false, true} {
		rt := managed.New(managed.WithCopyElements(copyElements))
		env := rt.Env()
		b := newBridge(t, bridge.DefaultConfig())
		x := rt.NewLongArray(1, 2, 3)
		y := rt.NewLongArray(4, 5, 6, 7, 8)

		res, err := b.DotProduct(env, x, y)
		require.NoError(t, err)
		assert.Equal(t, int64(32), res)

		res, err = b.DotProductCritical(env, y, x)
		require.NoError(t, err)
		assert.Equal(t, int64(32), res)

		res, err = b.DotProductCopy(env, x, y)
		require.NoError(t, err)
		assert.Equal(t, int64(32), res)

		assert.Equal(t, 0, rt.OutstandingViews())
	}
}

func TestDotProductReleasesViews(t *testing.T) {
	rt := managed.New()
	env := rt.Env()
	b := newBridge(t, bridge.DefaultConfig())
	x := rt.NewLongArray(1, 2, 3)
	str := rt.NewString("not an array")

	for _, y := range []bridge.Ref{0, str, 4242} {
		_, err := b.DotProduct(env, x, y)
		assert.ErrorIs(t, err, bridge.ErrAcquisition)
		_, err = b.DotProductCritical(env, x, y)
		assert.ErrorIs(t, err, bridge.ErrAcquisition)
		_, err = b.DotProductCopy(env, x, y)
		assert.ErrorIs(t, err, bridge.ErrAcquisition)
		assert.Equal(t, 0, rt.OutstandingViews())
	}

	// a critical region left open would make the next call fail
	fn := rt.NewCallable(func(int64) error { return nil })
	assert.NoError(t, env.CallLong(fn, 0))

	var e *bridge.Error
	_, err := b.DotProduct(env, x, 0)
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "dotProduct", e.Op)
}

func TestWithLongArrays(t *testing.T) {
	rt := managed.New()
	env := rt.Env()
	x := rt.NewLongArray(1, 2)
	y := rt.NewLongArray(3)

	errTest := errors.New("errTest")
	err := bridge.WithLongArrays(env, bridge.AcquireCritical, []bridge.Ref{x, y}, func(elems [][]int64) error {
		assert.Equal(t, [][]int64{{1, 2}, {3}}, elems)
		assert.Equal(t, 2, rt.OutstandingViews())
		return errTest
	})
	assert.Equal(t, errTest, err)
	assert.Equal(t, 0, rt.OutstandingViews())

	assert.Panics(t, func() {
		_ = bridge.WithLongArrays(env, bridge.AcquireElements, []bridge.Ref{x, y}, func([][]int64) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, rt.OutstandingViews())
}

func TestArrayView(t *testing.T) {
	rt := managed.New(managed.WithCopyElements(true))
	env := rt.Env()
	x := rt.NewLongArray(1, 2, 3)

	v, err := bridge.AcquireLongArray(env, x, bridge.AcquireElements)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())
	assert.True(t, v.IsCopy())
	assert.Equal(t, bridge.AcquireElements, v.Mode())
	assert.Equal(t, []int64{1, 2, 3}, v.Slice())

	v.Release()
	v.Release()
	assert.Equal(t, 0, rt.OutstandingViews())
	assert.Panics(t, func() { v.Slice() })

	_, err = bridge.AcquireLongArray(env, 0, bridge.AcquireElements)
	assert.ErrorIs(t, err, bridge.ErrAcquisition)
}

func TestDotProductWithCallback(t *testing.T) {
	rt := managed.New()
	env := rt.Env()
	b := newBridge(t, bridge.DefaultConfig())
	x := rt.NewLongArray(1, 2, 3)
	y := rt.NewLongArray(4, 5, 6)

	// the callback calls into the runtime, which is only allowed
	// once the views are released
	rec := &recorder{fail: func(v int64) error {
		_, err := env.NewStringUTF("in callback")
		return err
	}}
	fn := rt.NewCallable(rec.call)

	require.NoError(t, b.DotProductWithCallback(env, x, y, fn))
	assert.Equal(t, []int64{32}, rec.values)
	assert.Equal(t, 0, rt.GlobalRefs())
	assert.Equal(t, 0, rt.OutstandingViews())

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Invocations)
	assert.Equal(t, int64(0), stats.InvocationFailures)
	assert.Equal(t, int64(0), stats.LivePins)

	// acquisition failure: the callback is not invoked and is unpinned
	err := b.DotProductWithCallback(env, x, 0, fn)
	assert.ErrorIs(t, err, bridge.ErrAcquisition)
	assert.Len(t, rec.values, 1)
	assert.Equal(t, 0, rt.GlobalRefs())

	// invocation failure
	errThrown := errors.New("thrown")
	failing := rt.NewCallable(func(int64) error { return errThrown })
	err = b.DotProductWithCallback(env, x, y, failing)
	assert.ErrorIs(t, err, bridge.ErrInvocation)
	assert.ErrorIs(t, err, errThrown)
	assert.Equal(t, 0, rt.GlobalRefs())
	assert.Equal(t, int64(1), b.Stats().InvocationFailures)

	// null callback
	err = b.DotProductWithCallback(env, x, y, 0)
	assert.ErrorIs(t, err, bridge.ErrPin)
}

func TestEcho(t *testing.T) {
	rt := managed.New()
	env := rt.Env()
	b := newBridge(t, bridge.DefaultConfig())

	out, err := b.Echo(env, rt.NewString("World"))
	require.NoError(t, err)
	s, err := rt.String(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", s)

	out, err = b.Echo(env, rt.NewString(""))
	require.NoError(t, err)
	s, _ = rt.String(out)
	assert.Equal(t, "Hello ", s)

	cfg := bridge.DefaultConfig()
	cfg.Greeting = "Ciao"
	out, err = newBridge(t, cfg).Echo(env, rt.NewString("mondo"))
	require.NoError(t, err)
	s, _ = rt.String(out)
	assert.Equal(t, "Ciao mondo", s)

	_, err = b.Echo(env, rt.NewRawString([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, bridge.ErrDecode)
	_, err = b.Echo(env, 0)
	assert.ErrorIs(t, err, bridge.ErrDecode)
}

func TestEchoAllocationFailure(t *testing.T) {
	rt := managed.New(managed.WithMaxObjects(1))
	b := newBridge(t, bridge.DefaultConfig())

	_, err := b.Echo(rt.Env(), rt.NewString("World"))
	assert.ErrorIs(t, err, bridge.ErrAllocation)
}

func TestScalars(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 62, -1 << 63} {
		assert.Equal(t, v, bridge.ToNativeI64(v))
		assert.Equal(t, v, bridge.ToManagedI64(bridge.ToNativeI64(v)))
	}
}

func BenchmarkDotProduct(b *testing.B) {
	rt := managed.New()
	env := rt.Env()
	br := bridge.New(bridge.DefaultConfig())
	values := make([]int64, 1024)
	for i := range values {
		values[i] = int64(i)
	}
	x := rt.NewLongArray(values...)
	y := rt.NewLongArray(values...)

	for _, mode := range []struct {
		name string
		fn   func(bridge.Env, bridge.Ref, bridge.Ref) (int64, error)
	}{
		{"elements", br.DotProduct},
		{"critical", br.DotProductCritical},
		{"copy", br.DotProductCopy},
	} {
		b.Run(mode.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := mode.fn(env, x, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCounterIncrement(b *testing.B) {
	rt := managed.New()
	env := rt.Env()
	br := bridge.New(bridge.DefaultConfig())
	token, err := br.CounterCreate(env, rt.NewCallable(func(int64) error { return nil }))
	if err != nil {
		b.Fatal(err)
	}
	defer br.CounterDestroy(env, token)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := br.CounterIncrement(env, token); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
