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
	"sync"

	"go.uber.org/zap"
)

// Bridge implements the native entry points called by a managed runtime.
// Every entry point receives the Env of the calling thread. A Bridge is safe
// for concurrent use, although a given counter token is expected to be used
// by one thread at a time.
type Bridge struct {
	cfg   Config
	log   *zap.Logger
	stats Stats

	mu       sync.Mutex
	closed   bool
	counters map[int64]struct{}
	tasks    map[*ProgressTask]struct{}
	wg       sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger of the Bridge. By default, the package
// logger is used (see SetLogger).
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.log = l
	}
}

// New creates a Bridge with the given configuration.
func New(cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		counters: make(map[int64]struct{}),
		tasks:    make(map[*ProgressTask]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = Logger()
	}
	return b
}

// Config returns the configuration of b.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Logger returns the logger of b.
func (b *Bridge) Logger() *zap.Logger {
	return b.log
}

// Stats returns a snapshot of the metrics of b.
func (b *Bridge) Stats() StatsSnapshot {
	return b.stats.Snapshot()
}

// Close stops every running progress worker and waits for them to release
// their pins. If env is not nil, the counters that have not been destroyed
// are destroyed through it, otherwise their pins are left to the runtime.
// Entry points that create new state fail after Close.
func (b *Bridge) Close(env Env) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for t := range b.tasks {
		t.Cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	if env != nil {
		b.destroyCounters(env)
	} else if n := b.stats.LiveCounters().Value(); n > 0 {
		b.log.Warn("closing with live counters", zap.Int64("counters", n))
	}
}

func (b *Bridge) checkOpen(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return newError(op, KindClosed, "", nil)
	}
	return nil
}

func (b *Bridge) pin(env Env, obj Ref) (*Callback, error) {
	cb, err := pinWith(env, obj, func() { b.stats.LivePins().Add(-1) })
	if err != nil {
		return nil, err
	}
	b.stats.LivePins().Add(1)
	return cb, nil
}

func (b *Bridge) invoke(env Env, cb *Callback, value int64) error {
	b.stats.Invocations().Add(1)
	if err := cb.Invoke(env, value); err != nil {
		b.stats.InvocationFailures().Add(1)
		return err
	}
	return nil
}

// DotProduct returns the sum of the pairwise products of a and b. When the
// lengths differ, only the first min(len(a), len(b)) pairs are used.
func DotProduct(a, b []int64) int64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum int64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Echo returns a new managed string made of the configured greeting,
// a space, and text.
func (b *Bridge) Echo(env Env, text Ref) (Ref, error) {
	const op = "echo"
	s, err := ToNativeString(env, text)
	if err != nil {
		return 0, withOp(op, err)
	}
	out, err := ToManagedString(env, b.cfg.Greeting+" "+s)
	if err != nil {
		return 0, withOp(op, err)
	}
	return out, nil
}

func (b *Bridge) dotProduct(op string, env Env, mode AcquireMode, x, y Ref) (int64, error) {
	var res int64
	err := WithLongArrays(env, mode, []Ref{x, y}, func(elems [][]int64) error {
		res = DotProduct(elems[0], elems[1])
		return nil
	})
	if err != nil {
		return 0, withOp(op, err)
	}
	return res, nil
}

// DotProduct computes the dot product of two managed int64 arrays, over
// views acquired with AcquireElements.
func (b *Bridge) DotProduct(env Env, x, y Ref) (int64, error) {
	return b.dotProduct("dotProduct", env, AcquireElements, x, y)
}

// DotProductCritical is the same as DotProduct, but asks the runtime not to
// copy the arrays.
func (b *Bridge) DotProductCritical(env Env, x, y Ref) (int64, error) {
	return b.dotProduct("dotProductCritical", env, AcquireCritical, x, y)
}

// DotProductCopy is the same as DotProduct, but copies the arrays into
// native memory instead of viewing them.
func (b *Bridge) DotProductCopy(env Env, x, y Ref) (int64, error) {
	const op = "dotProductCopy"
	a, err := CopyLongArray(env, x)
	if err != nil {
		return 0, withOp(op, err)
	}
	c, err := CopyLongArray(env, y)
	if err != nil {
		return 0, withOp(op, err)
	}
	return DotProduct(a, c), nil
}

// DotProductWithCallback computes the dot product of two managed int64
// arrays and passes it to callback. The array views are released before
// the callback is invoked.
func (b *Bridge) DotProductWithCallback(env Env, x, y, callback Ref) error {
	const op = "dotProductWithCallback"
	cb, err := b.pin(env, callback)
	if err != nil {
		return withOp(op, err)
	}
	defer cb.Release(env)

	res, err := b.dotProduct(op, env, AcquireElements, x, y)
	if err != nil {
		return err
	}
	if err := b.invoke(env, cb, res); err != nil {
		return withOp(op, err)
	}
	return nil
}
