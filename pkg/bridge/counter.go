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
	"sync"

	"github.com/falcosecurity/native-bridge-go/pkg/cgo"
	"go.uber.org/zap"
)

// Counter is native state that the managed side can only reach through
// an opaque token. Each increment bumps the count and notifies the pinned
// callback with the new value. The counter and its pin live until the
// token is explicitly destroyed.
type Counter struct {
	owner    *Bridge
	mu       sync.Mutex
	count    int64
	callback *Callback
	closed   bool
}

func tokenHandle(token int64) cgo.Handle {
	return cgo.Handle(uintptr(token))
}

func invalidToken(token int64) error {
	return newError("", KindInvalidToken, fmt.Sprintf("token %d does not name a live counter", token), nil)
}

// lookupCounter resolves token into a counter created by b.
func (b *Bridge) lookupCounter(token int64) (*Counter, error) {
	if token <= 0 {
		return nil, invalidToken(token)
	}
	v, ok := tokenHandle(token).Load()
	if !ok {
		return nil, invalidToken(token)
	}
	c, ok := v.(*Counter)
	if !ok || c.owner != b {
		return nil, invalidToken(token)
	}
	return c, nil
}

// CounterCreate pins callback, allocates a counter with count zero and
// returns the token designating it.
func (b *Bridge) CounterCreate(env Env, callback Ref) (int64, error) {
	const op = "counterCreate"
	if err := b.checkOpen(op); err != nil {
		return 0, err
	}
	cb, err := b.pin(env, callback)
	if err != nil {
		return 0, withOp(op, err)
	}

	c := &Counter{owner: b, callback: cb}
	h, ok := cgo.TryNewHandle(c)
	if !ok {
		cb.Release(env)
		return 0, newError(op, KindAllocation, fmt.Sprintf("no token available, %d in use", cgo.MaxHandle), nil)
	}
	b.mu.Lock()
	b.counters[int64(h)] = struct{}{}
	b.mu.Unlock()
	b.stats.LiveCounters().Add(1)
	b.log.Debug("counter created", zap.Int64("token", int64(h)), zap.Uint64("callback", uint64(cb.Ref())))
	return int64(h), nil
}

// CounterIncrement bumps the count of the counter designated by token by
// one, then invokes its callback with the new count on the calling thread.
//
// Increments of the same counter are serialized. The callback is invoked
// outside of the counter lock, holding its own owner of the pin, so it may
// call back into the counter and a concurrent destroy never unpins it
// mid-invocation.
func (b *Bridge) CounterIncrement(env Env, token int64) error {
	const op = "counterIncrement"
	c, err := b.lookupCounter(token)
	if err != nil {
		return withOp(op, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return withOp(op, invalidToken(token))
	}
	c.count++
	value := c.count
	cb := c.callback.Clone()
	c.mu.Unlock()

	defer cb.Release(env)
	if err := b.invoke(env, cb, value); err != nil {
		return withOp(op, err)
	}
	return nil
}

// CounterValue returns the current count of the counter designated by token.
func (b *Bridge) CounterValue(token int64) (int64, error) {
	c, err := b.lookupCounter(token)
	if err != nil {
		return 0, withOp("counterValue", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, withOp("counterValue", invalidToken(token))
	}
	return c.count, nil
}

// CounterDestroy invalidates token and releases the counter, unpinning
// its callback. Any later use of the token fails with an invalid token
// error.
func (b *Bridge) CounterDestroy(env Env, token int64) error {
	const op = "counterDestroy"
	if _, err := b.lookupCounter(token); err != nil {
		return withOp(op, err)
	}
	v, ok := tokenHandle(token).Take()
	if !ok {
		// destroyed concurrently
		return withOp(op, invalidToken(token))
	}
	c := v.(*Counter)
	b.mu.Lock()
	delete(b.counters, token)
	b.mu.Unlock()

	c.mu.Lock()
	c.closed = true
	cb := c.callback
	c.callback = nil
	count := c.count
	c.mu.Unlock()

	cb.Release(env)
	b.stats.LiveCounters().Add(-1)
	b.log.Debug("counter destroyed", zap.Int64("token", token), zap.Int64("count", count))
	return nil
}

// destroyCounters releases every counter still owned by b.
func (b *Bridge) destroyCounters(env Env) {
	b.mu.Lock()
	tokens := make([]int64, 0, len(b.counters))
	for t := range b.counters {
		tokens = append(tokens, t)
	}
	b.mu.Unlock()
	for _, t := range tokens {
		_ = b.CounterDestroy(env, t)
	}
}
