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
	"context"
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// ProgressTask is the handle of a running progress worker.
//
// A progress worker runs on its own goroutine, locked to an OS thread for
// its whole life, because the runtime attachment is bound to the thread and
// not to the goroutine. StartProgress blocks until the worker closes the
// Started channel, which is its very first action, but does not wait for
// the notifications to be sent.
//
// The worker owns its Callback and drops the pin through its own Env right
// before detaching. If the thread cannot be attached there is no Env to
// unpin through, and the pin is leaked and logged.
type ProgressTask struct {
	started chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	err     error
}

// Started is closed as soon as the worker goroutine is running.
func (t *ProgressTask) Started() <-chan struct{} {
	return t.started
}

// Done is closed when the worker has terminated and released its resources.
func (t *ProgressTask) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that terminated the worker, or nil if the worker
// completed all its notifications. It must only be called after Done
// is closed.
func (t *ProgressTask) Err() error {
	return t.err
}

// Cancel asks the worker to stop. The request is checked between two
// notifications.
func (t *ProgressTask) Cancel() {
	t.cancel()
}

// Wait blocks until the worker terminates and returns its error, or until
// ctx is done.
func (t *ProgressTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartProgress starts a progress worker notifying callback with the
// values 0, step, 2*step, ... (steps values in total), pausing the
// configured interval between two notifications. It returns as soon as
// the worker goroutine has started.
//
// The worker stops early when ctx is done, when the task is canceled, when
// the bridge is closed, or at the first failed invocation.
func (b *Bridge) StartProgress(ctx context.Context, env Env, callback Ref) (*ProgressTask, error) {
	const op = "startAsyncProgress"
	if err := b.checkOpen(op); err != nil {
		return nil, err
	}
	cb, err := b.pin(env, callback)
	if err != nil {
		return nil, withOp(op, err)
	}
	vm, err := env.VM()
	if err != nil {
		cb.Release(env)
		return nil, newError(op, KindAttach, "runtime is not transferable", err)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &ProgressTask{
		started: make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		cb.Release(env)
		return nil, newError(op, KindClosed, "", nil)
	}
	b.tasks[t] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	b.stats.LiveWorkers().Add(1)
	go b.runProgress(taskCtx, vm, cb, t)

	// rendezvous: do not return before the worker is running
	<-t.started
	return t, nil
}

// StartAsyncProgress is the fire-and-forget form of StartProgress. Once it
// returns, the outcome of the worker is not observable by the caller, and
// failures are only logged. Workers are still stopped by Close.
func (b *Bridge) StartAsyncProgress(env Env, callback Ref) error {
	_, err := b.StartProgress(context.Background(), env, callback)
	return err
}

func (b *Bridge) runProgress(ctx context.Context, vm VM, cb *Callback, t *ProgressTask) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	close(t.started)

	t.err = b.notifyProgress(ctx, vm, cb)
	switch {
	case t.err == nil:
		b.log.Debug("progress worker completed")
	case errors.Is(t.err, context.Canceled), errors.Is(t.err, context.DeadlineExceeded):
		b.log.Debug("progress worker stopped", zap.Error(t.err))
	default:
		b.log.Warn("progress worker failed", zap.Error(t.err))
	}

	t.cancel()
	b.stats.LiveWorkers().Add(-1)
	b.mu.Lock()
	delete(b.tasks, t)
	b.mu.Unlock()
	close(t.done)
	b.wg.Done()
}

func (b *Bridge) notifyProgress(ctx context.Context, vm VM, cb *Callback) (err error) {
	env, err := vm.AttachCurrentThread()
	if err != nil {
		b.log.Warn("leaking callback pin, worker thread could not attach", zap.Uint64("callback", uint64(cb.Ref())))
		return newError("", KindAttach, "worker thread", err)
	}
	defer func() {
		cb.Release(env)
		if derr := vm.DetachCurrentThread(); derr != nil && err == nil {
			err = newError("", KindAttach, "detach of worker thread", derr)
		}
	}()

	cfg := b.cfg.Progress
	var timer *time.Timer
	for i := 0; i < cfg.Steps; i++ {
		if i > 0 && cfg.Interval() > 0 {
			if timer == nil {
				timer = time.NewTimer(cfg.Interval())
				defer timer.Stop()
			} else {
				timer.Reset(cfg.Interval())
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.invoke(env, cb, int64(i)*cfg.Step); err != nil {
			return err
		}
	}
	return nil
}
