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

// bridge-demo drives the bridge from an in-process managed runtime: it says
// hello, computes dot products, counts with a callback and waits for an
// async progress worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/managed"
	"go.uber.org/zap"
)

func main() {
	config := flag.String("config", "", "init configuration, as a JSON document")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if err := run(*config, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(config string, verbose bool) error {
	cfg, err := bridge.ParseConfig(config)
	if err != nil {
		return err
	}

	zcfg := zap.NewDevelopmentConfig()
	if !verbose {
		lvl, err := cfg.Level()
		if err != nil {
			return err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer log.Sync()
	bridge.SetLogger(log)

	rt := managed.New(managed.WithLogger(log.Named("runtime")))
	env := rt.Env()
	b := bridge.New(cfg)
	defer b.Close(env)

	out, err := b.Echo(env, rt.NewString("World"))
	if err != nil {
		return err
	}
	s, err := rt.String(out)
	if err != nil {
		return err
	}
	fmt.Println(s)

	x := rt.NewLongArray(1, 2, 3)
	y := rt.NewLongArray(4, 5, 6)
	res, err := b.DotProduct(env, x, y)
	if err != nil {
		return err
	}
	fmt.Println("dotProduct:", res)
	res, err = b.DotProductCritical(env, x, y)
	if err != nil {
		return err
	}
	fmt.Println("dotProductCritical:", res)

	callback := rt.NewCallable(func(v int64) error {
		fmt.Println("callback:", v)
		return nil
	})
	if err := b.DotProductWithCallback(env, x, y, callback); err != nil {
		return err
	}

	token, err := b.CounterCreate(env, rt.NewCallable(func(v int64) error {
		fmt.Println("counter:", v)
		return nil
	}))
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := b.CounterIncrement(env, token); err != nil {
			return err
		}
	}
	if err := b.CounterDestroy(env, token); err != nil {
		return err
	}

	task, err := b.StartProgress(context.Background(), env, rt.NewCallable(func(v int64) error {
		fmt.Printf("progress: %d%%\n", v)
		return nil
	}))
	if err != nil {
		return err
	}
	fmt.Println("async computation started")
	<-task.Done()
	if err := task.Err(); err != nil {
		return err
	}

	rt.GC()
	log.Info("done", zap.Any("stats", b.Stats()))
	return nil
}
