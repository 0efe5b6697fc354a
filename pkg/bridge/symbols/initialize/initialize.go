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

// This package exports the C functions bridge_init() and bridge_destroy(),
// which create and release a bridge instance.
package initialize

/*
#include <stdint.h>
*/
import "C"
import (
	"unsafe"

	"github.com/falcosecurity/native-bridge-go/pkg/bridge"
	"github.com/falcosecurity/native-bridge-go/pkg/bridge/symbols/internal/instance"
	"github.com/falcosecurity/native-bridge-go/pkg/cgo"
	"github.com/falcosecurity/native-bridge-go/pkg/host"
	"github.com/falcosecurity/native-bridge-go/pkg/ptr"
	"go.uber.org/zap"
)

// NewLoggerFn builds the logger of a new bridge instance.
type NewLoggerFn func(cfg bridge.Config) (*zap.Logger, error)

var (
	newLogger NewLoggerFn = productionLogger
)

// SetNewLogger sets the function used by bridge_init to build the logger
// of each instance. By default, a zap production logger at the configured
// level is used.
func SetNewLogger(fn NewLoggerFn) {
	if fn == nil {
		panic("native-bridge-go/bridge/symbols/initialize.SetNewLogger: fn must not be nil")
	}
	newLogger = fn
}

func productionLogger(cfg bridge.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newInstance(api unsafe.Pointer, config string) (*instance.Instance, error) {
	hostAPI, err := host.NewAPI(api)
	if err != nil {
		return nil, err
	}
	cfg, err := bridge.ParseConfig(config)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	b := bridge.New(cfg, bridge.WithLogger(log))
	log.Debug("bridge initialized", zap.String("greeting", cfg.Greeting), zap.Int("progressSteps", cfg.Progress.Steps))
	return instance.New(b, hostAPI), nil
}

// bridge_init creates a bridge instance. The config string is only parsed
// during the call, and is not retained after it returns.
//
//export bridge_init
func bridge_init(api unsafe.Pointer, config *C.char, rc *int32) C.uintptr_t {
	i, err := newInstance(api, ptr.GoString(unsafe.Pointer(config)))
	if err != nil {
		i = instance.New(nil, nil)
		i.SetLastError(err)
		*rc = instance.BridgeFailure
	} else {
		*rc = instance.BridgeSuccess
	}
	return (C.uintptr_t)(cgo.NewHandle(i))
}

// bridge_destroy stops the progress workers of the instance and destroys
// its remaining counters through env. A null env leaves the counter pins to
// the runtime.
//
//export bridge_destroy
func bridge_destroy(b C.uintptr_t, env unsafe.Pointer) {
	if b == 0 {
		return
	}
	handle := cgo.Handle(b)
	i, ok := instance.Load(uintptr(b))
	if !ok {
		return
	}
	if i.Bridge != nil {
		var e bridge.Env
		if env != nil {
			e = i.Env(env)
		}
		i.Bridge.Close(e)
		_ = i.Bridge.Logger().Sync()
	}
	i.Free()
	handle.Delete()
}
