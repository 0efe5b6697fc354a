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
	"encoding/json"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap/zapcore"
)

// InitSchema is the JSON schema of the init configuration of a Bridge.
const InitSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "greeting": {
      "type": "string",
      "description": "Prefix prepended by echo"
    },
    "logLevel": {
      "type": "string",
      "enum": ["debug", "info", "warn", "error"]
    },
    "progress": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "steps": {
          "type": "integer",
          "minimum": 1,
          "maximum": 10000,
          "description": "Number of progress notifications"
        },
        "step": {
          "type": "integer",
          "minimum": -1000000000000,
          "maximum": 1000000000000,
          "description": "Increment between two progress values"
        },
        "intervalMs": {
          "type": "integer",
          "minimum": 0,
          "description": "Pause between two notifications, in milliseconds"
        }
      }
    }
  }
}`

const (
	DefaultGreeting           = "Hello"
	DefaultProgressSteps      = 11
	DefaultProgressStep       = 10
	DefaultProgressIntervalMs = 1000
)

// ProgressConfig configures the progress worker.
type ProgressConfig struct {
	Steps      int   `json:"steps"`
	Step       int64 `json:"step"`
	IntervalMs int64 `json:"intervalMs"`
}

// Interval returns the pause between two notifications.
func (p ProgressConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// Config is the init configuration of a Bridge.
type Config struct {
	Greeting string         `json:"greeting"`
	LogLevel string         `json:"logLevel"`
	Progress ProgressConfig `json:"progress"`
}

// DefaultConfig returns the configuration used when none is provided:
// 11 notifications with values 0, 10, ..., 100 one second apart.
func DefaultConfig() Config {
	return Config{
		Greeting: DefaultGreeting,
		LogLevel: "info",
		Progress: ProgressConfig{
			Steps:      DefaultProgressSteps,
			Step:       DefaultProgressStep,
			IntervalMs: DefaultProgressIntervalMs,
		},
	}
}

// Level returns the log level of the configuration.
func (c Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(c.LogLevel)
}

// ParseConfig validates the JSON document s against InitSchema and decodes
// it on top of DefaultConfig. An empty document yields DefaultConfig.
func ParseConfig(s string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(s) == "" {
		return cfg, nil
	}

	schema := gojsonschema.NewStringLoader(InitSchema)
	document := gojsonschema.NewStringLoader(s)
	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return cfg, newError("", KindConfig, "malformed document", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return cfg, newError("", KindConfig, strings.Join(msgs, "; "), nil)
	}

	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return cfg, newError("", KindConfig, "malformed document", err)
	}
	return cfg, nil
}
