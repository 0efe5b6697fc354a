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

import "sync/atomic"

// Metric is an int64 value that is safe for concurrent updates. Depending
// on its use it is either a monotonic counter or a gauge.
type Metric struct {
	v atomic.Int64
}

// Add adds v to the metric. Gauges accept negative values.
func (m *Metric) Add(v int64) {
	m.v.Add(v)
}

// Value returns the current value of the metric.
func (m *Metric) Value() int64 {
	return m.v.Load()
}

// Stats collects the metrics of a Bridge instance.
type Stats struct {
	counters    Metric
	pins        Metric
	workers     Metric
	invocations Metric
	failures    Metric
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	// LiveCounters is the number of counters created and not yet destroyed
	LiveCounters int64 `json:"liveCounters"`
	// LivePins is the number of managed callbacks currently pinned
	LivePins int64 `json:"livePins"`
	// LiveWorkers is the number of progress workers still running
	LiveWorkers int64 `json:"liveWorkers"`
	// Invocations is the number of callback invocations attempted
	Invocations int64 `json:"invocations"`
	// InvocationFailures is the number of invocations that raised
	InvocationFailures int64 `json:"invocationFailures"`
}

// LiveCounters returns the gauge of live counters.
func (s *Stats) LiveCounters() *Metric { return &s.counters }

// LivePins returns the gauge of pinned callbacks.
func (s *Stats) LivePins() *Metric { return &s.pins }

// LiveWorkers returns the gauge of running progress workers.
func (s *Stats) LiveWorkers() *Metric { return &s.workers }

// Invocations returns the counter of callback invocations.
func (s *Stats) Invocations() *Metric { return &s.invocations }

// InvocationFailures returns the counter of failed callback invocations.
func (s *Stats) InvocationFailures() *Metric { return &s.failures }

// Snapshot returns the current value of every metric.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		LiveCounters:       s.counters.Value(),
		LivePins:           s.pins.Value(),
		LiveWorkers:        s.workers.Value(),
		Invocations:        s.invocations.Value(),
		InvocationFailures: s.failures.Value(),
	}
}
