// Copyright 2026 The TradeArena Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package manager

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	launches         *prometheus.CounterVec
	launchFailures   *prometheus.CounterVec
	closes           *prometheus.CounterVec
	running          prometheus.Gauge
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_mcp_launches_total",
				Help: "Total number of tool server launches",
			},
			[]string{"server"},
		),
		launchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_mcp_launch_failures_total",
				Help: "Total number of tool server launches that failed to reach running",
			},
			[]string{"server"},
		),
		closes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_mcp_closes_total",
				Help: "Total number of running tool servers closed",
			},
			[]string{"server"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arena_mcp_running_handles",
				Help: "Number of tool server handles currently running",
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_mcp_tool_calls_total",
				Help: "Total number of MCP tool calls",
			},
			[]string{"server", "tool", "status"},
		),
		toolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arena_mcp_tool_call_duration_seconds",
				Help:    "MCP tool call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"server", "tool"},
		),
	}
	if reg == nil {
		return m
	}

	m.launches = register(reg, m.launches)
	m.launchFailures = register(reg, m.launchFailures)
	m.closes = register(reg, m.closes)
	m.running = register(reg, m.running)
	m.toolCalls = register(reg, m.toolCalls)
	m.toolCallDuration = register(reg, m.toolCallDuration)
	return m
}

// register adds c to reg, reusing an identical collector that is already
// registered so several managers can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
