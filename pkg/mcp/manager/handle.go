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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradearena/arena/pkg/mcp/protocol"
)

// State is the lifecycle state of a tool server handle.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// ErrNotRunning is returned when calling a tool on a handle that is not running.
var ErrNotRunning = errors.New("tool server is not running")

// Tool is a tool definition tagged with the server that provides it.
type Tool struct {
	protocol.Tool
	Server string `json:"server"`
}

// Handle is one launched tool server.
type Handle struct {
	name    string
	metrics *metrics
	ready   chan struct{} // closed when starting ends

	mu         sync.RWMutex
	state      State
	client     ToolClient
	tools      []protocol.Tool
	err        error
	launchedAt time.Time
}

func newHandle(name string, m *metrics) *Handle {
	return &Handle{
		name:    name,
		metrics: m,
		ready:   make(chan struct{}),
		state:   StateStarting,
	}
}

// Name returns the server name.
func (h *Handle) Name() string {
	return h.name
}

// State reports the handle's state. A running handle whose server has gone
// away reports stopped.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state == StateRunning {
		select {
		case <-h.client.Done():
			return StateStopped
		default:
		}
	}
	return h.state
}

// LaunchedAt is when the handshake completed.
func (h *Handle) LaunchedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.launchedAt
}

// Tools returns the tools enumerated at launch.
func (h *Handle) Tools() []Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Tool, len(h.tools))
	for i, t := range h.tools {
		out[i] = Tool{Tool: t, Server: h.name}
	}
	return out
}

// CallTool invokes a tool on this server.
func (h *Handle) CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.CallToolResult, error) {
	if h.State() != StateRunning {
		return nil, fmt.Errorf("%s: %w", h.name, ErrNotRunning)
	}
	h.mu.RLock()
	c := h.client
	h.mu.RUnlock()

	start := time.Now()
	result, err := c.CallTool(ctx, name, arguments)
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.toolCalls.WithLabelValues(h.name, name, status).Inc()
	h.metrics.toolCallDuration.WithLabelValues(h.name, name).Observe(time.Since(start).Seconds())
	return result, err
}

// wait blocks until the handle leaves starting.
func (h *Handle) wait(ctx context.Context) error {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *Handle) markRunning(c ToolClient, tools []protocol.Tool, now time.Time) {
	h.mu.Lock()
	h.state = StateRunning
	h.client = c
	h.tools = tools
	h.launchedAt = now
	h.mu.Unlock()
	h.metrics.running.Inc()
	close(h.ready)
}

func (h *Handle) markFailed(err error) {
	h.mu.Lock()
	h.state = StateStopped
	h.err = err
	h.mu.Unlock()
	close(h.ready)
}

// close shuts down a running handle. It reports false when there was
// nothing to close.
func (h *Handle) close() (bool, error) {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return false, nil
	}
	h.state = StateStopping
	c := h.client
	h.mu.Unlock()

	err := c.Close()

	h.mu.Lock()
	h.state = StateStopped
	h.mu.Unlock()
	h.metrics.running.Dec()
	return true, err
}
