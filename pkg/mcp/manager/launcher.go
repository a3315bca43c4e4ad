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
	"time"

	"github.com/tradearena/arena/pkg/mcp/client"
	"github.com/tradearena/arena/pkg/mcp/protocol"
	"github.com/tradearena/arena/pkg/mcp/transport"
	"go.uber.org/zap"
)

// ToolClient is a connected MCP client as the manager uses it.
type ToolClient interface {
	Initialize(ctx context.Context, clientInfo protocol.Implementation) error
	ListTools(ctx context.Context) ([]protocol.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.CallToolResult, error)
	// Done is closed once the server can no longer answer.
	Done() <-chan struct{}
	Close() error
}

// Launcher starts a tool server from a resolved descriptor. The returned
// client has not performed the handshake yet.
type Launcher interface {
	Launch(name string, cfg ServerConfig) (ToolClient, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(name string, cfg ServerConfig) (ToolClient, error)

// Launch calls f.
func (f LauncherFunc) Launch(name string, cfg ServerConfig) (ToolClient, error) {
	return f(name, cfg)
}

// StdioLauncher runs each tool server as a subprocess speaking MCP over
// stdin and stdout.
type StdioLauncher struct {
	Logger *zap.Logger

	// CloseTimeout bounds the graceful exit wait on close
	CloseTimeout time.Duration

	// RequestTimeout bounds individual MCP requests
	RequestTimeout time.Duration
}

// Launch starts the subprocess and wraps it in an MCP client.
func (l StdioLauncher) Launch(name string, cfg ServerConfig) (ToolClient, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("server", name))

	trans, err := transport.NewStdioTransport(transport.StdioConfig{
		Command:      cfg.Command,
		Args:         cfg.Args,
		Env:          cfg.Env,
		Logger:       logger,
		CloseTimeout: l.CloseTimeout,
	})
	if err != nil {
		return nil, err
	}

	return client.NewClient(client.Config{
		Transport:      trans,
		Logger:         logger,
		RequestTimeout: l.RequestTimeout,
	}), nil
}
