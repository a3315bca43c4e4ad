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
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tradearena/arena/pkg/mcp/protocol"
	"go.uber.org/zap"
)

// maxToolPages bounds tools/list pagination against a misbehaving server.
const maxToolPages = 100

// ListTools returns every tool the server exposes, following pagination, and
// refreshes the client's tool cache. A server that is still paging after
// maxToolPages gets a warning and the tools collected so far.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var (
		all    []protocol.Tool
		cursor string
	)
	for page := 0; page < maxToolPages; page++ {
		params, err := json.Marshal(protocol.ToolListParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		resp, err := c.call(ctx, protocol.MethodToolsList, params)
		if err != nil {
			return nil, err
		}

		var result protocol.ToolListResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("failed to parse tools/list result: %w", err)
		}
		all = append(all, result.Tools...)
		cursor = result.NextCursor
		if cursor == "" {
			break
		}
	}
	if cursor != "" {
		c.logger.Warn("Tool list truncated, server kept returning a next cursor",
			zap.Int("pages", maxToolPages),
			zap.Int("tools", len(all)),
			zap.String("cursor", cursor))
	}

	c.toolsMu.Lock()
	c.tools = make(map[string]protocol.Tool, len(all))
	for _, tool := range all {
		c.tools[tool.Name] = tool
	}
	c.toolsMu.Unlock()

	return all, nil
}

// CallTool invokes a tool after validating arguments against its schema.
// A result flagged isError is returned as an error.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*protocol.CallToolResult, error) {
	tool, err := c.getTool(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateToolArguments(tool, arguments); err != nil {
		return nil, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
	}

	params, err := json.Marshal(protocol.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, protocol.MethodToolsCall, params)
	if err != nil {
		return nil, err
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools/call result: %w", err)
	}
	if result.IsError {
		if text := result.Text(); text != "" {
			return nil, fmt.Errorf("tool %s failed: %s", name, text)
		}
		return nil, fmt.Errorf("tool %s failed", name)
	}
	return &result, nil
}

func (c *Client) getTool(ctx context.Context, name string) (protocol.Tool, error) {
	c.toolsMu.RLock()
	tool, ok := c.tools[name]
	c.toolsMu.RUnlock()
	if ok {
		return tool, nil
	}

	if _, err := c.ListTools(ctx); err != nil {
		return protocol.Tool{}, err
	}

	c.toolsMu.RLock()
	tool, ok = c.tools[name]
	c.toolsMu.RUnlock()
	if !ok {
		return protocol.Tool{}, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}
