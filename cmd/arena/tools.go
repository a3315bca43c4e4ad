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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tradearena/arena/pkg/mcp/manager"
)

var (
	toolsShowMetrics bool
	toolArgs         string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and exercise MCP tool servers",
	Long: `Inspect the MCP server registry and the tools each trading context gets.

Examples:
  arena tools servers
  arena tools list cronos
  arena tools call cronos get_token_price --args '{"symbol":"CRO"}'`,
}

var toolsServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured servers and the contexts that use them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		renderServers(os.Stdout, a.toolManager(config).Config())
		return nil
	},
}

var toolsListCmd = &cobra.Command{
	Use:   "list <trading-context>",
	Short: "Launch a context's servers and list their tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		m := a.toolManager(config)
		tools, _ := m.GetToolsForContext(cmd.Context(), args[0])
		renderTools(os.Stdout, tools)
		renderHandles(os.Stdout, m.Handles())
		if toolsShowMetrics {
			return renderMetrics(os.Stdout, a.metrics)
		}
		return nil
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <trading-context> <tool>",
	Short: "Call one tool and print its text result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arguments map[string]any
		if toolArgs != "" {
			if err := json.Unmarshal([]byte(toolArgs), &arguments); err != nil {
				return fmt.Errorf("invalid --args: %w", err)
			}
		}

		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		tools, handles := a.toolManager(config).GetToolsForContext(cmd.Context(), args[0])
		result, err := callTool(cmd.Context(), tools, handles, args[1], arguments)
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

func init() {
	toolsListCmd.Flags().BoolVar(&toolsShowMetrics, "metrics", false, "print manager metrics after listing")
	toolsCallCmd.Flags().StringVar(&toolArgs, "args", "", "tool arguments as a JSON object")

	toolsCmd.AddCommand(toolsServersCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}

// callTool routes a call to the server that advertised the tool.
func callTool(ctx context.Context, tools []manager.Tool, handles map[string]*manager.Handle, name string, arguments map[string]any) (string, error) {
	for _, tool := range tools {
		if tool.Name != name {
			continue
		}
		h, ok := handles[tool.Server]
		if !ok {
			break
		}
		result, err := h.CallTool(ctx, name, arguments)
		if err != nil {
			return "", err
		}
		return result.Text(), nil
	}
	return "", fmt.Errorf("tool %q is not available", name)
}

func renderServers(w io.Writer, cfg manager.Config) {
	usedBy := make(map[string][]string)
	for _, tc := range cfg.Contexts() {
		for _, server := range cfg.RequiredServers(tc) {
			usedBy[server] = append(usedBy[server], tc)
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Server", "Command", "Contexts", "Unresolved"})
	for _, name := range cfg.ServerNames() {
		server := cfg.Servers[name]
		command := strings.TrimSpace(server.Command + " " + strings.Join(server.Args, " "))
		t.AppendRow(table.Row{
			name,
			command,
			strings.Join(usedBy[name], ", "),
			strings.Join(server.Resolve().Unresolved(), ", "),
		})
	}
	t.Render()
}

func renderTools(w io.Writer, tools []manager.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "No tools available")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Tool", "Server", "Description"})
	for _, tool := range tools {
		t.AppendRow(table.Row{tool.Name, tool.Server, tool.Description})
	}
	t.Render()
}

func renderHandles(w io.Writer, states map[string]manager.State) {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Server", "State"})
	for _, name := range names {
		t.AppendRow(table.Row{name, string(states[name])})
	}
	t.Render()
}

// renderMetrics prints every gathered sample as one row.
func renderMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Labels", "Value"})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				value = fmt.Sprint(m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("count=%d sum=%g", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
			t.AppendRow(table.Row{mf.GetName(), strings.Join(labels, ","), value})
		}
	}
	t.Render()
	return nil
}
