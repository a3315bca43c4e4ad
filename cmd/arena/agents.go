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
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tradearena/arena/pkg/agentconfig"
)

var (
	agentName     string
	agentProvider string
	agentContext  string
	agentSettings []string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the agent registry",
	Long: `Manage the trading agents in the agent registry.

Secrets are never printed: sensitive provider settings are masked.

Examples:
  arena agents list
  arena agents show agent_1a2b3c4d
  arena agents create --provider anthropic --context cronos --set api_key=sk-... --set max_tokens=2048
  arena agents delete agent_1a2b3c4d`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		agents := a.registry.List()
		if len(agents) == 0 {
			fmt.Println("No agents configured")
			return nil
		}
		renderAgents(os.Stdout, agents)
		return nil
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent with secrets masked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		agent, ok := a.registry.Get(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", agentconfig.ErrAgentNotFound, args[0])
		}
		renderAgent(os.Stdout, agent)
		return nil
	},
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := parseSettings(agentSettings)
		if err != nil {
			return err
		}

		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		agent, err := a.registry.Create(agentName, agentProvider, agentContext, settings)
		if err != nil {
			return err
		}
		fmt.Printf("Created agent %s (%s)\n", agent.ID, agent.Name)
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Remove an agent from the registry",
	Long: `Remove an agent from the registry.

Sessions of the agent stay on disk but can no longer be resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.registry.Delete(args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %s", agentconfig.ErrAgentNotFound, args[0])
		}
		fmt.Printf("Deleted agent %s\n", args[0])
		return nil
	},
}

func init() {
	agentsCreateCmd.Flags().StringVar(&agentName, "name", "", "display name (default: \"<provider> - <context>\")")
	agentsCreateCmd.Flags().StringVar(&agentProvider, "provider", "", "provider id (bedrock, anthropic, gemini, openai, ...)")
	agentsCreateCmd.Flags().StringVar(&agentContext, "context", "", "trading context (e.g. cronos)")
	agentsCreateCmd.Flags().StringArrayVar(&agentSettings, "set", nil, "provider setting as key=value (repeatable)")
	_ = agentsCreateCmd.MarkFlagRequired("provider")
	_ = agentsCreateCmd.MarkFlagRequired("context")

	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsCreateCmd)
	agentsCmd.AddCommand(agentsDeleteCmd)
}

func renderAgents(w io.Writer, agents []agentconfig.AgentConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Provider", "Context"})
	for _, agent := range agents {
		t.AppendRow(table.Row{
			agent.ID,
			agent.Name,
			agentconfig.DisplayName(agent.Provider),
			agentconfig.ContextDisplayName(agent.TradingContext),
		})
	}
	t.Render()
}

func renderAgent(w io.Writer, agent agentconfig.AgentConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"ID", agent.ID},
		{"Name", agent.Name},
		{"Provider", agentconfig.DisplayName(agent.Provider)},
		{"Context", agentconfig.ContextDisplayName(agent.TradingContext)},
	})

	keys := make([]string, 0, len(agent.Config))
	for k := range agent.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		t.AppendSeparator()
	}
	for _, k := range keys {
		value := fmt.Sprint(agent.Config[k])
		if agentconfig.IsSensitive(k) {
			value = maskSecret(value)
		}
		t.AppendRow(table.Row{k, value})
	}
	t.Render()
}

// parseSettings turns key=value pairs into a provider config map. Values
// that parse as bool, int or float keep that type.
func parseSettings(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	settings := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q (want key=value)", pair)
		}
		settings[key] = inferType(strings.TrimSpace(value))
	}
	return settings, nil
}

func inferType(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
