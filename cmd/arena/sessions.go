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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tradearena/arena/pkg/session"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored agent sessions",
	Long: `Inspect the sessions stored under the sessions directory.

Examples:
  arena sessions list
  arena sessions latest
  arena sessions show 3f0c9c1e-...
  arena sessions messages 3f0c9c1e-...
  arena sessions delete 3f0c9c1e-...`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		summaries := a.store.ListSessions()
		if sessionsJSON {
			return writeJSON(os.Stdout, summaries)
		}
		if len(summaries) == 0 {
			fmt.Println("No sessions found")
			return nil
		}
		renderSessions(os.Stdout, summaries)
		return nil
	},
}

var sessionsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently updated session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		summary, ok := a.store.GetLatestSession()
		if !ok {
			fmt.Println("No sessions found")
			return nil
		}
		return printSummary(summary)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		summary, ok := a.store.GetSession(args[0])
		if !ok {
			return fmt.Errorf("session not found: %s", args[0])
		}
		return printSummary(summary)
	},
}

var sessionsFindCmd = &cobra.Command{
	Use:   "find <agent-id>",
	Short: "Show the latest session of an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		summary, ok := a.store.FindSessionByAgent(args[0])
		if !ok {
			return fmt.Errorf("no session found for agent %s", args[0])
		}
		return printSummary(summary)
	},
}

var sessionsMessagesCmd = &cobra.Command{
	Use:   "messages <session-id>",
	Short: "Print a session's messages in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.store.Exists(args[0]) {
			return fmt.Errorf("session not found: %s", args[0])
		}
		messages, err := a.store.GetSessionMessages(args[0])
		if err != nil {
			return err
		}
		if sessionsJSON {
			return writeJSON(os.Stdout, messages)
		}
		renderMessages(os.Stdout, messages)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config)
		if err != nil {
			return err
		}
		defer a.close()

		deleted, err := a.store.DeleteSession(args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("session not found: %s", args[0])
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "print JSON instead of a table")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsLatestCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsFindCmd)
	sessionsCmd.AddCommand(sessionsMessagesCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func printSummary(s session.Summary) error {
	if sessionsJSON {
		return writeJSON(os.Stdout, s)
	}
	renderSummary(os.Stdout, s)
	return nil
}

func renderSessions(w io.Writer, summaries []session.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Agent", "Provider", "Context", "Messages", "Size", "Updated"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.SessionID,
			s.Agent.Name,
			s.Agent.ProviderDisplay,
			s.Agent.TradingContext,
			s.MessageCount,
			s.Size,
			formatTime(s.UpdatedAt),
		})
	}
	t.Render()
}

func renderSummary(w io.Writer, s session.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Session", s.SessionID},
		{"Type", s.SessionType},
		{"Agent", s.Agent.Name},
		{"Agent ID", firstNonEmpty(s.Agent.ConfigAgentID, s.Agent.AgentID)},
		{"Provider", s.Agent.ProviderDisplay},
		{"Context", s.Agent.TradingContext},
		{"Messages", s.MessageCount},
		{"Size", s.Size},
		{"Created", formatTime(s.CreatedAt)},
		{"Updated", formatTime(s.UpdatedAt)},
	})
	t.Render()
}

func renderMessages(w io.Writer, messages []session.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages")
		return
	}
	for _, m := range messages {
		fmt.Fprintf(w, "[%d] %s (%s)\n", m.ID, strings.ToUpper(m.Role), formatTime(m.CreatedAt))
		fmt.Fprintln(w, m.Content)
		fmt.Fprintln(w)
	}
}

func formatTime(ts session.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
