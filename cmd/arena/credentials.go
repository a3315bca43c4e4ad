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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tradearena/arena/pkg/mcp/manager"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage MCP server credentials in the system keyring",
	Long: `Manage the KEY=VALUE credentials exported to MCP servers.

Credentials are looked up in this order:
  1. ARENA_MCP_CREDENTIALS environment variable
  2. System keyring (service "arena")
  3. mcp.credentials_file

Examples:
  arena credentials set ~/.arena/config/.env
  arena credentials show
  arena credentials delete`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <file>",
	Short: "Store a KEY=VALUE file in the keyring (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read credentials: %w", err)
		}

		creds, err := manager.ParseCredentials(string(data))
		if err != nil {
			return err
		}
		if err := SaveCredentials(string(data)); err != nil {
			return err
		}
		fmt.Printf("Saved %d credentials to keyring\n", len(creds))
		return nil
	},
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective credentials with values masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := manager.LoadCredentials(config.MCP.Credentials, config.MCP.CredentialsFile)
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			fmt.Println("No credentials configured")
			return nil
		}
		renderCredentials(os.Stdout, creds)
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the credentials from the keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := DeleteCredentials(); err != nil {
			return err
		}
		fmt.Println("Deleted credentials from keyring")
		return nil
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
}

func renderCredentials(w io.Writer, creds map[string]string) {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, maskSecret(creds[k])})
	}
	t.Render()
}
