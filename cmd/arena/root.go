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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tradearena/arena/internal/version"
)

var (
	cfgFile string
	config  *Config
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "TradeArena - trading agent sessions and tool servers",
	Long: `arena works with the TradeArena data directory: it lists and resumes agent
sessions, shows configured agents, and launches the MCP tool servers each
trading context needs.`,
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $ARENA_DATA_DIR/arena.yaml)")

	rootCmd.PersistentFlags().String("sessions-dir", "", "session storage directory")
	rootCmd.PersistentFlags().String("agents-file", "", "agent registry file")
	rootCmd.PersistentFlags().String("mcp-config", "", "MCP server registry file")
	rootCmd.PersistentFlags().Duration("handshake-timeout", 0, "MCP handshake timeout")
	rootCmd.PersistentFlags().String("tool-lifetime", "", "tool server lifetime (session, turn, request)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	_ = viper.BindPFlag("sessions.dir", rootCmd.PersistentFlags().Lookup("sessions-dir"))
	_ = viper.BindPFlag("agents.file", rootCmd.PersistentFlags().Lookup("agents-file"))
	_ = viper.BindPFlag("mcp.config_file", rootCmd.PersistentFlags().Lookup("mcp-config"))
	_ = viper.BindPFlag("mcp.handshake_timeout", rootCmd.PersistentFlags().Lookup("handshake-timeout"))
	_ = viper.BindPFlag("orchestrator.tool_lifetime", rootCmd.PersistentFlags().Lookup("tool-lifetime"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(credentialsCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
