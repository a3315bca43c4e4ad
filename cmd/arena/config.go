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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	arenaconfig "github.com/tradearena/arena/pkg/config"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName for keyring storage
	ServiceName = "arena"
	// DefaultConfigFileName is the name of the config file
	DefaultConfigFileName = "arena"
	// CredentialsKey is the keyring entry holding the MCP credentials blob
	CredentialsKey = "mcp_credentials"
	// CredentialsEnv overrides both keyring and file credentials
	CredentialsEnv = "ARENA_MCP_CREDENTIALS"
)

// Config holds all configuration for the arena CLI.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	// DataDir is computed from ARENA_DATA_DIR and is not read from the file.
	DataDir string `mapstructure:"-"`

	Sessions     SessionsConfig     `mapstructure:"sessions"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	MCP          MCPConfig          `mapstructure:"mcp"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
}

// SessionsConfig locates session storage.
type SessionsConfig struct {
	Dir string `mapstructure:"dir"`
}

// AgentsConfig locates the agent registry.
type AgentsConfig struct {
	File string `mapstructure:"file"`
	// Watch reloads the registry when the file changes (resume only).
	Watch bool `mapstructure:"watch"`
}

// MCPConfig configures the tool server manager.
type MCPConfig struct {
	ConfigFile       string        `mapstructure:"config_file"`
	CredentialsFile  string        `mapstructure:"credentials_file"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ClientName       string        `mapstructure:"client_name"`
	ClientVersion    string        `mapstructure:"client_version"`

	// Credentials is the KEY=VALUE blob. Filled from ARENA_MCP_CREDENTIALS
	// or the keyring, never from the config file.
	Credentials string `mapstructure:"-"`
}

// OrchestratorConfig configures turn handling.
type OrchestratorConfig struct {
	ToolLifetime string `mapstructure:"tool_lifetime"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CredentialsConfig controls secret lookup.
type CredentialsConfig struct {
	// Keyring enables reading the credentials blob from the system keyring.
	Keyring bool `mapstructure:"keyring"`
}

// LoadConfig loads configuration from file, environment, and flags.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(arenaconfig.DataDir())
		viper.AddConfigPath(".")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is fine, use defaults + env + flags
	}

	viper.SetEnvPrefix("ARENA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.DataDir = arenaconfig.DataDir()
	config.Sessions.Dir = arenaconfig.ExpandPath(config.Sessions.Dir)
	config.Agents.File = arenaconfig.ExpandPath(config.Agents.File)
	config.MCP.ConfigFile = arenaconfig.ExpandPath(config.MCP.ConfigFile)
	config.MCP.CredentialsFile = arenaconfig.ExpandPath(config.MCP.CredentialsFile)

	loadCredentials(&config)

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("sessions.dir", arenaconfig.SessionsDir())
	viper.SetDefault("agents.file", arenaconfig.AgentsFile())
	viper.SetDefault("agents.watch", false)

	viper.SetDefault("mcp.config_file", arenaconfig.MCPConfigFile())
	viper.SetDefault("mcp.credentials_file", arenaconfig.CredentialsFile())
	viper.SetDefault("mcp.handshake_timeout", 30*time.Second)
	viper.SetDefault("mcp.client_name", "arena")
	viper.SetDefault("mcp.client_version", "")

	viper.SetDefault("orchestrator.tool_lifetime", "session")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("credentials.keyring", true)
}

// loadCredentials fills the credentials blob. The environment wins over the
// keyring; the credentials file is read later by the manager.
func loadCredentials(config *Config) {
	if blob := os.Getenv(CredentialsEnv); blob != "" {
		config.MCP.Credentials = blob
		return
	}
	if !config.Credentials.Keyring {
		return
	}
	// Keyring errors are non-fatal: the item may not exist or the keyring
	// may be unavailable.
	if blob, err := keyring.Get(ServiceName, CredentialsKey); err == nil {
		config.MCP.Credentials = blob
	}
}

// SaveCredentials stores a credentials blob in the system keyring.
func SaveCredentials(blob string) error {
	if err := keyring.Set(ServiceName, CredentialsKey, blob); err != nil {
		return fmt.Errorf("failed to save credentials to keyring: %w", err)
	}
	return nil
}

// DeleteCredentials removes the credentials blob from the system keyring.
// A missing entry is not an error.
func DeleteCredentials() error {
	if err := keyring.Delete(ServiceName, CredentialsKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}
