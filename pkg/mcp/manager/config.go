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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultServer is the tool server used for trading contexts with no mapping.
const DefaultServer = "core-mcp"

// Config is the tool server registry: which servers exist and which of them
// each trading context needs.
type Config struct {
	// Servers maps server name to launch descriptor
	Servers map[string]ServerConfig `yaml:"mcp_servers" json:"mcp_servers"`

	// ChainMappings maps trading context to the servers it requires
	ChainMappings map[string][]string `yaml:"chain_mappings" json:"chain_mappings"`
}

// ServerConfig describes how to launch one stdio tool server.
type ServerConfig struct {
	// Command is the executable to run
	Command string `yaml:"command" json:"command"`

	// Args are the command-line arguments for the command
	Args []string `yaml:"args" json:"args"`

	// Env are extra environment variables for the subprocess. Values may
	// reference the host environment as ${NAME}.
	Env map[string]string `yaml:"env" json:"env"`

	// Timeout overrides the manager's handshake timeout (e.g. "45s")
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Validate checks the server configuration for errors.
func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}
	return nil
}

// HandshakeTimeout returns the per-server override, or fallback when none is
// set or it does not parse.
func (s ServerConfig) HandshakeTimeout(fallback time.Duration) time.Duration {
	if s.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks every server descriptor. Mappings that name unknown
// servers are not an error here; they surface when the context is used.
func (c Config) Validate() error {
	for _, name := range c.ServerNames() {
		if err := c.Servers[name].Validate(); err != nil {
			return fmt.Errorf("server %s: %w", name, err)
		}
	}
	return nil
}

// RequiredServers returns the servers a trading context needs, falling back
// to DefaultServer when the context is unmapped or mapped to nothing.
func (c Config) RequiredServers(tradingContext string) []string {
	names := c.ChainMappings[tradingContext]
	if len(names) == 0 {
		return []string{DefaultServer}
	}
	return append([]string(nil), names...)
}

// ServerNames returns the configured server names, sorted.
func (c Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contexts returns the mapped trading contexts, sorted.
func (c Config) Contexts() []string {
	contexts := make([]string, 0, len(c.ChainMappings))
	for ctx := range c.ChainMappings {
		contexts = append(contexts, ctx)
	}
	sort.Strings(contexts)
	return contexts
}

// EmptyConfig returns a registry with no servers and no mappings.
func EmptyConfig() Config {
	return Config{
		Servers:       make(map[string]ServerConfig),
		ChainMappings: make(map[string][]string),
	}
}

// LoadConfig reads a registry file, JSON or YAML by extension. On any error
// it still returns a usable empty registry alongside the error, so callers
// can log and carry on.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EmptyConfig(), fmt.Errorf("failed to read MCP config %s: %w", path, err)
	}

	cfg := EmptyConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return EmptyConfig(), fmt.Errorf("failed to parse MCP config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return EmptyConfig(), fmt.Errorf("invalid MCP config %s: %w", path, err)
	}

	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}
	if cfg.ChainMappings == nil {
		cfg.ChainMappings = make(map[string][]string)
	}
	return cfg, nil
}
