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
// Package config resolves the on-disk locations arena reads and writes.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv names the environment variable that overrides the data directory.
const DataDirEnv = "ARENA_DATA_DIR"

// Well-known entries below the data directory.
const (
	SessionsDirName     = "sessions"
	ConfigDirName       = "config"
	AgentsFileName      = "config_agents.json"
	MCPConfigFileName   = "mcp_config.json"
	CredentialsFileName = ".env"
)

// DataDir returns the arena data directory.
//
// Priority:
// 1. ARENA_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.arena (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the user's
// home directory and relative paths are resolved against the working directory.
//
// This reads os.Getenv directly, not viper, because it is used to locate the
// config file itself.
func DataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return ExpandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".arena"
	}
	return filepath.Join(homeDir, ".arena")
}

// SubDir returns a subdirectory within the data directory.
// Example: SubDir("sessions") returns ~/.arena/sessions
func SubDir(subdir string) string {
	return filepath.Join(DataDir(), subdir)
}

// SessionsDir is where session directories live by default.
func SessionsDir() string {
	return SubDir(SessionsDirName)
}

// AgentsFile is the default agent registry file.
func AgentsFile() string {
	return filepath.Join(SubDir(ConfigDirName), AgentsFileName)
}

// MCPConfigFile is the default tool server configuration file.
func MCPConfigFile() string {
	return filepath.Join(SubDir(ConfigDirName), MCPConfigFileName)
}

// CredentialsFile is the default KEY=VALUE credentials file.
func CredentialsFile() string {
	return filepath.Join(SubDir(ConfigDirName), CredentialsFileName)
}

// ExpandPath expands a leading ~ and resolves the path to an absolute one.
// An empty path is returned unchanged.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
