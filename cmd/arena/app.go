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

	"github.com/prometheus/client_golang/prometheus"
	arenalog "github.com/tradearena/arena/internal/log"
	"github.com/tradearena/arena/internal/version"
	"github.com/tradearena/arena/pkg/agentconfig"
	"github.com/tradearena/arena/pkg/mcp/manager"
	"github.com/tradearena/arena/pkg/mcp/protocol"
	"github.com/tradearena/arena/pkg/orchestrator"
	"github.com/tradearena/arena/pkg/provider"
	"github.com/tradearena/arena/pkg/session"
	"go.uber.org/zap"
)

// app bundles the components a command needs, built from Config.
type app struct {
	logger   *zap.Logger
	registry *agentconfig.FileRegistry
	store    *session.Store

	// metrics receives manager collectors; nil until tools() is called.
	metrics *prometheus.Registry
	tools   *manager.Manager
}

func newApp(cfg *Config) (*app, error) {
	logger, err := arenalog.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	arenalog.SetLogger(logger)

	registry, err := agentconfig.NewFileRegistry(cfg.Agents.File, logger)
	if err != nil {
		return nil, err
	}

	store, err := session.NewStore(session.Config{
		Root:     cfg.Sessions.Dir,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{logger: logger, registry: registry, store: store}, nil
}

// toolManager builds the MCP manager. A missing or malformed registry file
// leaves it with no servers.
func (a *app) toolManager(cfg *Config) *manager.Manager {
	if a.tools != nil {
		return a.tools
	}

	mcpConfig, err := manager.LoadConfig(cfg.MCP.ConfigFile)
	if err != nil {
		a.logger.Error("Failed to load MCP config", zap.String("path", cfg.MCP.ConfigFile), zap.Error(err))
	}

	clientVersion := cfg.MCP.ClientVersion
	if clientVersion == "" {
		clientVersion = version.Get()
	}

	a.metrics = prometheus.NewRegistry()
	a.tools = manager.NewManager(mcpConfig, manager.Options{
		Logger:           a.logger,
		ClientInfo:       protocol.Implementation{Name: cfg.MCP.ClientName, Version: clientVersion},
		HandshakeTimeout: cfg.MCP.HandshakeTimeout,
		Credentials:      cfg.MCP.Credentials,
		CredentialsFile:  cfg.MCP.CredentialsFile,
		Registerer:       a.metrics,
	})
	return a.tools
}

func (a *app) orchestrator(cfg *Config) (*orchestrator.Orchestrator, error) {
	lifetime, err := orchestrator.ParseLifetime(cfg.Orchestrator.ToolLifetime)
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.New(orchestrator.Config{
		Store:         a.store,
		Registry:      a.registry,
		Tools:         a.toolManager(cfg),
		Lifetime:      lifetime,
		ClientFactory: provider.BuildForAgent,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return o, nil
}

func (a *app) close() {
	if a.tools != nil {
		a.tools.CloseAll()
	}
	_ = a.logger.Sync()
}
