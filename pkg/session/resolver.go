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
package session

import (
	"github.com/tradearena/arena/pkg/agentconfig"
	"go.uber.org/zap"
)

// Source records where a resolved configuration came from.
type Source string

const (
	// SourceMerged means identity came from the session snapshot and the
	// config payload from the registry.
	SourceMerged Source = "session+registry"

	// SourceRegistry means the registry record was used as-is.
	SourceRegistry Source = "registry"
)

// Resolution is a fully credentialed agent configuration ready for use.
type Resolution struct {
	Config agentconfig.AgentConfig
	Source Source
}

// Resolver rebuilds agent configurations for resumed sessions without ever
// writing secrets back into session storage.
type Resolver struct {
	store    *Store
	registry agentconfig.Registry
	logger   *zap.Logger
}

// NewResolver creates a resolver over store and registry.
func NewResolver(store *Store, registry agentconfig.Registry, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, registry: registry, logger: logger}
}

// ResolveForSession returns the configuration to run agentID with in
// sessionID (which may be empty).
//
// When the session holds an agent snapshot, identity fields (name, provider,
// trading context) come from the snapshot so the session keeps the identity
// it was created with, and the config payload comes from the registry so
// rotated credentials apply immediately. Without a snapshot the registry
// record is used. If the registry does not know the agent the result is
// not found.
func (r *Resolver) ResolveForSession(agentID, sessionID string) (Resolution, bool) {
	logger := r.logger.With(zap.String("agent_id", agentID), zap.String("session_id", sessionID))

	if sessionID != "" {
		if snap, ok := r.store.AgentSnapshot(sessionID); ok {
			configID := firstNonEmpty(snap.ID, agentconfig.ConfigAgentID(agentID))
			full, ok := r.registry.Get(configID)
			if !ok {
				logger.Warn("Agent in session snapshot is missing from registry", zap.String("config_agent_id", configID))
				return Resolution{}, false
			}
			logger.Debug("Resolved agent from session snapshot", zap.String("config_agent_id", configID))
			return Resolution{Config: merge(snap, full), Source: SourceMerged}, true
		}
		logger.Debug("Session has no agent snapshot, using registry")
	}

	full, ok := r.registry.Get(agentconfig.ConfigAgentID(agentID))
	if !ok {
		logger.Warn("Agent not found in registry")
		return Resolution{}, false
	}
	return Resolution{Config: full, Source: SourceRegistry}, true
}

func merge(snap agentconfig.Snapshot, full agentconfig.AgentConfig) agentconfig.AgentConfig {
	return agentconfig.AgentConfig{
		ID:             firstNonEmpty(snap.ID, full.ID),
		Name:           firstNonEmpty(snap.Name, full.Name, unknownAgent),
		Provider:       firstNonEmpty(snap.Provider, full.Provider),
		TradingContext: firstNonEmpty(snap.TradingContext, full.TradingContext, unknownValue),
		Config:         full.Config,
	}
}
