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
package agentconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tradearena/arena/internal/fsutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry is the authoritative source of full agent configurations.
type Registry interface {
	Get(id string) (AgentConfig, bool)
	List() []AgentConfig
}

type agentsFile struct {
	Agents []AgentConfig `json:"agents" yaml:"agents"`
}

// FileRegistry is a Registry backed by a single JSON (or YAML) file of the
// form {"agents": [...]}. Writes replace the file atomically.
type FileRegistry struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	agents []AgentConfig
}

// NewFileRegistry loads the registry at path. A missing file yields an empty
// registry; a malformed one is an error.
func NewFileRegistry(path string, logger *zap.Logger) (*FileRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileRegistry{
		path:   path,
		logger: logger.With(zap.String("registry", path)),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file.
func (r *FileRegistry) Path() string {
	return r.path
}

// Reload re-reads the backing file. On error the previous contents are kept.
func (r *FileRegistry) Reload() error {
	agents, err := r.read()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()
	r.logger.Debug("Loaded agent registry", zap.Int("agents", len(agents)))
	return nil
}

func (r *FileRegistry) read() ([]AgentConfig, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read agent registry: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var f agentsFile
	if isYAML(r.path) {
		err = yaml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent registry %s: %w", r.path, err)
	}
	return f.Agents, nil
}

// Get returns the agent with the given id.
func (r *FileRegistry) Get(id string) (AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == id {
			return cloneAgent(a), true
		}
	}
	return AgentConfig{}, false
}

// List returns all agents in file order.
func (r *FileRegistry) List() []AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentConfig, len(r.agents))
	for i, a := range r.agents {
		out[i] = cloneAgent(a)
	}
	return out
}

// Create adds a new agent with a generated "agent_<8 hex>" id. An empty name
// becomes "<provider> - <trading context>".
func (r *FileRegistry) Create(name, provider, tradingContext string, cfg map[string]any) (AgentConfig, error) {
	if !NormalizeProviderID(provider).Known() {
		return AgentConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if strings.TrimSpace(tradingContext) == "" {
		return AgentConfig{}, fmt.Errorf("trading context is required")
	}
	if name == "" {
		name = fmt.Sprintf("%s - %s", DisplayName(provider), ContextDisplayName(tradingContext))
	}

	agent := AgentConfig{
		ID:             newAgentID(),
		Name:           name,
		Provider:       provider,
		TradingContext: tradingContext,
		Config:         cfg,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	agents := append(append([]AgentConfig(nil), r.agents...), agent)
	if err := r.write(agents); err != nil {
		return AgentConfig{}, err
	}
	r.agents = agents
	r.logger.Info("Created agent", zap.String("agent_id", agent.ID), zap.String("provider", provider))
	return cloneAgent(agent), nil
}

// Update replaces the stored record with the same id.
func (r *FileRegistry) Update(agent AgentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(agent.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agent.ID)
	}
	agents := append([]AgentConfig(nil), r.agents...)
	agents[idx] = cloneAgent(agent)
	if err := r.write(agents); err != nil {
		return err
	}
	r.agents = agents
	r.logger.Info("Updated agent", zap.String("agent_id", agent.ID))
	return nil
}

// Delete removes an agent. It reports false when the id is unknown.
func (r *FileRegistry) Delete(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return false, nil
	}
	agents := append(append([]AgentConfig(nil), r.agents[:idx]...), r.agents[idx+1:]...)
	if err := r.write(agents); err != nil {
		return false, err
	}
	r.agents = agents
	r.logger.Info("Deleted agent", zap.String("agent_id", id))
	return true, nil
}

// Watch reloads the registry whenever its file changes, until ctx is done.
// The parent directory is watched so atomic replacements are observed.
func (r *FileRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch registry directory: %w", err)
	}
	r.logger.Info("Started watching agent registry")

	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("Failed to reload agent registry", zap.Error(err))
				continue
			}
			r.logger.Info("Agent registry reloaded", zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Agent registry watcher error", zap.Error(err))
		}
	}
}

func (r *FileRegistry) indexOf(id string) int {
	for i, a := range r.agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (r *FileRegistry) write(agents []AgentConfig) error {
	if agents == nil {
		agents = []AgentConfig{}
	}
	f := agentsFile{Agents: agents}

	var (
		data []byte
		err  error
	)
	if isYAML(r.path) {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode agent registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, 0600); err != nil {
		return fmt.Errorf("failed to save agent registry: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func newAgentID() string {
	return "agent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func cloneAgent(a AgentConfig) AgentConfig {
	if a.Config != nil {
		cfg := make(map[string]any, len(a.Config))
		for k, v := range a.Config {
			cfg[k] = v
		}
		a.Config = cfg
	}
	return a
}

// StaticRegistry is an in-memory Registry.
type StaticRegistry map[string]AgentConfig

// Get implements Registry.
func (s StaticRegistry) Get(id string) (AgentConfig, bool) {
	a, ok := s[id]
	if !ok {
		return AgentConfig{}, false
	}
	return cloneAgent(a), true
}

// List implements Registry. Order is unspecified.
func (s StaticRegistry) List() []AgentConfig {
	out := make([]AgentConfig, 0, len(s))
	for _, a := range s {
		out = append(out, cloneAgent(a))
	}
	return out
}
