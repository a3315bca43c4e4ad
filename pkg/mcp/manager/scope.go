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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrScopeClosed is returned when acquiring from a closed scope.
var ErrScopeClosed = errors.New("tool scope closed")

// Scope is a request-scoped set of tool servers, separate from the
// manager's pool. Close tears down everything the scope launched and is
// meant to be deferred right after OpenScoped.
type Scope struct {
	m *Manager

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// OpenScoped starts an empty scope.
func (m *Manager) OpenScoped() *Scope {
	return &Scope{m: m, handles: make(map[string]*Handle)}
}

// GetToolsForContext launches, within this scope, the servers a trading
// context requires.
func (s *Scope) GetToolsForContext(ctx context.Context, tradingContext string) ([]Tool, map[string]*Handle) {
	return collectTools(ctx, s.m.logger, tradingContext, s.m.RequiredServers(tradingContext), s.acquire)
}

// Handles returns the state of every handle the scope holds.
func (s *Scope) Handles() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.handles))
	for name, h := range s.handles {
		out[name] = h.State()
	}
	return out
}

// Close shuts down every handle in the scope. It is safe to call more than
// once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	victims := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		victims = append(victims, h)
	}
	s.handles = nil
	s.mu.Unlock()

	sort.Slice(victims, func(i, j int) bool { return victims[i].name < victims[j].name })
	s.m.closeHandles(victims)
}

// acquire holds the scope lock across the launch; a scope serves a single
// request so there is no concurrent use to preserve.
func (s *Scope) acquire(ctx context.Context, name string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}

	if h, ok := s.handles[name]; ok {
		if h.State() == StateRunning {
			return h, nil
		}
		delete(s.handles, name)
		s.m.closeHandle(h)
	}

	cfg, ok := s.m.config.Servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	h := newHandle(name, s.m.metrics)
	if err := s.m.start(ctx, h, cfg); err != nil {
		return nil, err
	}
	s.handles[name] = h
	return h, nil
}
