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
// Package orchestrator ties a conversational request to its session, its
// resolved agent configuration and the tool servers its trading context
// needs.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tradearena/arena/pkg/agentconfig"
	"github.com/tradearena/arena/pkg/mcp/manager"
	"github.com/tradearena/arena/pkg/provider"
	"github.com/tradearena/arena/pkg/session"
	"go.uber.org/zap"
)

// Lifetime selects when tool servers acquired for a turn are closed. One
// orchestrator applies one lifetime to every turn.
type Lifetime string

const (
	// LifetimeSession keeps pooled servers running across turns. They are
	// closed only by Release or Shutdown.
	LifetimeSession Lifetime = "session"

	// LifetimeTurn closes the context's pooled servers when a turn ends
	// finished. Aborted turns leave them running.
	LifetimeTurn Lifetime = "turn"

	// LifetimeRequest launches servers privately for each turn and closes
	// them when it ends, however it ends.
	LifetimeRequest Lifetime = "request"
)

// ParseLifetime parses a lifetime name. Empty means LifetimeSession.
func ParseLifetime(s string) (Lifetime, error) {
	switch l := Lifetime(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LifetimeSession, nil
	case LifetimeSession, LifetimeTurn, LifetimeRequest:
		return l, nil
	default:
		return "", fmt.Errorf("unknown tool lifetime %q (want session, turn or request)", s)
	}
}

// ClientFactory builds the provider client for a resolved agent.
type ClientFactory func(ctx context.Context, agent agentconfig.AgentConfig) (provider.Client, error)

// Config configures an Orchestrator.
type Config struct {
	Store    *session.Store
	Registry agentconfig.Registry
	Tools    *manager.Manager
	Lifetime Lifetime

	// ClientFactory, when set, builds a provider client for every turn.
	ClientFactory ClientFactory

	Logger *zap.Logger

	// NewSessionID mints ids for new sessions. Default: random UUID
	NewSessionID func() string
}

// Orchestrator runs conversational turns.
type Orchestrator struct {
	store         *session.Store
	resolver      *session.Resolver
	tools         *manager.Manager
	lifetime      Lifetime
	clientFactory ClientFactory
	logger        *zap.Logger
	newSessionID  func() string
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent registry is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	lifetime, err := ParseLifetime(string(cfg.Lifetime))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:         cfg.Store,
		resolver:      session.NewResolver(cfg.Store, cfg.Registry, cfg.Logger),
		tools:         cfg.Tools,
		lifetime:      lifetime,
		clientFactory: cfg.ClientFactory,
		logger:        cfg.Logger,
		newSessionID:  cfg.NewSessionID,
	}, nil
}

// Lifetime returns the tool lifetime in effect.
func (o *Orchestrator) Lifetime() Lifetime {
	return o.lifetime
}

// Request asks to continue a conversation. An empty SessionID starts a new
// session.
type Request struct {
	AgentID   string
	SessionID string
}

// Begin resolves the agent, opens or creates the session and acquires the
// tools for the agent's trading context. The returned turn must be ended.
func (o *Orchestrator) Begin(ctx context.Context, req Request) (*Turn, error) {
	runtimeID := agentconfig.RuntimeAgentID(req.AgentID)
	logger := o.logger.With(zap.String("agent_id", runtimeID))
	if req.SessionID != "" {
		logger = logger.With(zap.String("session_id", req.SessionID))
		if !o.store.Exists(req.SessionID) {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, req.SessionID)
		}
	}

	res, ok := o.resolver.ResolveForSession(req.AgentID, req.SessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agentconfig.ErrAgentNotFound, req.AgentID)
	}

	var client provider.Client
	if o.clientFactory != nil {
		var err error
		client, err = o.clientFactory(ctx, res.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s client: %w", res.Config.Provider, err)
		}
	}

	sessionID := req.SessionID
	created := false
	if sessionID == "" {
		sessionID = o.newSessionID()
		logger = logger.With(zap.String("session_id", sessionID))
		if _, err := o.store.CreateSession(sessionID, session.TypeAgent); err != nil {
			return nil, err
		}
		created = true
	}
	if res.Source != session.SourceMerged {
		if err := o.store.SaveAgent(sessionID, agentconfig.NewSnapshot(res.Config)); err != nil {
			if created {
				o.discard(sessionID, logger)
			}
			return nil, err
		}
	}

	turn := &Turn{
		SessionID:      sessionID,
		AgentID:        agentconfig.RuntimeAgentID(res.Config.ID),
		Config:         res.Config,
		Source:         res.Source,
		Client:         client,
		Created:        created,
		TradingContext: res.Config.TradingContext,
		o:              o,
		logger:         logger,
	}

	switch o.lifetime {
	case LifetimeRequest:
		turn.scope = o.tools.OpenScoped()
		turn.Tools, turn.Handles = turn.scope.GetToolsForContext(ctx, turn.TradingContext)
	default:
		turn.Tools, turn.Handles = o.tools.GetToolsForContext(ctx, turn.TradingContext)
	}

	logger.Info("Turn started",
		zap.String("trading_context", turn.TradingContext),
		zap.String("config_source", string(res.Source)),
		zap.Bool("new_session", created),
		zap.Int("tools", len(turn.Tools)))
	return turn, nil
}

// discard removes a session created by a Begin that then failed.
func (o *Orchestrator) discard(sessionID string, logger *zap.Logger) {
	if _, err := o.store.DeleteSession(sessionID); err != nil {
		logger.Warn("Failed to remove incomplete session", zap.Error(err))
	}
}

// Invoker hands a turn to the model-invocation layer.
type Invoker func(ctx context.Context, turn *Turn) error

// Run begins a turn, invokes fn and ends the turn on every exit path. The
// turn counts as finished only when fn returns nil and ctx is still live. A
// panic in fn ends the turn unfinished and is then re-raised.
func (o *Orchestrator) Run(ctx context.Context, req Request, fn Invoker) error {
	turn, err := o.Begin(ctx, req)
	if err != nil {
		return err
	}

	finished := false
	defer func() {
		if r := recover(); r != nil {
			turn.logger.Error("Turn panicked", zap.Any("panic", r))
			turn.End(false)
			panic(r)
		}
		turn.End(finished)
	}()

	err = fn(turn.Context(ctx), turn)
	finished = err == nil && ctx.Err() == nil
	return err
}

// Release closes the pooled servers of a trading context.
func (o *Orchestrator) Release(tradingContext string) {
	o.tools.CloseClients(tradingContext)
}

// Shutdown closes every pooled tool server.
func (o *Orchestrator) Shutdown() {
	o.logger.Info("Shutting down tool servers")
	o.tools.CloseAll()
}

// Turn is one conversational exchange within a session.
type Turn struct {
	SessionID      string
	AgentID        string
	TradingContext string
	Config         agentconfig.AgentConfig
	Source         session.Source
	Tools          []manager.Tool
	Handles        map[string]*manager.Handle

	// Client is nil when the orchestrator has no ClientFactory.
	Client provider.Client

	// Created reports whether Begin minted the session.
	Created bool

	o       *Orchestrator
	scope   *manager.Scope
	logger  *zap.Logger
	endOnce sync.Once
}

// Context returns ctx carrying the turn's session and agent ids.
func (t *Turn) Context(ctx context.Context) context.Context {
	return session.WithAgentID(session.WithSessionID(ctx, t.SessionID), t.AgentID)
}

// Record appends a message to the session.
func (t *Turn) Record(role, text string) (session.Message, error) {
	msg, err := t.o.store.AppendMessage(t.SessionID, role, text)
	if err != nil {
		t.logger.Error("Failed to record message", zap.String("role", role), zap.Error(err))
		return session.Message{}, err
	}
	return msg, nil
}

// End finishes the turn and applies the tool lifetime. finished reports
// whether the conversational turn completed rather than being aborted. Only
// the first call has an effect.
func (t *Turn) End(finished bool) {
	t.endOnce.Do(func() {
		switch t.o.lifetime {
		case LifetimeRequest:
			t.scope.Close()
		case LifetimeTurn:
			if finished {
				t.o.tools.CloseClients(t.TradingContext)
			}
		}
		t.logger.Info("Turn ended", zap.Bool("finished", finished))
	})
}
