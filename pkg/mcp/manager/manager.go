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
// Package manager owns the lifecycle of subprocess tool servers and hands
// out their tools per trading context.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tradearena/arena/pkg/mcp/protocol"
	"go.uber.org/zap"
)

// DefaultHandshakeTimeout bounds launch, handshake and tool enumeration.
const DefaultHandshakeTimeout = 30 * time.Second

// ErrUnknownServer is returned for a server name with no descriptor.
var ErrUnknownServer = errors.New("unknown tool server")

// Options configures a Manager.
type Options struct {
	// Launcher starts tool servers. Default: StdioLauncher
	Launcher Launcher
	Logger   *zap.Logger

	// ClientInfo is sent to every server during the handshake
	ClientInfo protocol.Implementation

	// HandshakeTimeout applies to servers without their own timeout
	HandshakeTimeout time.Duration

	// Credentials is a KEY=VALUE blob exported into the environment at
	// construction. It wins over CredentialsFile.
	Credentials     string
	CredentialsFile string

	// Registerer receives the manager's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Manager keeps a pool of running tool server handles keyed by server name.
// Handles are reused across requests until closed explicitly.
type Manager struct {
	config           Config
	launcher         Launcher
	logger           *zap.Logger
	clientInfo       protocol.Implementation
	handshakeTimeout time.Duration
	metrics          *metrics
	now              func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a manager and populates the process environment from
// the configured credentials source.
func NewManager(config Config, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Launcher == nil {
		opts.Launcher = StdioLauncher{Logger: opts.Logger}
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.ClientInfo.Name == "" {
		opts.ClientInfo = protocol.Implementation{Name: "arena", Version: "dev"}
	}
	if config.Servers == nil {
		config.Servers = make(map[string]ServerConfig)
	}

	populateEnvironment(opts.Credentials, opts.CredentialsFile, opts.Logger)

	return &Manager{
		config:           config,
		launcher:         opts.Launcher,
		logger:           opts.Logger,
		clientInfo:       opts.ClientInfo,
		handshakeTimeout: opts.HandshakeTimeout,
		metrics:          newMetrics(opts.Registerer),
		now:              time.Now,
		handles:          make(map[string]*Handle),
	}
}

// Config returns the registry the manager launches from.
func (m *Manager) Config() Config {
	return m.config
}

// RequiredServers returns the servers a trading context needs.
func (m *Manager) RequiredServers(tradingContext string) []string {
	return m.config.RequiredServers(tradingContext)
}

// GetToolsForContext returns the combined tools of every server the trading
// context requires, launching servers that are not already running. Servers
// are brought up one at a time; a server that fails is logged and left out.
func (m *Manager) GetToolsForContext(ctx context.Context, tradingContext string) ([]Tool, map[string]*Handle) {
	return collectTools(ctx, m.logger, tradingContext, m.RequiredServers(tradingContext), m.acquire)
}

// Handles returns the state of every pooled handle.
func (m *Manager) Handles() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.handles))
	for name, h := range m.handles {
		out[name] = h.State()
	}
	return out
}

// Handle returns the pooled handle for a server.
func (m *Manager) Handle(name string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	return h, ok
}

// CloseClients closes the servers a trading context requires and removes
// them from the pool. Failures are logged per server.
func (m *Manager) CloseClients(tradingContext string) {
	m.mu.Lock()
	var victims []*Handle
	for _, name := range m.RequiredServers(tradingContext) {
		if h, ok := m.handles[name]; ok {
			victims = append(victims, h)
			delete(m.handles, name)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("Closing tool servers for context",
		zap.String("trading_context", tradingContext),
		zap.Int("count", len(victims)))
	m.closeHandles(victims)
}

// CloseAll closes every pooled server.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	victims := make([]*Handle, 0, len(m.handles))
	for name, h := range m.handles {
		victims = append(victims, h)
		delete(m.handles, name)
	}
	m.mu.Unlock()

	sort.Slice(victims, func(i, j int) bool { return victims[i].name < victims[j].name })
	m.closeHandles(victims)
}

// acquire returns a running pooled handle for name, launching it if needed.
func (m *Manager) acquire(ctx context.Context, name string) (*Handle, error) {
	for {
		m.mu.Lock()
		if h, ok := m.handles[name]; ok {
			switch h.State() {
			case StateRunning:
				m.mu.Unlock()
				m.logger.Debug("Reusing tool server", zap.String("server", name))
				return h, nil
			case StateStarting:
				m.mu.Unlock()
				if err := h.wait(ctx); err != nil {
					return nil, err
				}
				continue
			default:
				delete(m.handles, name)
				m.mu.Unlock()
				m.logger.Warn("Tool server exited, relaunching", zap.String("server", name))
				m.closeHandle(h)
				continue
			}
		}

		cfg, ok := m.config.Servers[name]
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
		}
		h := newHandle(name, m.metrics)
		m.handles[name] = h
		m.mu.Unlock()

		err := m.start(ctx, h, cfg)

		m.mu.Lock()
		pooled := m.handles[name] == h
		if err != nil && pooled {
			delete(m.handles, name)
		}
		m.mu.Unlock()

		if err != nil {
			return nil, err
		}
		if !pooled {
			m.closeHandle(h)
			return nil, fmt.Errorf("tool server %s was closed while starting", name)
		}
		return h, nil
	}
}

// start launches the server behind h, performs the handshake and
// enumerates its tools within the handshake timeout.
func (m *Manager) start(ctx context.Context, h *Handle, cfg ServerConfig) error {
	logger := m.logger.With(zap.String("server", h.name))

	resolved := cfg.Resolve()
	if missing := resolved.Unresolved(); len(missing) > 0 {
		logger.Warn("Unresolved environment placeholders", zap.Strings("variables", missing))
	}

	timeout := cfg.HandshakeTimeout(m.handshakeTimeout)
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.metrics.launches.WithLabelValues(h.name).Inc()
	began := m.now()

	c, tools, err := m.launch(hctx, h.name, resolved)
	if err != nil {
		if ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("handshake timed out after %s: %w", timeout, err)
		}
		m.metrics.launchFailures.WithLabelValues(h.name).Inc()
		h.markFailed(err)
		logger.Error("Failed to start tool server", zap.Error(err))
		return err
	}

	h.markRunning(c, tools, m.now())
	logger.Info("Tool server running",
		zap.Int("tools", len(tools)),
		zap.Duration("startup", m.now().Sub(began)))
	return nil
}

func (m *Manager) launch(ctx context.Context, name string, cfg ServerConfig) (ToolClient, []protocol.Tool, error) {
	c, err := m.launcher.Launch(name, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("launch failed: %w", err)
	}
	if err := c.Initialize(ctx, m.clientInfo); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("handshake failed: %w", err)
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("tool enumeration failed: %w", err)
	}
	return c, tools, nil
}

// closeHandles closes handles concurrently so a server that is slow to exit
// does not hold up the rest.
func (m *Manager) closeHandles(handles []*Handle) {
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			m.closeHandle(h)
		}(h)
	}
	wg.Wait()
}

// closeHandle closes one handle. A handle still starting is left to its
// launcher, which notices it is no longer pooled.
func (m *Manager) closeHandle(h *Handle) {
	closed, err := h.close()
	if !closed {
		return
	}
	m.metrics.closes.WithLabelValues(h.name).Inc()
	if err != nil {
		m.logger.Warn("Failed to close tool server cleanly", zap.String("server", h.name), zap.Error(err))
		return
	}
	m.logger.Info("Closed tool server", zap.String("server", h.name))
}

// collectTools acquires each named server in order and merges their tools.
func collectTools(
	ctx context.Context,
	logger *zap.Logger,
	tradingContext string,
	names []string,
	acquire func(context.Context, string) (*Handle, error),
) ([]Tool, map[string]*Handle) {
	var tools []Tool
	handles := make(map[string]*Handle, len(names))

	for _, name := range names {
		if _, dup := handles[name]; dup {
			continue
		}
		h, err := acquire(ctx, name)
		if err != nil {
			logger.Error("Tool server unavailable",
				zap.String("trading_context", tradingContext),
				zap.String("server", name),
				zap.Error(err))
			continue
		}
		handles[name] = h
		serverTools := h.Tools()
		tools = append(tools, serverTools...)
		logger.Debug("Collected tools",
			zap.String("server", name),
			zap.Int("count", len(serverTools)))
	}

	if len(handles) == 0 {
		logger.Warn("No tools available for trading context",
			zap.String("trading_context", tradingContext),
			zap.Strings("servers", names))
	}
	return tools, handles
}
