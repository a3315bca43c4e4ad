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
// Package client implements the MCP client side of a tool server connection.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradearena/arena/pkg/mcp/protocol"
	"github.com/tradearena/arena/pkg/mcp/transport"
	"go.uber.org/zap"
)

// ErrConnectionClosed is returned for requests on a client whose transport
// has gone away.
var ErrConnectionClosed = errors.New("mcp connection closed")

// Client is an MCP client connection to one tool server.
type Client struct {
	transport      transport.Transport
	logger         *zap.Logger
	requestTimeout time.Duration

	initialized  bool
	initializing bool
	serverInfo   protocol.Implementation
	capabilities protocol.ServerCapabilities

	nextID    int64
	pending   map[string]chan *protocol.Response
	pendingMu sync.Mutex

	tools   map[string]protocol.Tool
	toolsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Config configures the MCP client
type Config struct {
	Transport transport.Transport
	Logger    *zap.Logger

	// RequestTimeout bounds requests whose context has no deadline. Default: 30s
	RequestTimeout time.Duration
}

// NewClient creates a client and starts its receive loop.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:      config.Transport,
		logger:         config.Logger,
		requestTimeout: config.RequestTimeout,
		pending:        make(map[string]chan *protocol.Response),
		tools:          make(map[string]protocol.Tool),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	c.wg.Add(1)
	go c.receiveLoop()
	return c
}

// Initialize performs the MCP handshake: initialize, then the initialized
// notification.
func (c *Client) Initialize(ctx context.Context, clientInfo protocol.Implementation) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("already initialized")
	}
	if c.initializing {
		c.mu.Unlock()
		return fmt.Errorf("initialization already in progress")
	}
	c.initializing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.initializing = false
		c.mu.Unlock()
	}()

	params, err := json.Marshal(protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo:      clientInfo,
	})
	if err != nil {
		return err
	}

	resp, err := c.call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("failed to parse initialize result: %w", err)
	}
	if result.ProtocolVersion == "" {
		return fmt.Errorf("server did not report a protocol version")
	}
	if result.ProtocolVersion != protocol.ProtocolVersion {
		// Servers answer with the newest version they speak; the subset used
		// here is stable across versions.
		c.logger.Debug("Server negotiated a different protocol version",
			zap.String("client", protocol.ProtocolVersion),
			zap.String("server", result.ProtocolVersion))
	}

	notification, err := json.Marshal(&protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  protocol.MethodInitialized,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal initialized notification: %w", err)
	}
	if err := c.transport.Send(ctx, notification); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = result.ServerInfo
	c.capabilities = result.Capabilities
	c.mu.Unlock()

	c.logger.Info("MCP client initialized",
		zap.String("server_name", result.ServerInfo.Name),
		zap.String("server_version", result.ServerInfo.Version),
		zap.String("protocol", result.ProtocolVersion),
		zap.Bool("tools", result.Capabilities.Tools != nil),
	)
	return nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, protocol.MethodPing, json.RawMessage(`{}`))
	return err
}

// ServerInfo returns the server implementation info
func (c *Client) ServerInfo() protocol.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// IsInitialized returns whether the handshake completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Done is closed when the connection stops receiving, either because the
// server went away or because the client was closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the receive loop and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.transport.Close()
	if err != nil {
		c.logger.Error("Failed to close transport", zap.Error(err))
	}
	c.wg.Wait()

	c.logger.Debug("MCP client closed")
	return err
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (*protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      c.nextRequestID(),
		Method:  method,
		Params:  params,
	}
	if err := protocol.ValidateRequest(req); err != nil {
		return nil, err
	}

	respChan := make(chan *protocol.Response, 1)
	id := req.ID.String()

	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	select {
	case <-c.done:
		return nil, ErrConnectionClosed
	default:
	}

	c.logger.Debug("Sending request", zap.String("method", method), zap.String("id", id))
	if err := c.transport.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// A response may have landed just before the connection dropped.
		select {
		case resp := <-respChan:
			return unwrap(resp)
		default:
			return nil, ErrConnectionClosed
		}
	case resp := <-respChan:
		return unwrap(resp)
	}
}

func unwrap(resp *protocol.Response) (*protocol.Response, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()
	defer close(c.done)

	for {
		data, err := c.transport.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Debug("Receive loop stopped", zap.Error(err))
				return
			}
			c.logger.Error("Failed to receive message", zap.Error(err))
			return
		}
		if len(data) == 0 {
			continue
		}

		var msg struct {
			ID     *protocol.RequestID `json:"id"`
			Method string              `json:"method"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Received malformed message", zap.ByteString("data", data), zap.Error(err))
			continue
		}

		switch {
		case msg.Method == "" && msg.ID != nil:
			var resp protocol.Response
			if err := json.Unmarshal(data, &resp); err != nil {
				c.logger.Warn("Received malformed response", zap.Error(err))
				continue
			}
			c.handleResponse(&resp)
		case msg.Method != "" && msg.ID != nil:
			c.handleServerRequest(msg.ID, msg.Method)
		case msg.Method != "":
			c.logger.Debug("Received notification", zap.String("method", msg.Method))
		default:
			c.logger.Warn("Received unrecognized message", zap.ByteString("data", data))
		}
	}
}

func (c *Client) handleResponse(resp *protocol.Response) {
	id := resp.ID.String()

	c.pendingMu.Lock()
	respChan, ok := c.pending[id]
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("Received response for unknown request", zap.String("id", id))
		return
	}
	select {
	case respChan <- resp:
	default:
		c.logger.Warn("Duplicate response", zap.String("id", id))
	}
}

// handleServerRequest answers requests initiated by the server. Only ping is
// supported.
func (c *Client) handleServerRequest(id *protocol.RequestID, method string) {
	resp := &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: id}
	if method == protocol.MethodPing {
		resp.Result = json.RawMessage(`{}`)
	} else {
		resp.Error = protocol.NewError(protocol.MethodNotFound, "method not found: "+method, nil)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to marshal response", zap.String("method", method), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.transport.Send(ctx, data); err != nil {
		c.logger.Warn("Failed to answer server request", zap.String("method", method), zap.Error(err))
	}
}

func (c *Client) nextRequestID() *protocol.RequestID {
	return protocol.NewNumericRequestID(atomic.AddInt64(&c.nextID, 1))
}
