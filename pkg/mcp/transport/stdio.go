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
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned when using a transport after Close.
var ErrClosed = errors.New("transport closed")

// DefaultCloseTimeout is how long Close waits for the process to exit after
// its stdin is closed before killing it.
const DefaultCloseTimeout = 5 * time.Second

// StdioConfig configures the stdio transport
type StdioConfig struct {
	Command string
	Args    []string
	// Env is appended to the current process environment.
	Env    map[string]string
	Dir    string
	Logger *zap.Logger

	CloseTimeout time.Duration
}

// StdioTransport runs a tool server as a subprocess and exchanges one JSON
// message per line over its stdin and stdout.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *zap.Logger

	lines   chan []byte
	readErr error // set before lines is closed

	exited  chan struct{}
	exitErr error // set before exited is closed

	writeMu      sync.Mutex
	closed       atomic.Bool
	closeOnce    sync.Once
	closeTimeout time.Duration
}

// NewStdioTransport starts the subprocess described by config.
func NewStdioTransport(config StdioConfig) (*StdioTransport, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}

	// #nosec G204 -- tool server commands come from operator configuration
	cmd := exec.Command(config.Command, config.Args...)
	if config.Dir != "" {
		cmd.Dir = config.Dir
	}
	cmd.Env = append(os.Environ(), envList(config.Env)...)
	// own process group so Close can reach children of launchers like npx
	cmd.SysProcAttr = processGroupAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	t := &StdioTransport{
		cmd:          cmd,
		stdin:        stdin,
		stdout:       stdout,
		stderr:       stderr,
		logger:       config.Logger,
		lines:        make(chan []byte, 16),
		exited:       make(chan struct{}),
		closeTimeout: config.CloseTimeout,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		t.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		t.drainStderr(stderr)
	}()
	// Wait must not run until both pipes are fully read.
	go func() {
		readers.Wait()
		t.exitErr = cmd.Wait()
		close(t.exited)
		t.logger.Debug("Tool server process exited", zap.Error(t.exitErr))
	}()

	t.logger.Info("Tool server started",
		zap.String("command", config.Command),
		zap.Strings("args", config.Args),
		zap.Int("pid", cmd.Process.Pid),
	)
	return t, nil
}

func (s *StdioTransport) readStdout(stdout io.Reader) {
	// bufio.Reader rather than Scanner: tool listings can exceed any fixed line limit.
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			s.lines <- line
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				s.readErr = err
			}
			close(s.lines)
			return
		}
	}
}

func (s *StdioTransport) drainStderr(stderr io.Reader) {
	reader := bufio.NewReader(stderr)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			s.logger.Debug("tool server stderr", zap.ByteString("line", line))
		}
		if err != nil {
			return
		}
	}
}

// Send writes message followed by a newline to the server's stdin.
func (s *StdioTransport) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case <-s.exited:
		return fmt.Errorf("tool server exited: %w", io.ErrClosedPipe)
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	buf := make([]byte, 0, len(message)+1)
	buf = append(append(buf, message...), '\n')
	if _, err := s.stdin.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive returns the next line from the server's stdout.
func (s *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.readErr != nil {
				return nil, s.readErr
			}
			return nil, io.EOF
		}
		return line, nil
	}
}

// Done is closed once the subprocess has exited.
func (s *StdioTransport) Done() <-chan struct{} {
	return s.exited
}

// Pid returns the subprocess id.
func (s *StdioTransport) Pid() int {
	return s.cmd.Process.Pid
}

// Close closes stdin, waits for the process to exit and kills its process
// group if it does not exit within the close timeout. If the pipes are still
// held open one timeout after the kill, they are closed from this side. Close
// therefore returns within about twice the close timeout. It is safe to call
// more than once.
func (s *StdioTransport) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		pid := s.cmd.Process.Pid
		s.logger.Debug("Closing tool server", zap.Int("pid", pid))

		// keep stdout flowing so the reader can observe EOF
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range s.lines {
			}
		}()

		s.writeMu.Lock()
		s.stdin.Close()
		s.writeMu.Unlock()

		select {
		case <-s.exited:
		case <-time.After(s.closeTimeout):
			s.logger.Warn("Tool server did not exit, killing process", zap.Int("pid", pid))
			if err := killProcessGroup(s.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.logger.Error("Failed to kill tool server", zap.Error(err))
			}
			select {
			case <-s.exited:
			case <-time.After(s.closeTimeout):
				// a descendant outside the group still holds stdout or stderr
				s.logger.Warn("Tool server pipes still open after kill, closing them", zap.Int("pid", pid))
				_ = s.stdout.Close()
				_ = s.stderr.Close()
				<-s.exited
			}
		}

		<-drained
		s.logger.Info("Tool server stopped", zap.Int("pid", pid))
	})
	return nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
