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
	"context"
	"errors"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStdioTransport_Echo(t *testing.T) {
	tr, err := NewStdioTransport(StdioConfig{Command: "cat", Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, tr.Send(ctx, []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)))
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"ping","id":1}`, string(got))
	assert.Greater(t, tr.Pid(), 0)
}

func TestStdioTransport_Env(t *testing.T) {
	t.Setenv("ARENA_TRANSPORT_PARENT", "inherited")
	tr, err := NewStdioTransport(StdioConfig{
		Command: "sh",
		Args:    []string{"-c", `echo "$ARENA_TRANSPORT_CHILD $ARENA_TRANSPORT_PARENT"; cat >/dev/null`},
		Env:     map[string]string{"ARENA_TRANSPORT_CHILD": "injected"},
	})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "injected inherited", string(got))
}

func TestStdioTransport_ProcessExit(t *testing.T) {
	tr, err := NewStdioTransport(StdioConfig{Command: "sh", Args: []string{"-c", "echo bye; echo oops >&2"}})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(got))

	_, err = tr.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)

	select {
	case <-tr.Done():
	case <-ctx.Done():
		t.Fatal("exit not observed")
	}
	assert.Error(t, tr.Send(ctx, []byte("late")))
}

func TestStdioTransport_ReceiveHonorsContext(t *testing.T) {
	tr, err := NewStdioTransport(StdioConfig{Command: "cat"})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStdioTransport_CloseKillsStubbornProcess(t *testing.T) {
	tr, err := NewStdioTransport(StdioConfig{
		Command:      "sh",
		Args:         []string{"-c", "trap '' TERM; exec sleep 30"},
		CloseTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, tr.Close())
	assert.Less(t, time.Since(start), 10*time.Second)

	// idempotent
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send(context.Background(), []byte("x")), ErrClosed)
}

// closeWithin closes tr in the background and fails if it takes longer than limit.
func closeWithin(t *testing.T, tr *StdioTransport, limit time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- tr.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(limit):
		t.Fatalf("Close still blocked after %v", limit)
	}
}

func TestStdioTransport_CloseKillsChildHoldingStdout(t *testing.T) {
	tr, err := NewStdioTransport(StdioConfig{
		Command:      "sh",
		Args:         []string{"-c", "trap '' HUP; sleep 30; true"},
		Logger:       zaptest.NewLogger(t),
		CloseTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	closeWithin(t, tr, 3*time.Second)
	select {
	case <-tr.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestStdioTransport_CloseAfterLauncherExited(t *testing.T) {
	// the launcher exits at once and leaves a background child on stdout
	tr, err := NewStdioTransport(StdioConfig{
		Command:      "sh",
		Args:         []string{"-c", "sleep 30 & exit 0"},
		Logger:       zaptest.NewLogger(t),
		CloseTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	closeWithin(t, tr, 3*time.Second)
}

func TestStdioTransport_CloseWithEscapedDescendant(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	// setsid moves the sleep out of the process group, so only closing the
	// pipes from this side can end the readers
	tr, err := NewStdioTransport(StdioConfig{
		Command:      "sh",
		Args:         []string{"-c", "setsid sleep 5; true"},
		Logger:       zaptest.NewLogger(t),
		CloseTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	closeWithin(t, tr, 3*time.Second)
}

func TestStdioTransport_BadCommand(t *testing.T) {
	_, err := NewStdioTransport(StdioConfig{Command: "/definitely/not/a/binary"})
	require.Error(t, err)

	_, err = NewStdioTransport(StdioConfig{})
	require.Error(t, err)
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=x=y"}, envList(map[string]string{"B": "x=y", "A": "1"}))
	assert.Empty(t, envList(nil))
}
