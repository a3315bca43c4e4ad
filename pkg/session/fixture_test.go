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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixture writes raw session files so tests control the exact on-disk bytes.
type fixture struct {
	t    *testing.T
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, root: t.TempDir()}
}

func (f *fixture) write(rel string, v any) string {
	f.t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0700))

	var data []byte
	switch raw := v.(type) {
	case string:
		data = []byte(raw)
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, os.WriteFile(path, data, 0600))
	return path
}

func (f *fixture) session(id string, updated time.Time) {
	f.t.Helper()
	rec := map[string]any{
		"session_id":   id,
		"session_type": "AGENT",
	}
	if !updated.IsZero() {
		rec["created_at"] = updated.Add(-time.Hour).UTC().Format(time.RFC3339Nano)
		rec["updated_at"] = updated.UTC().Format(time.RFC3339Nano)
	}
	f.write(filepath.Join("session_"+id, "session.json"), rec)
}

func (f *fixture) agent(sessionID, runtimeID string, snapshot map[string]any) {
	f.t.Helper()
	rec := map[string]any{"agent_id": runtimeID, "state": map[string]any{}}
	if snapshot != nil {
		rec["state"] = map[string]any{"agent_config": snapshot}
	}
	f.write(filepath.Join("session_"+sessionID, "agents", "agent_"+runtimeID, "agent.json"), rec)
}

func (f *fixture) message(sessionID, runtimeID string, n int, role string, content ...any) {
	f.t.Helper()
	rec := map[string]any{
		"message_id": n,
		"created_at": "2025-10-01T12:00:00.000000",
		"updated_at": "2025-10-01T12:00:00.000000",
		"message":    map[string]any{"role": role, "content": content},
	}
	f.write(filepath.Join("session_"+sessionID, "agents", "agent_"+runtimeID, "messages", fmt.Sprintf("message_%d.json", n)), rec)
}

func text(s string) map[string]any {
	return map[string]any{"text": s}
}

func reasoning(s string) map[string]any {
	return map[string]any{"reasoningContent": map[string]any{"reasoningText": map[string]any{"text": s, "signature": "sig"}}}
}
