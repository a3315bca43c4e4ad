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
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradearena/arena/pkg/agentconfig"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T, root string, reg agentconfig.Registry) *Store {
	t.Helper()
	s, err := NewStore(Config{Root: root, Registry: reg, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return s
}

func TestNewStore_RequiresRoot(t *testing.T) {
	_, err := NewStore(Config{})
	require.Error(t, err)
}

func TestListSessions_EmptyAndMissingRoot(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "does-not-exist"), nil)
	sessions := s.ListSessions()
	require.NotNil(t, sessions)
	assert.Empty(t, sessions)

	s = newTestStore(t, t.TempDir(), nil)
	assert.Empty(t, s.ListSessions())

	_, ok := s.GetLatestSession()
	assert.False(t, ok)
}

func TestListSessions_SkipsCorruptSessions(t *testing.T) {
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	for _, tc := range []struct{ total, corrupt int }{{1, 0}, {5, 2}, {4, 4}, {10, 3}} {
		t.Run(fmt.Sprintf("%d_of_%d_corrupt", tc.corrupt, tc.total), func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < tc.total; i++ {
				id := fmt.Sprintf("s%02d", i)
				if i < tc.corrupt {
					switch i % 3 {
					case 0:
						f.write(filepath.Join("session_"+id, "session.json"), "{truncated")
					case 1:
						// directory without a descriptor
						require.NoError(t, os.MkdirAll(filepath.Join(f.root, "session_"+id, "agents"), 0700))
					default:
						f.write(filepath.Join("session_"+id, "session.json"), `{"session_id": 42}`)
					}
					continue
				}
				f.session(id, base.Add(time.Duration(i)*time.Minute))
			}
			// noise that is not a session
			f.write("notes.txt", "hello")
			f.write(filepath.Join("other_dir", "session.json"), `{}`)

			s := newTestStore(t, f.root, nil)
			assert.Len(t, s.ListSessions(), tc.total-tc.corrupt)
		})
	}
}

func TestListSessions_SortedByUpdatedDescMissingLast(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	f.session("old", base)
	f.session("new", base.Add(2*time.Hour))
	f.session("none", time.Time{})
	f.session("mid", base.Add(time.Hour))

	s := newTestStore(t, f.root, nil)
	sessions := s.ListSessions()
	require.Len(t, sessions, 4)

	var ids []string
	for _, sum := range sessions {
		ids = append(ids, sum.SessionID)
	}
	assert.Equal(t, []string{"new", "mid", "old", "none"}, ids)

	latest, ok := s.GetLatestSession()
	require.True(t, ok)
	assert.Equal(t, "new", latest.SessionID)
}

func TestListSessions_SummaryFields(t *testing.T) {
	f := newFixture(t)
	f.session("abc", time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	f.agent("abc", "trading_agent_agent_1", map[string]any{
		"id":            "agent_1",
		"name":          "Bedrock Cronos",
		"ai_provider":   "amazon-bedrock",
		"trading_chain": "cronos",
		"config":        map[string]any{"model_id": "m"},
	})
	f.message("abc", "trading_agent_agent_1", 0, "user", text("hi"))
	f.message("abc", "trading_agent_agent_1", 1, "assistant", text("hello"))

	s := newTestStore(t, f.root, nil)
	sum, ok := s.GetSession("abc")
	require.True(t, ok)

	assert.Equal(t, "abc", sum.SessionID)
	assert.Equal(t, "AGENT", sum.SessionType)
	assert.Equal(t, 2, sum.MessageCount)
	assert.Equal(t, "trading_agent_agent_1", sum.Agent.AgentID)
	assert.Equal(t, "agent_1", sum.Agent.ConfigAgentID)
	assert.Equal(t, "Bedrock Cronos", sum.Agent.Name)
	assert.Equal(t, "Amazon Bedrock", sum.Agent.ProviderDisplay)
	assert.Equal(t, "cronos", sum.Agent.TradingContext)
	assert.Greater(t, sum.SizeBytes, int64(0))
	assert.Equal(t, FormatSize(sum.SizeBytes), sum.Size)

	_, ok = s.GetSession("missing")
	assert.False(t, ok)
	_, ok = s.GetSession("../etc")
	assert.False(t, ok)
}

func TestListSessions_SizeCountsOnlyJSON(t *testing.T) {
	f := newFixture(t)
	f.write(filepath.Join("session_x", "session.json"), `{"session_id":"x"}`)
	f.write(filepath.Join("session_x", "blob.bin"), string(make([]byte, 4096)))

	s := newTestStore(t, f.root, nil)
	sum, ok := s.GetSession("x")
	require.True(t, ok)
	assert.Equal(t, int64(len(`{"session_id":"x"}`)), sum.SizeBytes)
	assert.Equal(t, "18B", sum.Size)
	assert.Equal(t, "UNKNOWN", sum.SessionType)
}

func TestListSessions_AgentInfoFallbacks(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	// snapshot missing, registry knows the agent
	f.session("reg", now)
	f.agent("reg", "trading_agent_agent_r", nil)

	// snapshot missing, registry does not know the agent
	f.session("lost", now)
	f.agent("lost", "trading_agent_agent_gone", nil)

	// no agent directory at all
	f.session("bare", now)

	// snapshot with an unlisted provider id
	f.session("custom", now)
	f.agent("custom", "trading_agent_agent_c", map[string]any{
		"id": "agent_c", "name": "C", "ai_provider": "local-llama", "trading_chain": "kaia",
	})

	reg := agentconfig.StaticRegistry{
		"agent_r": {ID: "agent_r", Name: "From Registry", Provider: "openai-compatible", TradingContext: "sui"},
	}
	s := newTestStore(t, f.root, reg)

	byID := map[string]Summary{}
	for _, sum := range s.ListSessions() {
		byID[sum.SessionID] = sum
		assert.NotEmpty(t, sum.Agent.ProviderDisplay, sum.SessionID)
	}
	require.Len(t, byID, 4)

	assert.Equal(t, "From Registry", byID["reg"].Agent.Name)
	assert.Equal(t, "OpenAI Compatible", byID["reg"].Agent.ProviderDisplay)
	assert.Equal(t, "sui", byID["reg"].Agent.TradingContext)

	assert.Equal(t, "unknown", byID["lost"].Agent.Provider)
	assert.Equal(t, "Unknown", byID["lost"].Agent.ProviderDisplay)

	assert.Equal(t, "", byID["bare"].Agent.AgentID)
	assert.Equal(t, 0, byID["bare"].MessageCount)

	assert.Equal(t, "Local Llama", byID["custom"].Agent.ProviderDisplay)
}

func TestFindSessionByAgent(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	f.session("one", base)
	f.agent("one", "trading_agent_agent_a", map[string]any{"id": "agent_a", "ai_provider": "gemini"})
	f.session("two", base.Add(time.Hour))
	f.agent("two", "trading_agent_agent_a", map[string]any{"id": "agent_a", "ai_provider": "gemini"})
	f.session("three", base.Add(2*time.Hour))
	f.agent("three", "trading_agent_agent_b", map[string]any{"id": "agent_b", "ai_provider": "gemini"})

	s := newTestStore(t, f.root, nil)
	sum, ok := s.FindSessionByAgent("agent_a")
	require.True(t, ok)
	assert.Equal(t, "two", sum.SessionID)

	sum, ok = s.FindSessionByAgent("trading_agent_agent_b")
	require.True(t, ok)
	assert.Equal(t, "three", sum.SessionID)

	_, ok = s.FindSessionByAgent("agent_z")
	assert.False(t, ok)
}

func TestGetSessionMessages_NumericOrder(t *testing.T) {
	f := newFixture(t)
	f.session("s", time.Now())
	const n = 25
	order := rand.New(rand.NewSource(7)).Perm(n)
	for _, i := range order {
		f.message("s", "trading_agent_agent_1", i, "user", text(fmt.Sprintf("m%d", i)))
	}

	s := newTestStore(t, f.root, nil)
	msgs, err := s.GetSessionMessages("s")
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, i, m.ID)
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
}

func TestGetSessionMessages_ContentExtraction(t *testing.T) {
	f := newFixture(t)
	f.session("s", time.Now())
	agent := "trading_agent_agent_1"
	f.message("s", agent, 0, "user", text("plain"))
	f.message("s", agent, 1, "assistant", reasoning("thinking..."), text("answer"))
	f.message("s", agent, 2, "assistant", text("   "), text("second block"))
	f.message("s", agent, 3, "assistant", reasoning("only reasoning"))
	f.message("s", agent, 4, "assistant", map[string]any{"toolUse": map[string]any{"name": "price"}})
	f.message("s", agent, 5, "user", text(""))
	f.message("s", agent, 6, "assistant")
	f.message("s", agent, 7, "user", "not-an-object", text("after junk"))
	f.write(filepath.Join("session_s", "agents", "agent_"+agent, "messages", "message_8.json"), "{broken")
	f.write(filepath.Join("session_s", "agents", "agent_"+agent, "messages", "message_x.json"), `{}`)
	f.message("s", agent, 10, "", text("no role"))

	s := newTestStore(t, f.root, nil)
	msgs, err := s.GetSessionMessages("s")
	require.NoError(t, err)

	got := map[int]Message{}
	for _, m := range msgs {
		got[m.ID] = m
		assert.NotEmpty(t, m.Content)
	}
	assert.Len(t, msgs, 5)
	assert.Equal(t, "plain", got[0].Content)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "answer", got[1].Content)
	assert.Equal(t, "second block", got[2].Content)
	assert.NotContains(t, got, 3, "reasoning-only turns are dropped")
	assert.Equal(t, "after junk", got[7].Content)
	assert.Equal(t, "unknown", got[10].Role)
	assert.Equal(t, 2025, got[0].CreatedAt.Year())
}

func TestGetSessionMessages_MissingPieces(t *testing.T) {
	f := newFixture(t)
	f.session("noagent", time.Now())

	s := newTestStore(t, f.root, nil)

	msgs, err := s.GetSessionMessages("noagent")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	msgs, err = s.GetSessionMessages("nosession")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.GetSessionMessages("../escape")
	require.ErrorIs(t, err, ErrInvalidPathComponent)
}

func TestDeleteSession_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.session("gone", time.Now())
	f.message("gone", "trading_agent_agent_1", 0, "user", text("bye"))

	s := newTestStore(t, f.root, nil)
	assert.True(t, s.Exists("gone"))

	deleted, err := s.DeleteSession("gone")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoDirExists(t, filepath.Join(f.root, "session_gone"))
	assert.False(t, s.Exists("gone"))
	assert.False(t, s.Exists("../x"))

	for i := 0; i < 2; i++ {
		deleted, err = s.DeleteSession("gone")
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = s.DeleteSession("never-existed")
		require.NoError(t, err)
		assert.False(t, deleted)
	}

	_, err = s.DeleteSession("../x")
	require.ErrorIs(t, err, ErrInvalidPathComponent)
}

func TestAgentSnapshot(t *testing.T) {
	f := newFixture(t)
	f.session("with", time.Now())
	f.agent("with", "trading_agent_agent_1", map[string]any{"id": "agent_1", "name": "N", "ai_provider": "anthropic"})
	f.session("empty", time.Now())
	f.agent("empty", "trading_agent_agent_2", map[string]any{})

	s := newTestStore(t, f.root, nil)

	snap, ok := s.AgentSnapshot("with")
	require.True(t, ok)
	assert.Equal(t, "agent_1", snap.ID)

	_, ok = s.AgentSnapshot("empty")
	assert.False(t, ok)
	_, ok = s.AgentSnapshot("missing")
	assert.False(t, ok)
}
