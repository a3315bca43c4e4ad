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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cfg := map[string]any{
		"api_key":     "sk-secret",
		"region_name": "eu-west-1",
		"base_url":    "https://proxy.internal",
		"model_id":    "gpt-4o",
		"max_tokens":  4000,
		"extra": map[string]any{
			"API_KEY": "nested-secret",
			"note":    "kept",
		},
	}

	out := Sanitize(cfg)
	assert.Equal(t, "gpt-4o", out["model_id"])
	assert.Equal(t, 4000, out["max_tokens"])
	for _, key := range SensitiveFields {
		assert.NotContains(t, out, key)
	}
	assert.Equal(t, map[string]any{"note": "kept"}, out["extra"])

	// input untouched
	assert.Equal(t, "sk-secret", cfg["api_key"])
	assert.Contains(t, cfg["extra"], "API_KEY")
}

func TestSanitize_Lists(t *testing.T) {
	cfg := map[string]any{
		"fallbacks": []any{
			map[string]any{"model_id": "gpt-4o", "api_key": "sk-live-secret"},
			[]any{map[string]any{"base_url": "https://proxy.internal", "note": "deep"}},
			"plain",
		},
		"typed": []map[string]any{{"aws_session_token": "tok", "region": "kept"}},
	}

	out := Sanitize(cfg)
	assert.Equal(t, []any{
		map[string]any{"model_id": "gpt-4o"},
		[]any{map[string]any{"note": "deep"}},
		"plain",
	}, out["fallbacks"])
	assert.Equal(t, []any{map[string]any{"region": "kept"}}, out["typed"])

	// input untouched
	fallback := cfg["fallbacks"].([]any)[0].(map[string]any)
	assert.Equal(t, "sk-live-secret", fallback["api_key"])

	snap := NewSnapshot(AgentConfig{ID: "agent_1", Config: cfg})
	require.NoError(t, snap.Validate())
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live-secret")
}

func TestSnapshot_RoundTripDropsSensitiveKeys(t *testing.T) {
	cfg := map[string]any{"model_id": "m"}
	for _, key := range SensitiveFields {
		cfg[key] = "secret-" + key
	}

	snap := NewSnapshot(AgentConfig{
		ID:             "agent_1",
		Name:           "Anthropic - Cronos",
		Provider:       "anthropic",
		TradingContext: "cronos",
		Config:         cfg,
	})
	require.NoError(t, snap.Validate())

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))

	for _, key := range SensitiveFields {
		assert.NotContains(t, back.Config, key)
		assert.NotContains(t, string(data), "secret-"+key)
	}
	assert.Equal(t, "m", back.Config["model_id"])
}

func TestSnapshot_Validate(t *testing.T) {
	snap := Snapshot{ID: "agent_1", Config: map[string]any{
		"model_id": "m",
		"Base_URL": "http://x",
		"nested":   map[string]any{"api_key": "k"},
		"list":     []any{"x", map[string]any{"aws_secret_access_key": "s"}},
	}}
	err := snap.Validate()
	require.ErrorIs(t, err, ErrSensitiveField)
	assert.Contains(t, err.Error(), "Base_URL")
	assert.Contains(t, err.Error(), "nested.api_key")
	assert.Contains(t, err.Error(), "list[1].aws_secret_access_key")

	assert.True(t, Snapshot{}.Empty())
	assert.False(t, snap.Empty())
}

func TestAgentIDMapping(t *testing.T) {
	assert.Equal(t, "trading_agent_agent_ab12cd34", RuntimeAgentID("agent_ab12cd34"))
	assert.Equal(t, "trading_agent_agent_ab12cd34", RuntimeAgentID("trading_agent_agent_ab12cd34"))
	assert.Equal(t, "agent_ab12cd34", ConfigAgentID("trading_agent_agent_ab12cd34"))
	assert.Equal(t, "agent_ab12cd34", ConfigAgentID("agent_ab12cd34"))
}
