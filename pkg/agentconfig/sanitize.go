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
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSensitiveField is returned when a snapshot about to be persisted still
// carries a secret-bearing key.
var ErrSensitiveField = errors.New("sensitive field in sanitized config")

// RuntimeAgentPrefix is prepended to a registry id to form the agent id
// recorded in session state.
const RuntimeAgentPrefix = "trading_agent_"

// SensitiveFields are config keys that never reach session storage.
// Keys are compared case-insensitively.
var SensitiveFields = []string{
	"api_key",
	"region_name",
	"base_url",
	"aws_access_key_id",
	"aws_secret_access_key",
	"aws_session_token",
}

// IsSensitive reports whether key is on the SensitiveFields list.
func IsSensitive(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, f := range SensitiveFields {
		if k == f {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of cfg without sensitive keys. Maps nested at any
// depth, including inside lists, are sanitized the same way. The input is not
// modified.
func Sanitize(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if IsSensitive(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return Sanitize(v)
	case []map[string]any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Sanitize(elem)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return v
	}
}

// Snapshot is the persisted, non-sensitive view of an agent captured when a
// session is created.
type Snapshot struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Provider       string         `json:"ai_provider"`
	TradingContext string         `json:"trading_chain"`
	Config         map[string]any `json:"config"`
}

// NewSnapshot captures the identity of cfg and a sanitized copy of its payload.
func NewSnapshot(cfg AgentConfig) Snapshot {
	return Snapshot{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Provider:       cfg.Provider,
		TradingContext: cfg.TradingContext,
		Config:         Sanitize(cfg.Config),
	}
}

// Validate rejects a snapshot whose config contains any sensitive key, at
// any depth.
func (s Snapshot) Validate() error {
	if keys := sensitiveKeys(s.Config, ""); len(keys) > 0 {
		sort.Strings(keys)
		return fmt.Errorf("%w: %s", ErrSensitiveField, strings.Join(keys, ", "))
	}
	return nil
}

// Empty reports whether the snapshot carries no identity at all.
func (s Snapshot) Empty() bool {
	return s.ID == "" && s.Name == "" && s.Provider == "" && s.TradingContext == ""
}

// sensitiveKeys lists sensitive keys as dotted paths, with list elements
// written as key[i].
func sensitiveKeys(cfg map[string]any, prefix string) []string {
	var keys []string
	for k, v := range cfg {
		if IsSensitive(k) {
			keys = append(keys, prefix+k)
		}
		keys = append(keys, sensitiveKeysIn(v, prefix+k)...)
	}
	return keys
}

func sensitiveKeysIn(v any, path string) []string {
	switch v := v.(type) {
	case map[string]any:
		return sensitiveKeys(v, path+".")
	case []map[string]any:
		var keys []string
		for i, elem := range v {
			keys = append(keys, sensitiveKeys(elem, fmt.Sprintf("%s[%d].", path, i))...)
		}
		return keys
	case []any:
		var keys []string
		for i, elem := range v {
			keys = append(keys, sensitiveKeysIn(elem, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return keys
	default:
		return nil
	}
}

// RuntimeAgentID returns the agent id recorded in session state for a
// registry id.
func RuntimeAgentID(configID string) string {
	if strings.HasPrefix(configID, RuntimeAgentPrefix) {
		return configID
	}
	return RuntimeAgentPrefix + configID
}

// ConfigAgentID maps a runtime agent id back to its registry id.
func ConfigAgentID(runtimeID string) string {
	return strings.TrimPrefix(runtimeID, RuntimeAgentPrefix)
}
