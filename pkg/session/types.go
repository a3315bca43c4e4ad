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
// Package session reads and writes the filesystem session log: one directory
// per session holding an agent snapshot and its numbered message files.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tradearena/arena/pkg/agentconfig"
)

// Timestamp is a time that tolerates the formats found in session files:
// RFC 3339 with or without fractional seconds, naive ISO-8601 (treated as
// UTC), and empty or null values (the zero time).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses any of the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON emits RFC 3339 in UTC, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Summary describes one session in a listing.
type Summary struct {
	SessionID    string    `json:"session_id"`
	SessionType  string    `json:"session_type"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	Agent        AgentInfo `json:"agent_info"`
	MessageCount int       `json:"message_count"`
	SizeBytes    int64     `json:"size_bytes"`
	Size         string    `json:"file_size"`
}

// AgentInfo is the display view of the agent that owns a session.
type AgentInfo struct {
	// AgentID is the runtime id recorded in agent.json.
	AgentID         string `json:"agent_id"`
	ConfigAgentID   string `json:"config_agent_id,omitempty"`
	Name            string `json:"name"`
	Provider        string `json:"ai_provider"`
	ProviderDisplay string `json:"ai_provider_display"`
	TradingContext  string `json:"trading_chain"`
}

// Message is one conversational turn with its extracted text.
type Message struct {
	ID        int       `json:"message_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// TypeAgent is the session type written for new sessions.
const TypeAgent = "AGENT"

const (
	unknownValue = "unknown"
	unknownAgent = "Unknown Agent"
)

type sessionRecord struct {
	SessionID   string    `json:"session_id"`
	SessionType string    `json:"session_type"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

type agentRecord struct {
	AgentID   string     `json:"agent_id"`
	State     agentState `json:"state"`
	CreatedAt Timestamp  `json:"created_at"`
	UpdatedAt Timestamp  `json:"updated_at"`
}

type agentState struct {
	AgentConfig *agentconfig.Snapshot `json:"agent_config,omitempty"`
}

type messageRecord struct {
	MessageID int         `json:"message_id"`
	Message   messageBody `json:"message"`
	CreatedAt Timestamp   `json:"created_at"`
	UpdatedAt Timestamp   `json:"updated_at"`
}

type messageBody struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

type contentBlock struct {
	Text *string `json:"text,omitempty"`
}

// extractText returns the first non-blank direct text block. Reasoning
// blocks are never shown, so a turn that carries only reasoning is blank.
func extractText(blocks []json.RawMessage) string {
	for _, raw := range blocks {
		var b contentBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			continue
		}
		if b.Text != nil && strings.TrimSpace(*b.Text) != "" {
			return *b.Text
		}
	}
	return ""
}
