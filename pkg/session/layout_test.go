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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageID(t *testing.T) {
	tests := []struct {
		name string
		id   int
		ok   bool
	}{
		{"message_0.json", 0, true},
		{"message_12.json", 12, true},
		{"message_007.json", 7, true},
		{"/a/b/message_3.json", 3, true},
		{"message_.json", 0, false},
		{"message_x.json", 0, false},
		{"message_-1.json", 0, false},
		{"message_1.txt", 0, false},
		{"msg_1.json", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseMessageID(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.id, id, tt.name)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0B", FormatSize(0))
	assert.Equal(t, "1023B", FormatSize(1023))
	assert.Equal(t, "1KB", FormatSize(1024))
	assert.Equal(t, "1KB", FormatSize(2047))
	assert.Equal(t, "1023KB", FormatSize(1024*1024-1))
	assert.Equal(t, "1MB", FormatSize(1024*1024))
	assert.Equal(t, "5MB", FormatSize(5*1024*1024+10))
}

func TestValidatePathComponent(t *testing.T) {
	require.NoError(t, validatePathComponent("0b9e6f3c-uuid"))
	for _, bad := range []string{"", "../x", "a/b", `a\b`, ".."} {
		assert.ErrorIs(t, validatePathComponent(bad), ErrInvalidPathComponent, bad)
	}
}

func TestPaths(t *testing.T) {
	dir := SessionDir("/root/sessions", "abc")
	assert.Equal(t, "/root/sessions/session_abc", dir)
	agent := AgentDir(dir, "trading_agent_agent_1")
	assert.Equal(t, "/root/sessions/session_abc/agents/agent_trading_agent_agent_1", agent)
	assert.Equal(t, agent+"/messages/message_4.json", MessagePath(agent, 4))
}

func TestTimestamp(t *testing.T) {
	for _, in := range []string{
		`"2025-10-01T12:30:00Z"`,
		`"2025-10-01T12:30:00.123456+00:00"`,
		`"2025-10-01T12:30:00.123456"`,
		`"2025-10-01 12:30:00"`,
	} {
		var ts Timestamp
		require.NoError(t, ts.UnmarshalJSON([]byte(in)), in)
		assert.Equal(t, 2025, ts.Year(), in)
		assert.Equal(t, 30, ts.Minute(), in)
	}

	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`null`)))
	assert.True(t, ts.IsZero())
	require.NoError(t, ts.UnmarshalJSON([]byte(`""`)))
	assert.True(t, ts.IsZero())
	assert.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
	assert.Error(t, ts.UnmarshalJSON([]byte(`42`)))

	out, err := Timestamp{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
