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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, LogFields(ctx))

	ctx = WithSessionID(ctx, "")
	assert.Empty(t, SessionIDFromContext(ctx))

	ctx = WithAgentID(WithSessionID(ctx, "4f6c1d2e"), "trading_agent_agent_1a2b3c4d")
	assert.Equal(t, "4f6c1d2e", SessionIDFromContext(ctx))
	assert.Equal(t, "trading_agent_agent_1a2b3c4d", AgentIDFromContext(ctx))

	fields := LogFields(ctx)
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "session_id", fields[0].Key)
		assert.Equal(t, "agent_id", fields[1].Key)
	}
}
