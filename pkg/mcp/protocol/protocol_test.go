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
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_JSON(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`7`, "7"},
		{`"abc"`, "abc"},
		{`null`, "null"},
	}
	for _, tt := range tests {
		var id RequestID
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &id), tt.raw)
		assert.Equal(t, tt.want, id.String())

		out, err := json.Marshal(&id)
		require.NoError(t, err)
		assert.JSONEq(t, tt.raw, string(out))
	}

	var id RequestID
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &id))
}

func TestRequest_NotificationOmitsID(t *testing.T) {
	data, err := json.Marshal(&Request{JSONRPC: JSONRPCVersion, Method: MethodInitialized})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(data))
}

func TestError(t *testing.T) {
	e := NewError(InvalidParams, "bad", map[string]string{"field": "x"})
	assert.Contains(t, e.Error(), "-32602")
	assert.Contains(t, e.Error(), `"field":"x"`)
	assert.Equal(t, "JSON-RPC error -32601: nope", NewError(MethodNotFound, "nope", nil).Error())
}

func TestValidateResponse(t *testing.T) {
	id := NewNumericRequestID(1)
	require.NoError(t, ValidateResponse(&Response{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{}`)}))
	require.NoError(t, ValidateResponse(&Response{JSONRPC: "2.0", ID: id, Error: NewError(InternalError, "x", nil)}))
	assert.Error(t, ValidateResponse(&Response{JSONRPC: "2.0", ID: id}))
	assert.Error(t, ValidateResponse(&Response{JSONRPC: "1.0", ID: id, Result: json.RawMessage(`{}`)}))
	assert.Error(t, ValidateResponse(&Response{JSONRPC: "2.0", Result: json.RawMessage(`{}`)}))
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(&Request{JSONRPC: "2.0", Method: "ping"}))
	assert.Error(t, ValidateRequest(&Request{JSONRPC: "2.0"}))
	assert.Error(t, ValidateRequest(&Request{JSONRPC: "1.0", Method: "ping"}))
}

func TestValidateToolArguments(t *testing.T) {
	tool := Tool{
		Name: "get_price",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string"},
			},
			"required": []any{"symbol"},
		},
	}

	require.NoError(t, ValidateToolArguments(tool, map[string]any{"symbol": "CRO"}))

	err := ValidateToolArguments(tool, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")

	require.Error(t, ValidateToolArguments(tool, map[string]any{"symbol": 5}))
	require.NoError(t, ValidateToolArguments(Tool{Name: "free"}, nil))
}

func TestCallToolResult_Text(t *testing.T) {
	r := CallToolResult{Content: []Content{
		{Type: "text", Text: "a"},
		{Type: "image", Data: "xx"},
		{Type: "text", Text: "b"},
	}}
	assert.Equal(t, "ab", r.Text())
}
