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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProviderID(t *testing.T) {
	tests := map[string]ProviderID{
		"amazon_bedrock":    ProviderBedrock,
		"amazon-bedrock":    ProviderBedrock,
		"openai-compatible": ProviderOpenAICompatible,
		"openai compatible": ProviderOpenAICompatible,
		"OpenAI Compatible": ProviderOpenAICompatible,
		" anthropic ":       ProviderAnthropic,
		"my-provider":       "my_provider",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeProviderID(in), in)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"amazon_bedrock", "Amazon Bedrock"},
		{"amazon-bedrock", "Amazon Bedrock"},
		{"anthropic", "Anthropic"},
		{"gemini", "Gemini"},
		{"openai compatible", "OpenAI Compatible"},
		{"openai-compatible", "OpenAI Compatible"},
		{"local-llama_server", "Local Llama Server"},
		{"mistral", "Mistral"},
		{"", "Unknown"},
		{"  ", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := DisplayName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got)
		})
	}
}

func TestContextDisplayName(t *testing.T) {
	assert.Equal(t, "Cronos", ContextDisplayName("cronos"))
	assert.Equal(t, "Sui", ContextDisplayName("SUI"))
	assert.Equal(t, "Base Sepolia", ContextDisplayName("base-sepolia"))
}

func TestDecodeProviderConfig_Defaults(t *testing.T) {
	t.Run("bedrock", func(t *testing.T) {
		pc, err := DecodeProviderConfig("amazon-bedrock", nil)
		require.NoError(t, err)
		c, ok := pc.(BedrockConfig)
		require.True(t, ok)
		assert.Equal(t, DefaultBedrockModelID, c.ModelID)
		assert.Equal(t, DefaultBedrockRegion, c.Region)
		assert.Equal(t, ProviderBedrock, c.Provider())
	})

	t.Run("anthropic", func(t *testing.T) {
		pc, err := DecodeProviderConfig("anthropic", map[string]any{"api_key": "sk-ant"})
		require.NoError(t, err)
		c := pc.(AnthropicConfig)
		assert.Equal(t, "sk-ant", c.APIKey)
		assert.Equal(t, DefaultAnthropicModelID, c.ModelID)
		assert.Equal(t, DefaultAnthropicTokens, c.MaxTokens)
	})

	t.Run("gemini", func(t *testing.T) {
		pc, err := DecodeProviderConfig("gemini", map[string]any{"api_key": "g", "top_k": "20"})
		require.NoError(t, err)
		c := pc.(GeminiConfig)
		assert.Equal(t, DefaultGeminiModelID, c.ModelID)
		assert.Equal(t, DefaultGeminiTokens, c.MaxOutputTokens)
		assert.InDelta(t, DefaultTemperature, c.Temperature, 1e-9)
		assert.InDelta(t, DefaultTopP, c.TopP, 1e-9)
		assert.Equal(t, 20, c.TopK)
	})

	t.Run("openai compatible keeps empty base url", func(t *testing.T) {
		pc, err := DecodeProviderConfig("openai_compatible", map[string]any{
			"api_key":  "sk",
			"base_url": "",
			"model_id": "",
		})
		require.NoError(t, err)
		c := pc.(OpenAICompatibleConfig)
		assert.Empty(t, c.BaseURL)
		assert.Equal(t, DefaultOpenAIModelID, c.ModelID)
		assert.Equal(t, DefaultOpenAITokens, c.MaxTokens)
	})
}

func TestDecodeProviderConfig_Errors(t *testing.T) {
	_, err := DecodeProviderConfig("anthropic", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")

	_, err = DecodeProviderConfig("gemini", map[string]any{"api_key": "g", "top_p": 1.5})
	require.Error(t, err)

	_, err = DecodeProviderConfig("amazon_bedrock", map[string]any{"aws_access_key_id": "AKIA"})
	require.Error(t, err)

	_, err = DecodeProviderConfig("cohere", nil)
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = DecodeProviderConfig("anthropic", map[string]any{"api_key": "k", "max_tokens": "lots"})
	require.Error(t, err)
}

func TestAgentConfig_ProviderConfig(t *testing.T) {
	a := AgentConfig{
		ID:       "agent_1",
		Provider: "openai compatible",
		Config:   map[string]any{"api_key": "sk", "base_url": "http://localhost:8000/v1", "max_tokens": 256},
	}
	assert.Equal(t, ProviderOpenAICompatible, a.ProviderID())

	pc, err := a.ProviderConfig()
	require.NoError(t, err)
	c := pc.(OpenAICompatibleConfig)
	assert.Equal(t, "http://localhost:8000/v1", c.BaseURL)
	assert.Equal(t, 256, c.MaxTokens)
}
