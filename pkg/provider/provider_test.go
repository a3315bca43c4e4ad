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
package provider

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradearena/arena/pkg/agentconfig"
)

// isolateAWS keeps the developer's AWS files and variables out of the test.
func isolateAWS(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
}

func TestBuildAnthropic(t *testing.T) {
	cfg, err := agentconfig.DecodeProviderConfig("anthropic", map[string]any{"api_key": "sk-ant-test"})
	require.NoError(t, err)

	client, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, agentconfig.ProviderAnthropic, client.Provider())
	assert.Equal(t, agentconfig.DefaultAnthropicModelID, client.Model())

	ac, ok := client.(*AnthropicClient)
	require.True(t, ok)
	params := ac.MessageParams()
	assert.Equal(t, int64(agentconfig.DefaultAnthropicTokens), params.MaxTokens)
	assert.Empty(t, ac.Region())
}

func TestBuildBedrockWithStaticCredentials(t *testing.T) {
	isolateAWS(t)
	cfg, err := agentconfig.DecodeProviderConfig("amazon-bedrock", map[string]any{
		"region_name":           "us-west-2",
		"aws_access_key_id":     "AKIDEXAMPLE",
		"aws_secret_access_key": "secret",
	})
	require.NoError(t, err)

	client, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, agentconfig.ProviderBedrock, client.Provider())
	assert.Equal(t, agentconfig.DefaultBedrockModelID, client.Model())
	assert.Equal(t, "us-west-2", client.(*AnthropicClient).Region())
}

func TestBuildBedrockConverseModel(t *testing.T) {
	isolateAWS(t)
	cfg, err := agentconfig.DecodeProviderConfig("amazon_bedrock", map[string]any{
		"model_id":              "amazon.nova-pro-v1:0",
		"region_name":           "eu-west-1",
		"aws_access_key_id":     "AKIDEXAMPLE",
		"aws_secret_access_key": "secret",
		"max_tokens":            1024,
	})
	require.NoError(t, err)

	client, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	converse, ok := client.(*ConverseClient)
	require.True(t, ok, "expected Converse client, got %T", client)
	assert.Equal(t, "eu-west-1", converse.Region())

	input := converse.ConverseParams()
	assert.Equal(t, "amazon.nova-pro-v1:0", *input.ModelId)
	require.NotNil(t, input.InferenceConfig)
	assert.Equal(t, int32(1024), *input.InferenceConfig.MaxTokens)
}

func TestIsAnthropicModel(t *testing.T) {
	assert.True(t, isAnthropicModel("anthropic.claude-3-5-sonnet-20241022-v2:0"))
	assert.True(t, isAnthropicModel(agentconfig.DefaultBedrockModelID))
	assert.False(t, isAnthropicModel("amazon.nova-pro-v1:0"))
	assert.False(t, isAnthropicModel("meta.llama3-70b-instruct-v1:0"))
}

func TestBuildBedrockMissingProfile(t *testing.T) {
	isolateAWS(t)
	cfg := agentconfig.BedrockConfig{
		ModelID: agentconfig.DefaultBedrockModelID,
		Region:  agentconfig.DefaultBedrockRegion,
		Profile: "arena-test-no-such-profile",
	}

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildGemini(t *testing.T) {
	cfg, err := agentconfig.DecodeProviderConfig("gemini", map[string]any{
		"api_key": "AIzaSyTestKeyTestKeyTestKeyTestKey00",
		"top_k":   "20",
	})
	require.NoError(t, err)

	client, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, agentconfig.DefaultGeminiModelID, client.Model())

	gen := client.(*GeminiClient).GenerateConfig()
	assert.Equal(t, int32(agentconfig.DefaultGeminiTokens), gen.MaxOutputTokens)
	require.NotNil(t, gen.TopK)
	assert.Equal(t, float32(20), *gen.TopK)
	require.NotNil(t, gen.Temperature)
	assert.InDelta(t, agentconfig.DefaultTemperature, *gen.Temperature, 1e-6)

	gen.MaxOutputTokens = 1
	assert.Equal(t, int32(agentconfig.DefaultGeminiTokens), client.(*GeminiClient).GenerateConfig().MaxOutputTokens)
}

func TestBuildOpenAICompatible(t *testing.T) {
	cfg, err := agentconfig.DecodeProviderConfig("openai_compatible", map[string]any{
		"api_key":  "sk-test",
		"base_url": "http://localhost:11434/v1",
		"model_id": "llama3.1",
	})
	require.NoError(t, err)

	client, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	oc := client.(*OpenAIClient)
	assert.Equal(t, "http://localhost:11434/v1", oc.BaseURL())

	req := oc.ChatRequest()
	assert.Equal(t, "llama3.1", req.Model)
	assert.Equal(t, agentconfig.DefaultOpenAITokens, req.MaxTokens)
}

func TestBuildOpenAIDefaultEndpoint(t *testing.T) {
	client, err := Build(context.Background(), agentconfig.OpenAICompatibleConfig{
		APIKey:    "sk-test",
		ModelID:   "gpt-4o",
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", client.(*OpenAIClient).BaseURL())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := Build(context.Background(), agentconfig.AnthropicConfig{ModelID: "claude", MaxTokens: 10})
	assert.Error(t, err)

	_, err = Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedConfig)

	_, err = Build(context.Background(), &agentconfig.AnthropicConfig{APIKey: "k", MaxTokens: 10})
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
}

func TestBuildForAgent(t *testing.T) {
	agent := agentconfig.AgentConfig{
		ID:             "agent_1a2b3c4d",
		Provider:       "OpenAI Compatible",
		TradingContext: "cronos",
		Config:         map[string]any{"api_key": "sk-test"},
	}
	client, err := BuildForAgent(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, agentconfig.ProviderOpenAICompatible, client.Provider())

	agent.Config = nil
	_, err = BuildForAgent(context.Background(), agent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_1a2b3c4d")
}
