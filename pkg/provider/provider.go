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
// Package provider turns a resolved agent configuration into a ready SDK
// client for its AI provider. Nothing here sends a request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tradearena/arena/pkg/agentconfig"
	"google.golang.org/genai"
)

// ErrUnsupportedConfig is returned for a ProviderConfig variant Build does
// not know.
var ErrUnsupportedConfig = errors.New("unsupported provider config")

// Client is a constructed provider client.
type Client interface {
	Provider() agentconfig.ProviderID
	Model() string
}

// Build constructs the SDK client for a validated provider configuration.
func Build(ctx context.Context, cfg agentconfig.ProviderConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", cfg.Provider(), err)
	}

	switch c := cfg.(type) {
	case agentconfig.AnthropicConfig:
		return newAnthropic(c), nil
	case agentconfig.BedrockConfig:
		return newBedrock(ctx, c)
	case agentconfig.GeminiConfig:
		return newGemini(ctx, c)
	case agentconfig.OpenAICompatibleConfig:
		return newOpenAI(c), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedConfig, cfg)
	}
}

// BuildForAgent decodes the agent's provider payload and builds its client.
func BuildForAgent(ctx context.Context, agent agentconfig.AgentConfig) (Client, error) {
	cfg, err := agent.ProviderConfig()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agent.ID, err)
	}
	return Build(ctx, cfg)
}

// AnthropicClient serves Claude models, directly or through Amazon Bedrock.
type AnthropicClient struct {
	SDK anthropic.Client

	provider  agentconfig.ProviderID
	model     string
	maxTokens int64
	region    string
}

func newAnthropic(cfg agentconfig.AnthropicConfig) *AnthropicClient {
	return &AnthropicClient{
		SDK:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		provider:  agentconfig.ProviderAnthropic,
		model:     cfg.ModelID,
		maxTokens: int64(cfg.MaxTokens),
	}
}

// newBedrock serves Claude models through the Anthropic SDK and every other
// Bedrock model through the Converse API.
func newBedrock(ctx context.Context, cfg agentconfig.BedrockConfig) (Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	switch {
	case cfg.AccessKeyID != "":
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	case cfg.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	var (
		awsCfg aws.Config
		err    error
	)
	awsCfg, err = config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if !isAnthropicModel(cfg.ModelID) {
		return &ConverseClient{
			SDK:       bedrockruntime.NewFromConfig(awsCfg),
			model:     cfg.ModelID,
			maxTokens: cfg.MaxTokens,
			region:    awsCfg.Region,
		}, nil
	}

	return &AnthropicClient{
		SDK:       anthropic.NewClient(bedrock.WithConfig(awsCfg)),
		provider:  agentconfig.ProviderBedrock,
		model:     cfg.ModelID,
		maxTokens: int64(cfg.MaxTokens),
		region:    awsCfg.Region,
	}, nil
}

func (c *AnthropicClient) Provider() agentconfig.ProviderID { return c.provider }
func (c *AnthropicClient) Model() string                    { return c.model }

// Region is the Bedrock region; empty for the direct API.
func (c *AnthropicClient) Region() string { return c.region }

// MessageParams returns request parameters carrying the configured model and
// token limit.
func (c *AnthropicClient) MessageParams() anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
	}
}

// isAnthropicModel matches Bedrock model ids and inference profiles such as
// "anthropic.claude-..." and "us.anthropic.claude-...".
func isAnthropicModel(modelID string) bool {
	return strings.HasPrefix(modelID, "anthropic.") || strings.Contains(modelID, ".anthropic.")
}

// ConverseClient serves non-Anthropic Bedrock models.
type ConverseClient struct {
	SDK *bedrockruntime.Client

	model     string
	maxTokens int
	region    string
}

func (c *ConverseClient) Provider() agentconfig.ProviderID { return agentconfig.ProviderBedrock }
func (c *ConverseClient) Model() string                    { return c.model }
func (c *ConverseClient) Region() string                   { return c.region }

// ConverseParams returns a Converse request carrying the model and token
// limit. Callers add messages.
func (c *ConverseClient) ConverseParams() *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{ModelId: aws.String(c.model)}
	if c.maxTokens > 0 {
		input.InferenceConfig = &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(c.maxTokens)),
		}
	}
	return input
}

// GeminiClient serves Google Gemini models.
type GeminiClient struct {
	SDK *genai.Client

	model      string
	generation genai.GenerateContentConfig
}

func newGemini(ctx context.Context, cfg agentconfig.GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		SDK:   client,
		model: cfg.ModelID,
		generation: genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(cfg.Temperature)),
			TopP:            genai.Ptr(float32(cfg.TopP)),
			TopK:            genai.Ptr(float32(cfg.TopK)),
			MaxOutputTokens: int32(cfg.MaxOutputTokens),
		},
	}, nil
}

func (c *GeminiClient) Provider() agentconfig.ProviderID { return agentconfig.ProviderGemini }
func (c *GeminiClient) Model() string                    { return c.model }

// GenerateConfig returns a fresh copy of the configured sampling settings.
func (c *GeminiClient) GenerateConfig() *genai.GenerateContentConfig {
	cfg := c.generation
	return &cfg
}

// OpenAIClient serves OpenAI or any server speaking its chat API.
type OpenAIClient struct {
	SDK *openai.Client

	model       string
	baseURL     string
	maxTokens   int
	temperature float32
}

func newOpenAI(cfg agentconfig.OpenAICompatibleConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		SDK:         openai.NewClientWithConfig(clientCfg),
		model:       cfg.ModelID,
		baseURL:     clientCfg.BaseURL,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

func (c *OpenAIClient) Provider() agentconfig.ProviderID {
	return agentconfig.ProviderOpenAICompatible
}
func (c *OpenAIClient) Model() string { return c.model }

// BaseURL is the API endpoint the client talks to.
func (c *OpenAIClient) BaseURL() string { return c.baseURL }

// ChatRequest returns a chat completion request carrying the configured
// model and sampling settings.
func (c *OpenAIClient) ChatRequest() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
}
