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

	"github.com/go-viper/mapstructure/v2"
)

var (
	// ErrAgentNotFound is returned when an agent id is absent from the registry.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUnknownProvider is returned for a provider id outside the catalog.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider defaults applied when the stored configuration omits a field.
const (
	DefaultBedrockModelID   = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultBedrockRegion    = "us-east-1"
	DefaultAnthropicModelID = "claude-sonnet-4-5-20250929"
	DefaultAnthropicTokens  = 4096
	DefaultGeminiModelID    = "gemini-2.5-flash"
	DefaultGeminiTokens     = 2048
	DefaultOpenAIModelID    = "gpt-4o"
	DefaultOpenAITokens     = 4000
	DefaultTemperature      = 0.7
	DefaultTopP             = 0.9
	DefaultTopK             = 40
)

// AgentConfig is the full, credentialed agent record held by a Registry.
type AgentConfig struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Provider       string         `json:"ai_provider" yaml:"ai_provider"`
	TradingContext string         `json:"trading_chain" yaml:"trading_chain"`
	Config         map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ProviderID returns the normalized provider id.
func (a AgentConfig) ProviderID() ProviderID {
	return NormalizeProviderID(a.Provider)
}

// ProviderConfig decodes the free-form config payload into the typed variant
// for the agent's provider, filling defaults and validating required fields.
func (a AgentConfig) ProviderConfig() (ProviderConfig, error) {
	return DecodeProviderConfig(a.Provider, a.Config)
}

// ProviderConfig is one variant per supported provider.
type ProviderConfig interface {
	Provider() ProviderID
	Validate() error
}

// BedrockConfig configures Anthropic models served through Amazon Bedrock.
// Credentials come from the AWS default chain unless a profile or a static
// key pair is given.
type BedrockConfig struct {
	ModelID         string `mapstructure:"model_id"`
	Region          string `mapstructure:"region_name"`
	Profile         string `mapstructure:"aws_profile"`
	AccessKeyID     string `mapstructure:"aws_access_key_id"`
	SecretAccessKey string `mapstructure:"aws_secret_access_key"`
	SessionToken    string `mapstructure:"aws_session_token"`
	MaxTokens       int    `mapstructure:"max_tokens"`
}

func (BedrockConfig) Provider() ProviderID { return ProviderBedrock }

func (c BedrockConfig) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("model_id is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region_name is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("aws_access_key_id and aws_secret_access_key must be set together")
	}
	return nil
}

// AnthropicConfig configures the Anthropic API.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ModelID   string `mapstructure:"model_id"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

func (AnthropicConfig) Provider() ProviderID { return ProviderAnthropic }

func (c AnthropicConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for %s", ProviderAnthropic)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// GeminiConfig configures the Google Gemini API.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	ModelID         string  `mapstructure:"model_id"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"top_p"`
	TopK            int     `mapstructure:"top_k"`
}

func (GeminiConfig) Provider() ProviderID { return ProviderGemini }

func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for %s", ProviderGemini)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive")
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be within [0, 1], got %v", c.TopP)
	}
	return nil
}

// OpenAICompatibleConfig configures OpenAI or any server speaking its API.
// An empty BaseURL targets the OpenAI service.
type OpenAICompatibleConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	ModelID     string  `mapstructure:"model_id"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

func (OpenAICompatibleConfig) Provider() ProviderID { return ProviderOpenAICompatible }

func (c OpenAICompatibleConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for %s", ProviderOpenAICompatible)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// DecodeProviderConfig builds the typed configuration for provider from a raw
// key/value payload. Keys absent from raw keep their defaults; string-encoded
// numbers ("4096") are accepted.
func DecodeProviderConfig(provider string, raw map[string]any) (ProviderConfig, error) {
	var target ProviderConfig
	switch id := NormalizeProviderID(provider); id {
	case ProviderBedrock:
		c := &BedrockConfig{ModelID: DefaultBedrockModelID, Region: DefaultBedrockRegion, MaxTokens: DefaultAnthropicTokens}
		if err := decode(raw, c); err != nil {
			return nil, err
		}
		target = *c
	case ProviderAnthropic:
		c := &AnthropicConfig{ModelID: DefaultAnthropicModelID, MaxTokens: DefaultAnthropicTokens}
		if err := decode(raw, c); err != nil {
			return nil, err
		}
		target = *c
	case ProviderGemini:
		c := &GeminiConfig{
			ModelID:         DefaultGeminiModelID,
			MaxOutputTokens: DefaultGeminiTokens,
			Temperature:     DefaultTemperature,
			TopP:            DefaultTopP,
			TopK:            DefaultTopK,
		}
		if err := decode(raw, c); err != nil {
			return nil, err
		}
		target = *c
	case ProviderOpenAICompatible:
		c := &OpenAICompatibleConfig{ModelID: DefaultOpenAIModelID, MaxTokens: DefaultOpenAITokens, Temperature: DefaultTemperature}
		if err := decode(raw, c); err != nil {
			return nil, err
		}
		target = *c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", target.Provider(), err)
	}
	return target, nil
}

func decode(raw map[string]any, out any) error {
	// Empty strings in stored configs mean "not set" and must not clobber defaults.
	input := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		input[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode provider config: %w", err)
	}
	return nil
}
