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
// Package agentconfig defines agent identity, per-provider configuration and
// the rules that keep secret-bearing fields out of persisted session state.
package agentconfig

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProviderID identifies an AI provider.
type ProviderID string

// Canonical provider identifiers.
const (
	ProviderBedrock          ProviderID = "amazon_bedrock"
	ProviderAnthropic        ProviderID = "anthropic"
	ProviderGemini           ProviderID = "gemini"
	ProviderOpenAICompatible ProviderID = "openai_compatible"
)

// ProviderInfo is a catalog entry for a supported provider.
type ProviderInfo struct {
	ID   ProviderID
	Name string
}

// Providers lists the supported providers in display order.
var Providers = []ProviderInfo{
	{ID: ProviderBedrock, Name: "Amazon Bedrock"},
	{ID: ProviderAnthropic, Name: "Anthropic"},
	{ID: ProviderGemini, Name: "Gemini"},
	{ID: ProviderOpenAICompatible, Name: "OpenAI Compatible"},
}

// TradingContextInfo is a catalog entry for a known trading context.
type TradingContextInfo struct {
	ID   string
	Name string
}

// TradingContexts lists the trading contexts agents are usually created for.
// Unlisted contexts are still valid; they simply have no curated display name.
var TradingContexts = []TradingContextInfo{
	{ID: "cronos", Name: "Cronos"},
	{ID: "kaia", Name: "Kaia"},
	{ID: "sui", Name: "Sui"},
	{ID: "aptos", Name: "Aptos"},
}

// NormalizeProviderID folds historical spellings of a provider key
// ("amazon-bedrock", "OpenAI Compatible", "openai compatible") onto the
// canonical underscore form.
func NormalizeProviderID(raw string) ProviderID {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return ProviderID(s)
}

// Known reports whether id is one of the supported providers.
func (id ProviderID) Known() bool {
	_, ok := lookupProvider(id)
	return ok
}

func lookupProvider(id ProviderID) (ProviderInfo, bool) {
	for _, p := range Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// DisplayName returns a human-readable provider name. Unknown ids are
// rendered title-cased with separators turned into spaces, so the result is
// only "Unknown" when raw is blank.
func DisplayName(raw string) string {
	if p, ok := lookupProvider(NormalizeProviderID(raw)); ok {
		return p.Name
	}
	return titleize(raw)
}

// ContextDisplayName returns a human-readable trading context name.
func ContextDisplayName(raw string) string {
	for _, c := range TradingContexts {
		if strings.EqualFold(c.ID, strings.TrimSpace(raw)) {
			return c.Name
		}
	}
	return titleize(raw)
}

func titleize(raw string) string {
	s := strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(raw))
	if s == "" {
		return "Unknown"
	}
	// Casers carry state and are not shared across goroutines.
	return cases.Title(language.Und).String(s)
}
