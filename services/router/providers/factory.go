// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"fmt"
)

// Provider constants for supported chat providers.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

// ProviderConfig holds the configuration for one chat provider instance.
type ProviderConfig struct {
	// Provider is the backend to use: "groq" or "openai".
	Provider string

	// Model is the provider-specific model identifier. Empty selects the
	// provider default.
	Model string

	// BaseURL is an optional endpoint override, mainly for tests.
	BaseURL string

	// APIKey is the authentication key. Empty falls back to the provider's
	// environment variable (GROQ_API_KEY / OPENAI_API_KEY).
	APIKey string
}

// NewChatClient creates the ChatClient for cfg.
//
// Description:
//
//	Selects the wire client by cfg.Provider. When APIKey is empty the
//	environment-variable constructor is used, making empty-key startup a
//	ConfigurationError surfaced before any request is served.
//
// Outputs:
//   - ChatClient: The configured client.
//   - error: Non-nil for an unknown provider or a missing API key.
func NewChatClient(cfg ProviderConfig) (ChatClient, error) {
	switch cfg.Provider {
	case ProviderGroq:
		if cfg.APIKey == "" {
			return NewGroqClient()
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultGroqBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultGroqModel
		}
		return NewGroqClientWithConfig(cfg.APIKey, model, baseURL), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return NewOpenAIClient()
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIClientWithConfig(cfg.APIKey, model, baseURL), nil
	default:
		return nil, fmt.Errorf("providers: unknown provider %q (want %q or %q)",
			cfg.Provider, ProviderGroq, ProviderOpenAI)
	}
}
