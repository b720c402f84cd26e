// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/projectassist/services/llm"
)

// Provider constants.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ValidProviders lists accepted ASSIST_ORACLE_PROVIDER values.
var ValidProviders = []string{ProviderNone, ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// ProviderConfig selects and configures the completion provider.
type ProviderConfig struct {
	// Provider is one of ValidProviders. Empty means infer from Model,
	// falling back to ProviderNone.
	Provider string `yaml:"provider" validate:"omitempty,oneof=none openai anthropic gemini"`

	// Model is the provider-specific model name. Empty means the client default.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// APIKey is never read from YAML; it comes from the provider's env var.
	APIKey string `yaml:"-"`

	// MaxTokens caps each completion. Zero means provider default.
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`
}

// InferProvider maps a model name prefix to a provider, or "" if unknown.
func InferProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	}
	return ""
}

// LoadConfigFromEnv reads ASSIST_ORACLE_PROVIDER, ASSIST_ORACLE_MODEL,
// ASSIST_ORACLE_BASE_URL and the matching provider API key.
//
// Description:
//
//	Environment values override those on base. When the provider is still
//	empty after the overlay it is inferred from the model name.
//
// Outputs:
//   - ProviderConfig: The resolved configuration.
//   - error: Non-nil if the provider name is not recognized.
func LoadConfigFromEnv(base ProviderConfig) (ProviderConfig, error) {
	cfg := base
	if v := os.Getenv("ASSIST_ORACLE_PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("ASSIST_ORACLE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ASSIST_ORACLE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if cfg.Provider == "" {
		cfg.Provider = InferProvider(cfg.Model)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderNone
	}

	switch cfg.Provider {
	case ProviderNone:
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		return ProviderConfig{}, fmt.Errorf("oracle: invalid provider %q (valid: %v)", cfg.Provider, ValidProviders)
	}
	return cfg, nil
}

// New builds an Oracle from cfg.
//
// Description:
//
//	ProviderNone yields Disabled. A cloud provider without an API key also
//	yields Disabled with a warning, so a missing key never prevents the
//	deterministic tiers from serving.
//
// Outputs:
//   - Oracle: Never nil.
//   - error: Non-nil only for an unknown provider.
func New(cfg ProviderConfig, logger *slog.Logger) (Oracle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var client llm.ChatClient
	switch cfg.Provider {
	case "", ProviderNone:
		logger.Info("oracle disabled; deterministic tiers only")
		return Disabled{}, nil
	case ProviderOpenAI:
		if cfg.APIKey != "" {
			client = llm.NewOpenAIClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)
		}
	case ProviderAnthropic:
		if cfg.APIKey != "" {
			client = llm.NewAnthropicClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)
		}
	case ProviderGemini:
		if cfg.APIKey != "" {
			client = llm.NewGeminiClientWithConfig(cfg.APIKey, cfg.Model, cfg.BaseURL)
		}
	default:
		return Disabled{}, fmt.Errorf("oracle: unsupported provider %q", cfg.Provider)
	}

	if client == nil {
		logger.Warn("oracle provider configured without an API key; oracle disabled",
			slog.String("provider", cfg.Provider))
		return Disabled{}, nil
	}

	logger.Info("oracle configured",
		slog.String("provider", cfg.Provider),
		slog.String("model", client.Model()))
	return NewChatOracle(client, cfg.Provider, WithMaxTokens(cfg.MaxTokens), WithLogger(logger)), nil
}
