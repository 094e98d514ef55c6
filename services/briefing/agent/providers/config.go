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
	"log/slog"
	"os"
	"strings"
)

// Provider constants for supported LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Role constants for per-role provider configuration. Each workflow
// stage that talks to a model reads its own role, so a deployment can
// run the cheap gate stages on a local model and synthesis on a cloud
// one.
const (
	RoleClassifier = "CLASSIFIER"
	RolePlanner    = "PLANNER"
	RoleSynth      = "SYNTH"
	RoleNeutrality = "NEUTRALITY"
	RoleFact       = "FACT"
)

// ValidProviders lists all supported provider identifiers.
var ValidProviders = []string{ProviderOllama, ProviderAnthropic, ProviderOpenAI}

// isValidProvider checks if the given provider string is supported.
func isValidProvider(p string) bool {
	for _, v := range ValidProviders {
		if p == v {
			return true
		}
	}
	return false
}

// ProviderConfig holds the configuration for a single provider+model pair.
type ProviderConfig struct {
	// Provider is one of the Provider* constants.
	Provider string

	// Model is the provider-specific model identifier.
	Model string

	// BaseURL overrides the provider endpoint (Ollama host, OpenAI
	// compatible gateway). Empty means provider default.
	BaseURL string

	// APIKey authenticates cloud providers. Resolved from the
	// provider's conventional environment variable when empty.
	APIKey string

	// KeepAlive controls model VRAM lifetime (Ollama-specific).
	KeepAlive string

	// NumCtx sets the context window size (Ollama-specific).
	NumCtx int
}

// RoleConfig holds the provider configuration for every model-calling
// workflow role.
type RoleConfig struct {
	Classifier ProviderConfig
	Planner    ProviderConfig
	Synth      ProviderConfig
	Neutrality ProviderConfig
	Fact       ProviderConfig
}

// ForRole returns the configuration for the named role. Unknown roles
// return the synth configuration, which is the most capable one.
func (rc RoleConfig) ForRole(role string) ProviderConfig {
	switch role {
	case RoleClassifier:
		return rc.Classifier
	case RolePlanner:
		return rc.Planner
	case RoleSynth:
		return rc.Synth
	case RoleNeutrality:
		return rc.Neutrality
	case RoleFact:
		return rc.Fact
	default:
		return rc.Synth
	}
}

// ResolveOllamaURL returns the Ollama base URL from the environment.
//
// Description:
//
//	Checks OLLAMA_BASE_URL first, then the deprecated OLLAMA_URL (with
//	a warning), and falls back to the standard localhost port.
func ResolveOllamaURL() string {
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		return url
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		slog.Warn("OLLAMA_URL is deprecated, use OLLAMA_BASE_URL instead")
		return url
	}
	return "http://localhost:11434"
}

// InferProvider guesses the provider from a model name prefix.
//
// Description:
//
//	Cloud model families have stable name prefixes ("claude-", "gpt-").
//	Anything unrecognized is assumed to be a local Ollama model, which
//	keeps the zero-configuration path local-first.
func InferProvider(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-"):
		return ProviderAnthropic
	case strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1-") || strings.HasPrefix(lower, "o3-"):
		return ProviderOpenAI
	default:
		return ProviderOllama
	}
}

// LoadRoleConfig loads per-role provider configuration from the
// environment.
//
// # Description
//
// Each role reads BRIEFING_<ROLE>_PROVIDER and BRIEFING_<ROLE>_MODEL
// (for example BRIEFING_SYNTH_PROVIDER). When the provider is unset it
// is inferred from the model name; when the model is also unset the
// role uses fallbackModel on Ollama. Setting a provider explicitly
// without a model is a configuration error: there is no sensible
// default model for a cloud provider.
//
// # Inputs
//   - fallbackModel: model used by roles with no explicit
//     configuration. Typically OLLAMA_MODEL or the compiled default.
//
// # Outputs
//   - RoleConfig: resolved configuration for all five roles.
//   - error: non-nil when any role is misconfigured.
func LoadRoleConfig(fallbackModel string) (RoleConfig, error) {
	var rc RoleConfig
	var err error

	if rc.Classifier, err = loadSingleRoleConfig(RoleClassifier, fallbackModel); err != nil {
		return RoleConfig{}, err
	}
	if rc.Planner, err = loadSingleRoleConfig(RolePlanner, fallbackModel); err != nil {
		return RoleConfig{}, err
	}
	if rc.Synth, err = loadSingleRoleConfig(RoleSynth, fallbackModel); err != nil {
		return RoleConfig{}, err
	}
	if rc.Neutrality, err = loadSingleRoleConfig(RoleNeutrality, fallbackModel); err != nil {
		return RoleConfig{}, err
	}
	if rc.Fact, err = loadSingleRoleConfig(RoleFact, fallbackModel); err != nil {
		return RoleConfig{}, err
	}
	return rc, nil
}

// loadSingleRoleConfig resolves one role's provider configuration.
func loadSingleRoleConfig(role, fallbackModel string) (ProviderConfig, error) {
	providerEnv := fmt.Sprintf("BRIEFING_%s_PROVIDER", role)
	modelEnv := fmt.Sprintf("BRIEFING_%s_MODEL", role)

	provider := strings.ToLower(strings.TrimSpace(os.Getenv(providerEnv)))
	model := strings.TrimSpace(os.Getenv(modelEnv))

	if provider != "" && !isValidProvider(provider) {
		return ProviderConfig{}, fmt.Errorf(
			"%s=%q is not a supported provider (valid: %s)",
			providerEnv, provider, strings.Join(ValidProviders, ", "))
	}

	if provider != "" && model == "" {
		return ProviderConfig{}, fmt.Errorf(
			"%s is set but %s is empty: an explicit provider requires an explicit model",
			providerEnv, modelEnv)
	}

	if model == "" {
		model = fallbackModel
	}
	if provider == "" {
		provider = InferProvider(model)
	}

	cfg := ProviderConfig{
		Provider: provider,
		Model:    model,
	}
	if provider == ProviderOllama {
		cfg.BaseURL = ResolveOllamaURL()
		cfg.KeepAlive = os.Getenv("BRIEFING_OLLAMA_KEEP_ALIVE")
	}
	return cfg, nil
}

// DefaultModel resolves the fallback model for unconfigured roles:
// OLLAMA_MODEL when set, otherwise the compiled-in default. The
// default matches the model the workflow's prompts were tuned against.
func DefaultModel() string {
	if m := os.Getenv("OLLAMA_MODEL"); m != "" {
		return m
	}
	return "llama3.1"
}
