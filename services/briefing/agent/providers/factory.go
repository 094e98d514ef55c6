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
)

// ProviderFactory creates provider-specific clients from configuration.
//
// Description:
//
//	Centralizes the provider switch so call sites never import concrete
//	adapters. One factory serves all five workflow roles; clients for
//	identical configurations may be freely shared by the caller.
//
// Thread Safety: ProviderFactory is stateless and safe for concurrent use.
type ProviderFactory struct{}

// NewProviderFactory creates a new ProviderFactory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// CreateChatClient creates a ChatClient for the configured provider.
//
// Inputs:
//   - cfg: provider configuration with Provider set to one of the
//     Provider* constants.
//
// Outputs:
//   - ChatClient: the provider-backed client.
//   - error: non-nil for unknown providers or failed construction
//     (typically a missing API key).
func (f *ProviderFactory) CreateChatClient(cfg ProviderConfig) (ChatClient, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaChatClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIChatClient(cfg)
	case ProviderAnthropic:
		return NewAnthropicChatClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: ollama, openai, anthropic)", cfg.Provider)
	}
}

// CreateLifecycleManager creates the lifecycle manager matching the
// configured provider. Cloud lifecycle managers probe through a fresh
// chat client for the same configuration.
func (f *ProviderFactory) CreateLifecycleManager(cfg ProviderConfig) (ModelLifecycleManager, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaLifecycleManager(cfg.BaseURL), nil
	case ProviderOpenAI, ProviderAnthropic:
		client, err := f.CreateChatClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewCloudLifecycleManager(client, cfg.Provider), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: ollama, openai, anthropic)", cfg.Provider)
	}
}

// CreateRoleClients builds one ChatClient per workflow role, reusing a
// single client for roles that share provider, model and endpoint.
//
// # Description
//
// The common deployment runs every role on the same local model; in
// that case all five roles share one underlying client and one
// connection pool. Mixed deployments get distinct clients per distinct
// configuration. Each role's entry is wrapped so completion metrics
// carry that role's label even when the underlying client is shared.
//
// # Inputs
//   - rc: resolved role configuration from LoadRoleConfig.
//
// # Outputs
//   - map[string]ChatClient: keyed by the Role* constants, one entry
//     per role.
//   - error: non-nil when any role's client cannot be constructed.
func (f *ProviderFactory) CreateRoleClients(rc RoleConfig) (map[string]ChatClient, error) {
	type clientKey struct {
		provider, model, baseURL string
	}
	cache := make(map[clientKey]ChatClient)
	out := make(map[string]ChatClient, 5)

	for _, role := range []string{RoleClassifier, RolePlanner, RoleSynth, RoleNeutrality, RoleFact} {
		cfg := rc.ForRole(role)
		key := clientKey{cfg.Provider, cfg.Model, cfg.BaseURL}
		client, ok := cache[key]
		if !ok {
			var err error
			client, err = f.CreateChatClient(cfg)
			if err != nil {
				return nil, fmt.Errorf("create client for role %s: %w", role, err)
			}
			cache[key] = client
			slog.Info("Chat client created",
				slog.String("role", role),
				slog.String("provider", cfg.Provider),
				slog.String("model", cfg.Model))
		}
		out[role] = newRoleMetricsClient(role, cfg.Provider, client)
	}
	return out, nil
}
