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
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"
)

// AnthropicChatClient implements ChatClient against the Anthropic API
// via langchaingo.
//
// Thread Safety: AnthropicChatClient is safe for concurrent use.
type AnthropicChatClient struct {
	llm          *anthropic.LLM
	defaultModel string
}

// NewAnthropicChatClient creates an Anthropic-backed ChatClient.
//
// Inputs:
//   - cfg: provider configuration. cfg.APIKey empty falls back to
//     ANTHROPIC_API_KEY; missing both is an error.
//
// Outputs:
//   - *AnthropicChatClient: the configured client.
//   - error: non-nil when the API key is missing or the client cannot
//     be constructed.
func NewAnthropicChatClient(cfg ProviderConfig) (*AnthropicChatClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY required for provider %q", ProviderAnthropic)
	}

	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, anthropic.WithModel(cfg.Model))
	}

	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return &AnthropicChatClient{llm: llm, defaultModel: cfg.Model}, nil
}

// Chat implements ChatClient.
func (c *AnthropicChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return generateChat(ctx, ProviderAnthropic, c.llm, c.defaultModel, messages, opts)
}
