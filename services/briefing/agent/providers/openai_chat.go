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

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIChatClient implements ChatClient against the OpenAI API via
// langchaingo.
//
// Thread Safety: OpenAIChatClient is safe for concurrent use.
type OpenAIChatClient struct {
	llm          *openai.LLM
	defaultModel string
}

// NewOpenAIChatClient creates an OpenAI-backed ChatClient.
//
// Inputs:
//   - cfg: provider configuration. cfg.APIKey empty falls back to
//     OPENAI_API_KEY; missing both is an error. cfg.BaseURL supports
//     OpenAI-compatible gateways.
//
// Outputs:
//   - *OpenAIChatClient: the configured client.
//   - error: non-nil when the API key is missing or the client cannot
//     be constructed.
func NewOpenAIChatClient(cfg ProviderConfig) (*OpenAIChatClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY required for provider %q", ProviderOpenAI)
	}

	opts := []openai.Option{openai.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIChatClient{llm: llm, defaultModel: cfg.Model}, nil
}

// Chat implements ChatClient.
func (c *OpenAIChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return generateChat(ctx, ProviderOpenAI, c.llm, c.defaultModel, messages, opts)
}
