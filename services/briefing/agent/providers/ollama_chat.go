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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaChatClient implements ChatClient against a local Ollama server
// via langchaingo.
//
// Description:
//
//	The adapter fixes server URL and default model at construction.
//	Per-request model overrides go through ChatOptions.Model, which lets
//	all five workflow roles share one client when they share one model.
//
// Thread Safety: OllamaChatClient is safe for concurrent use.
type OllamaChatClient struct {
	llm          *ollama.LLM
	defaultModel string
	baseURL      string
}

// NewOllamaChatClient creates an Ollama-backed ChatClient.
//
// Inputs:
//   - cfg: provider configuration. cfg.BaseURL empty means
//     ResolveOllamaURL(); cfg.Model empty defers model choice to
//     ChatOptions.
//
// Outputs:
//   - *OllamaChatClient: the configured client.
//   - error: non-nil if the langchaingo client cannot be constructed.
func NewOllamaChatClient(cfg ProviderConfig) (*OllamaChatClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ResolveOllamaURL()
	}

	opts := []ollama.Option{ollama.WithServerURL(baseURL)}
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}
	if cfg.KeepAlive != "" {
		opts = append(opts, ollama.WithKeepAlive(cfg.KeepAlive))
	}
	if cfg.NumCtx > 0 {
		opts = append(opts, ollama.WithRunnerNumCtx(cfg.NumCtx))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &OllamaChatClient{llm: llm, defaultModel: cfg.Model, baseURL: baseURL}, nil
}

// Chat implements ChatClient.
func (c *OllamaChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	return generateChat(ctx, ProviderOllama, c.llm, c.defaultModel, messages, opts)
}

// OllamaLifecycleManager implements ModelLifecycleManager for Ollama.
//
// Description:
//
//	Warmup and unload go straight to the Ollama HTTP API: a generate
//	request with an empty prompt loads the model into VRAM, and
//	keep_alive=0 evicts it. langchaingo has no surface for these
//	lifecycle calls, so this is the one place the service speaks raw
//	Ollama.
//
// Thread Safety: OllamaLifecycleManager is safe for concurrent use.
type OllamaLifecycleManager struct {
	baseURL string
	client  *http.Client
}

// NewOllamaLifecycleManager creates a lifecycle manager for the Ollama
// server at baseURL (ResolveOllamaURL() when empty).
func NewOllamaLifecycleManager(baseURL string) *OllamaLifecycleManager {
	if baseURL == "" {
		baseURL = ResolveOllamaURL()
	}
	return &OllamaLifecycleManager{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// ollamaGenerateRequest is the subset of the /api/generate body used
// for lifecycle operations. An empty prompt makes the call a pure
// load/evict with no token generation.
type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Stream    bool   `json:"stream"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// WarmModel loads the model into VRAM.
func (m *OllamaLifecycleManager) WarmModel(ctx context.Context, model string, opts WarmupOptions) error {
	keepAlive := opts.KeepAlive
	if keepAlive == "" {
		keepAlive = "10m"
	}
	return m.generate(ctx, ollamaGenerateRequest{
		Model:     model,
		Stream:    false,
		KeepAlive: keepAlive,
	})
}

// UnloadModel evicts the model from VRAM via keep_alive=0.
func (m *OllamaLifecycleManager) UnloadModel(ctx context.Context, model string) error {
	return m.generate(ctx, ollamaGenerateRequest{
		Model:     model,
		Stream:    false,
		KeepAlive: "0",
	})
}

// IsLocal returns true because Ollama manages local GPU resources.
func (m *OllamaLifecycleManager) IsLocal() bool { return true }

func (m *OllamaLifecycleManager) generate(ctx context.Context, body ollamaGenerateRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama generate returned %d for model %s", resp.StatusCode, body.Model)
	}
	return nil
}
