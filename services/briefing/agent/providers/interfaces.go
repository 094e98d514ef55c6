// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines provider-agnostic interfaces and factories for
// the LLM backends used by the briefing workflow. It enables per-role
// provider configuration (Classifier, Planner, Synth, Neutrality, Fact)
// so each workflow stage can use a different provider (Ollama, Anthropic,
// OpenAI).
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for concurrent use.
package providers

import (
	"context"
	"errors"
)

// Message roles accepted by ChatClient implementations.
const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is one chat turn in provider-agnostic form. Defined here
// rather than imported from the agent package so adapters stay free of
// workflow types (and the agent package can depend on this one).
type Message struct {
	Role    string
	Content string
}

// ErrCompletionUnavailable wraps every transport, auth, and provider
// failure surfaced by a ChatClient. Workflow stages branch on this one
// sentinel: some fall back locally (classifier, planner), the rest let
// the engine terminate the run early with the best draft so far.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// ChatClient is the completion port used by every workflow stage.
//
// Description:
//
//	The briefing stages only need simple chat (no tool calls, no
//	streaming), which keeps adapters trivial for any provider.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - messages: Conversation messages (system, user, assistant).
	//   - opts: Provider-agnostic chat options.
	//
	// Outputs:
	//   - string: The assistant's response text.
	//   - error: Non-nil on failure; always matches
	//     ErrCompletionUnavailable via errors.Is.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// ChatOptions holds provider-agnostic options for a chat request.
//
// Description:
//
//	Contains options common to all providers plus Ollama-specific fields
//	that are ignored by cloud providers.
type ChatOptions struct {
	// Temperature controls randomness (0.0-1.0). Set to 0.0 for most
	// deterministic output. Set to a negative value (e.g., -1) to omit
	// from the request and use the provider's default. The Go zero value
	// (0.0) is treated as an explicit "most deterministic" setting.
	// Every briefing stage runs at 0.0 so verdicts are reproducible.
	Temperature float64

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int

	// KeepAlive controls model VRAM lifetime (Ollama-specific, ignored by cloud).
	KeepAlive string

	// NumCtx sets the context window size (Ollama-specific, ignored by cloud).
	NumCtx int

	// Model specifies the model for this request. If empty, adapters
	// fall back to the model fixed at construction time.
	Model string
}

// ModelLifecycleManager handles provider-specific model lifecycle operations.
//
// Description:
//
//	Ollama needs explicit warmup (loading the model into VRAM) and unload
//	operations. Cloud providers only need an auth check on warmup. The
//	IsLocal() method lets callers skip the warmup dance for cloud providers.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ModelLifecycleManager interface {
	// WarmModel pre-loads or validates a model.
	//
	// For Ollama: loads the model into VRAM with keep_alive.
	// For cloud: validates API key and connectivity.
	WarmModel(ctx context.Context, model string, opts WarmupOptions) error

	// UnloadModel releases model resources. No-op for cloud providers.
	UnloadModel(ctx context.Context, model string) error

	// IsLocal returns true if the provider manages local GPU resources.
	IsLocal() bool
}

// WarmupOptions configures model warmup behavior.
type WarmupOptions struct {
	// KeepAlive controls how long the model stays loaded (Ollama-specific).
	KeepAlive string

	// NumCtx sets the context window size (Ollama-specific).
	NumCtx int
}
