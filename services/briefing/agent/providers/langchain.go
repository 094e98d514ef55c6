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

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// toLangchainMessages converts provider-agnostic messages into the
// langchaingo content form. Unknown roles are treated as user turns
// rather than dropped; losing a turn silently would corrupt the
// conversation the model sees.
func toLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case MessageRoleSystem:
			role = llms.ChatMessageTypeSystem
		case MessageRoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// buildCallOptions maps ChatOptions onto langchaingo call options.
// Temperature is included for any non-negative value: 0.0 is an
// explicit deterministic setting, not "unset".
func buildCallOptions(model string, opts ChatOptions) []llms.CallOption {
	callOpts := []llms.CallOption{llms.WithModel(model)}
	if opts.Temperature >= 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}

// generateChat is the shared execution path for all langchaingo-backed
// adapters: resolve the model, open a span, run the completion, and
// normalize every failure to ErrCompletionUnavailable. Metrics are the
// role decorator's job, not the adapter's.
func generateChat(
	ctx context.Context,
	provider string,
	model llms.Model,
	defaultModel string,
	messages []Message,
	opts ChatOptions,
) (string, error) {
	if model == nil {
		return "", fmt.Errorf("%w: %s client is nil", ErrCompletionUnavailable, provider)
	}

	resolved := opts.Model
	if resolved == "" {
		resolved = defaultModel
	}
	if resolved == "" {
		return "", fmt.Errorf("%w: model must be specified in ChatOptions or at client construction", ErrCompletionUnavailable)
	}

	tracer := otel.Tracer(chatTracerName)
	ctx, span := tracer.Start(ctx, "providers.chat")
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", resolved),
		attribute.Int("llm.message_count", len(messages)),
	)
	defer span.End()

	resp, err := model.GenerateContent(ctx, toLangchainMessages(messages), buildCallOptions(resolved, opts)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("%w: %s: %v", ErrCompletionUnavailable, provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: %s returned no choices", ErrCompletionUnavailable, provider)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty completion")
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.response_chars", len(resp.Choices[0].Content)))
	return resp.Choices[0].Content, nil
}
