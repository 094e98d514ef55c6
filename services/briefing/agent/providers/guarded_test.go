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
	"errors"
	"testing"

	"github.com/AleutianAI/Poliscope/services/briefing/agent/egress"
)

// recordingChat counts delegate calls and serves a fixed answer.
type recordingChat struct {
	calls  int
	answer string
	err    error
}

func (r *recordingChat) Chat(context.Context, []Message, ChatOptions) (string, error) {
	r.calls++
	return r.answer, r.err
}

func TestGuardedChatClient_PassesThrough(t *testing.T) {
	delegate := &recordingChat{answer: "NEUTRAL"}
	guard := egress.NewGuard(egress.Config{}, nil)
	client := NewGuardedChatClient(delegate, guard, ProviderConfig{Provider: ProviderOllama, Model: "llama3.1"}, RoleNeutrality)

	got, err := client.Chat(context.Background(), []Message{{Role: MessageRoleUser, Content: "draft"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "NEUTRAL" {
		t.Fatalf("got %q, want delegate answer", got)
	}
	if delegate.calls != 1 {
		t.Fatalf("delegate calls = %d, want 1", delegate.calls)
	}
}

func TestGuardedChatClient_RateLimitIsCompletionUnavailable(t *testing.T) {
	delegate := &recordingChat{answer: "ok"}
	guard := egress.NewGuard(egress.Config{LimitsPerMin: map[string]int{"anthropic": 1}}, nil)
	cfg := ProviderConfig{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"}
	client := NewGuardedChatClient(delegate, guard, cfg, RoleSynth)
	ctx := context.Background()
	msgs := []Message{{Role: MessageRoleUser, Content: "q"}}

	if _, err := client.Chat(ctx, msgs, ChatOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := client.Chat(ctx, msgs, ChatOptions{})
	if !errors.Is(err, ErrCompletionUnavailable) {
		t.Fatalf("err = %v, want ErrCompletionUnavailable", err)
	}
	if delegate.calls != 1 {
		t.Fatalf("delegate calls = %d; a blocked call must not reach the provider", delegate.calls)
	}
}

func TestNewGuardedChatClient_NilGuardReturnsDelegate(t *testing.T) {
	delegate := &recordingChat{}
	client := NewGuardedChatClient(delegate, nil, ProviderConfig{}, RoleFact)
	if client != ChatClient(delegate) {
		t.Fatal("nil guard should return the delegate unchanged")
	}
}

func TestGuardRoleClients_WrapsEveryRole(t *testing.T) {
	guard := egress.NewGuard(egress.Config{}, nil)
	shared := &recordingChat{answer: "ok"}
	clients := map[string]ChatClient{
		RoleClassifier: shared,
		RolePlanner:    shared,
		RoleSynth:      shared,
		RoleNeutrality: shared,
		RoleFact:       shared,
	}

	guarded := GuardRoleClients(clients, guard, RoleConfig{})
	if len(guarded) != len(clients) {
		t.Fatalf("guarded roles = %d, want %d", len(guarded), len(clients))
	}
	for role, client := range guarded {
		if _, ok := client.(*GuardedChatClient); !ok {
			t.Fatalf("role %s not wrapped", role)
		}
	}
}
