// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

// scriptedChat replays canned responses in call order, repeating the
// last one. A non-nil err fails every call.
type scriptedChat struct {
	mu        sync.Mutex
	responses []string
	err       error

	calls        int
	lastMessages []providers.Message
}

func (c *scriptedChat) Chat(_ context.Context, messages []providers.Message, _ providers.ChatOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	c.calls++
	c.lastMessages = messages
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", nil
	}
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func (c *scriptedChat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedChat) last() []providers.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessages
}

func chatFailure() error {
	return fmt.Errorf("%w: scripted failure", providers.ErrCompletionUnavailable)
}

// scriptedSearch maps queries to fixed results. Queries in failOn
// return ErrSearchUnavailable.
type scriptedSearch struct {
	mu      sync.Mutex
	results map[string][]search.Result
	failOn  map[string]bool
	calls   []string
}

func (s *scriptedSearch) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, query)
	if s.failOn[query] {
		return nil, fmt.Errorf("%w: scripted failure", search.ErrSearchUnavailable)
	}
	return s.results[query], nil
}

func (s *scriptedSearch) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// testDeps wires a dependency bundle where every role shares one chat
// client. Pass nil for unused collaborators.
func testDeps(t *testing.T, chat providers.ChatClient, searcher search.Client) *agent.Dependencies {
	t.Helper()
	if chat == nil {
		chat = &scriptedChat{}
	}
	if searcher == nil {
		searcher = &scriptedSearch{}
	}
	clients := map[string]providers.ChatClient{
		providers.RoleClassifier: chat,
		providers.RolePlanner:    chat,
		providers.RoleSynth:      chat,
		providers.RoleNeutrality: chat,
		providers.RoleFact:       chat,
	}
	deps, err := agent.NewDependencies(
		agent.WithChatClients(clients),
		agent.WithSearchClient(searcher),
		agent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	return deps
}
