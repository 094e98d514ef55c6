// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

// Default evidence budgets. MaxSearchResults is the per-sub-query
// provider budget; ContextBudget caps the merged, ranked snippet list
// handed to synthesis so a five-query plan cannot flood the model's
// context window.
const (
	DefaultMaxSearchResults = 5
	DefaultContextBudget    = 12
)

// Dependencies is the shared bundle handed to every stage execution.
//
// Description:
//
//	Built once at startup by the dependency factory and treated as
//	read-only afterwards. Stages receive it alongside their state
//	snapshot; nothing here is run-scoped.
//
// Thread Safety: Dependencies is immutable after construction and safe
// to share across concurrent runs.
type Dependencies struct {
	// Chat holds one ChatClient per workflow role, keyed by the
	// providers.Role* constants.
	Chat map[string]providers.ChatClient

	// Search is the evidence retrieval port used by the research stage.
	Search search.Client

	// Logger receives stage-level diagnostics. Never nil.
	Logger *slog.Logger

	// MaxSearchResults bounds each sub-query search.
	MaxSearchResults int

	// ContextBudget caps the merged evidence snippets kept for
	// synthesis. Zero means unlimited.
	ContextBudget int
}

// DependencyOption configures the dependency bundle.
type DependencyOption func(*Dependencies)

// WithChatClients sets the per-role chat clients.
func WithChatClients(clients map[string]providers.ChatClient) DependencyOption {
	return func(d *Dependencies) { d.Chat = clients }
}

// WithSearchClient sets the search port.
func WithSearchClient(c search.Client) DependencyOption {
	return func(d *Dependencies) { d.Search = c }
}

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) DependencyOption {
	return func(d *Dependencies) { d.Logger = l }
}

// WithMaxSearchResults overrides the per-sub-query result budget.
func WithMaxSearchResults(n int) DependencyOption {
	return func(d *Dependencies) { d.MaxSearchResults = n }
}

// WithContextBudget overrides the merged snippet cap.
func WithContextBudget(n int) DependencyOption {
	return func(d *Dependencies) { d.ContextBudget = n }
}

// NewDependencies builds a validated dependency bundle.
//
// # Description
//
// Every model-calling role must have a client; the search port must be
// present. A deployment without a live provider still constructs valid
// dependencies by passing providers.UnavailableChatClient instances,
// which push every run down its degraded path instead of failing
// construction.
//
// # Outputs
//   - *Dependencies: ready for the engine.
//   - error: non-nil when a role client or the search port is missing.
func NewDependencies(opts ...DependencyOption) (*Dependencies, error) {
	d := &Dependencies{
		Logger:           slog.Default(),
		MaxSearchResults: DefaultMaxSearchResults,
		ContextBudget:    DefaultContextBudget,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.Search == nil {
		return nil, fmt.Errorf("dependencies: search client is required")
	}
	for _, role := range []string{
		providers.RoleClassifier,
		providers.RolePlanner,
		providers.RoleSynth,
		providers.RoleNeutrality,
		providers.RoleFact,
	} {
		if d.Chat[role] == nil {
			return nil, fmt.Errorf("dependencies: no chat client for role %s", role)
		}
	}
	return d, nil
}

// ChatFor returns the client for a role. Roles are validated at
// construction, so this never returns nil for a known role.
func (d *Dependencies) ChatFor(role string) providers.ChatClient {
	return d.Chat[role]
}
