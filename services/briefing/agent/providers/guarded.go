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
	"fmt"
	"time"

	"github.com/AleutianAI/Poliscope/services/briefing/agent/egress"
)

// GuardedChatClient decorates a ChatClient with egress governance:
// every call passes the rate limiter and leaves an audit entry.
//
// # Description
//
// One decorator is built per workflow role so audit entries name the
// stage that made each call. A rate-limited call is reported as
// ErrCompletionUnavailable — from the workflow's perspective a
// provider over budget and a provider down are the same condition, and
// the stages already know how to degrade on it.
//
// Thread Safety: safe for concurrent use.
type GuardedChatClient struct {
	delegate ChatClient
	guard    *egress.Guard
	provider string
	model    string
	role     string
}

// NewGuardedChatClient wraps delegate for one role. A nil guard
// returns the delegate unchanged.
func NewGuardedChatClient(delegate ChatClient, guard *egress.Guard, cfg ProviderConfig, role string) ChatClient {
	if guard == nil {
		return delegate
	}
	return &GuardedChatClient{
		delegate: delegate,
		guard:    guard,
		provider: cfg.Provider,
		model:    cfg.Model,
		role:     role,
	}
}

// Chat implements ChatClient.
func (c *GuardedChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	payloadBytes := 0
	for _, m := range messages {
		payloadBytes += len(m.Content)
	}

	rec := egress.AuditRecord{
		Destination:  egress.DestinationChat,
		Provider:     c.provider,
		Model:        c.model,
		Role:         c.role,
		ContentBytes: payloadBytes,
	}
	if c.guard.HashEnabled() {
		var payload []byte
		for _, m := range messages {
			payload = append(payload, m.Content...)
		}
		rec.ContentHash = egress.HashContent(payload)
	}

	rec, err := c.guard.Before(ctx, rec)
	if err != nil {
		if errors.Is(err, egress.ErrRateLimited) {
			return "", fmt.Errorf("%w: %s", ErrCompletionUnavailable, err.Error())
		}
		return "", err
	}

	start := time.Now()
	response, callErr := c.delegate.Chat(ctx, messages, opts)
	c.guard.After(ctx, rec, time.Since(start), callErr)
	return response, callErr
}

// GuardRoleClients wraps every role client with egress governance.
// Shared delegates get independent wrappers so each role audits under
// its own name.
func GuardRoleClients(clients map[string]ChatClient, guard *egress.Guard, rc RoleConfig) map[string]ChatClient {
	if guard == nil {
		return clients
	}
	out := make(map[string]ChatClient, len(clients))
	for role, client := range clients {
		out[role] = NewGuardedChatClient(client, guard, rc.ForRole(role), role)
	}
	return out
}
