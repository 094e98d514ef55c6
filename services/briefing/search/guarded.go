// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/Poliscope/services/briefing/agent/egress"
)

// GuardedClient decorates a Client with egress governance. Sits
// outside the cache in the decorator chain: cache hits never consume
// rate budget or leave audit entries, because nothing left the
// process.
//
// Thread Safety: safe for concurrent use.
type GuardedClient struct {
	delegate Client
	guard    *egress.Guard
	provider string
}

// NewGuardedClient wraps delegate. A nil guard returns the delegate
// unchanged.
func NewGuardedClient(delegate Client, guard *egress.Guard, provider string) Client {
	if guard == nil {
		return delegate
	}
	return &GuardedClient{delegate: delegate, guard: guard, provider: provider}
}

// Search implements Client.
func (c *GuardedClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	rec := egress.AuditRecord{
		Destination:  egress.DestinationSearch,
		Provider:     c.provider,
		ContentBytes: len(query),
	}
	if c.guard.HashEnabled() {
		rec.ContentHash = egress.HashContent([]byte(query))
	}

	rec, err := c.guard.Before(ctx, rec)
	if err != nil {
		if errors.Is(err, egress.ErrRateLimited) {
			return nil, fmt.Errorf("%w: %s", ErrSearchUnavailable, err.Error())
		}
		return nil, err
	}

	start := time.Now()
	results, callErr := c.delegate.Search(ctx, query, maxResults)
	c.guard.After(ctx, rec, time.Since(start), callErr)
	return results, callErr
}
