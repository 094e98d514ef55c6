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
	"testing"

	"github.com/AleutianAI/Poliscope/services/briefing/agent/egress"
)

type stubClient struct {
	calls   int
	results []Result
	err     error
}

func (s *stubClient) Search(context.Context, string, int) ([]Result, error) {
	s.calls++
	return s.results, s.err
}

func TestGuardedClient_PassesThrough(t *testing.T) {
	delegate := &stubClient{results: []Result{{Content: "fact", Source: "https://example.org"}}}
	guard := egress.NewGuard(egress.Config{}, nil)
	client := NewGuardedClient(delegate, guard, "tavily")

	results, err := client.Search(context.Background(), "budget bill", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || delegate.calls != 1 {
		t.Fatalf("results = %d, calls = %d", len(results), delegate.calls)
	}
}

func TestGuardedClient_RateLimitIsSearchUnavailable(t *testing.T) {
	delegate := &stubClient{}
	guard := egress.NewGuard(egress.Config{LimitsPerMin: map[string]int{"tavily": 1}}, nil)
	client := NewGuardedClient(delegate, guard, "tavily")
	ctx := context.Background()

	if _, err := client.Search(ctx, "q", 1); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := client.Search(ctx, "q", 1)
	if !errors.Is(err, ErrSearchUnavailable) {
		t.Fatalf("err = %v, want ErrSearchUnavailable", err)
	}
	if delegate.calls != 1 {
		t.Fatalf("calls = %d; a blocked search must not reach the provider", delegate.calls)
	}
}

func TestNewGuardedClient_NilGuardReturnsDelegate(t *testing.T) {
	delegate := &stubClient{}
	if NewGuardedClient(delegate, nil, "tavily") != Client(delegate) {
		t.Fatal("nil guard should return the delegate unchanged")
	}
}

func TestUnavailableClient(t *testing.T) {
	_, err := UnavailableClient{Reason: "TAVILY_API_KEY unset"}.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrSearchUnavailable) {
		t.Fatalf("err = %v, want ErrSearchUnavailable", err)
	}
}
