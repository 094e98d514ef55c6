// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_OllamaNeverLimited(t *testing.T) {
	r := NewRateLimiter(map[string]int{"ollama": 1})
	for i := 0; i < 10; i++ {
		allowed, _ := r.Allow("ollama")
		if !allowed {
			t.Fatalf("call %d: ollama must never be rate limited", i)
		}
	}
}

func TestRateLimiter_UnconfiguredProviderUnlimited(t *testing.T) {
	r := NewRateLimiter(nil)
	for i := 0; i < 100; i++ {
		if allowed, _ := r.Allow("anthropic"); !allowed {
			t.Fatalf("call %d: unconfigured provider must be unlimited", i)
		}
	}
}

func TestRateLimiter_BlocksAtLimit(t *testing.T) {
	r := NewRateLimiter(map[string]int{"anthropic": 3})

	for i := 0; i < 3; i++ {
		if allowed, _ := r.Allow("anthropic"); !allowed {
			t.Fatalf("call %d should be within the budget", i)
		}
	}

	allowed, retryAfter := r.Allow("anthropic")
	if allowed {
		t.Fatal("fourth call in the window must be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retry-after = %v, want within (0, 1m]", retryAfter)
	}
}

func TestRateLimiter_ProvidersIndependent(t *testing.T) {
	r := NewRateLimiter(map[string]int{"anthropic": 1, "openai": 1})

	if allowed, _ := r.Allow("anthropic"); !allowed {
		t.Fatal("first anthropic call should pass")
	}
	if allowed, _ := r.Allow("openai"); !allowed {
		t.Fatal("anthropic's spent budget must not affect openai")
	}
}

func TestEnvBackend_ReturnsValue(t *testing.T) {
	t.Setenv("EGRESS_TEST_SECRET", "s3cret")

	b := NewEnvBackend(time.Minute)
	got, err := b.GetSecret(context.Background(), "EGRESS_TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("got %q, want s3cret", got)
	}
}

func TestEnvBackend_MissingIsErrSecretNotFound(t *testing.T) {
	b := NewEnvBackend(0)
	_, err := b.GetSecret(context.Background(), "EGRESS_TEST_UNSET")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
}

func TestEnvBackend_CachesWithinTTL(t *testing.T) {
	t.Setenv("EGRESS_TEST_CACHED", "before")

	b := NewEnvBackend(time.Hour)
	if _, err := b.GetSecret(context.Background(), "EGRESS_TEST_CACHED"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	t.Setenv("EGRESS_TEST_CACHED", "after")
	got, err := b.GetSecret(context.Background(), "EGRESS_TEST_CACHED")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if got != "before" {
		t.Fatalf("got %q, want the cached value within the TTL", got)
	}
}

func TestGuard_BeforeAssignsRequestID(t *testing.T) {
	g := NewGuard(Config{AuditEnabled: false}, nil)

	rec, err := g.Before(context.Background(), AuditRecord{
		Destination: DestinationChat,
		Provider:    "ollama",
	})
	if err != nil {
		t.Fatalf("Before: %v", err)
	}
	if rec.RequestID == "" {
		t.Fatal("Before must assign a request ID")
	}
}

func TestGuard_BeforeRejectsOverBudget(t *testing.T) {
	g := NewGuard(Config{LimitsPerMin: map[string]int{"anthropic": 1}}, nil)
	ctx := context.Background()
	rec := AuditRecord{Destination: DestinationChat, Provider: "anthropic"}

	if _, err := g.Before(ctx, rec); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := g.Before(ctx, rec)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestHashContent(t *testing.T) {
	if HashContent(nil) != "" {
		t.Fatal("empty content must hash to the empty string")
	}
	a := HashContent([]byte("payload"))
	b := HashContent([]byte("payload"))
	if a == "" || a != b {
		t.Fatalf("hash must be deterministic and non-empty, got %q / %q", a, b)
	}
	if a == HashContent([]byte("other")) {
		t.Fatal("distinct payloads must hash differently")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	if !cfg.AuditEnabled {
		t.Fatal("audit should default on")
	}
	if cfg.HashContent {
		t.Fatal("content hashing should default off")
	}
	if len(cfg.LimitsPerMin) != 0 {
		t.Fatalf("no limits expected by default, got %v", cfg.LimitsPerMin)
	}
}

func TestLoadConfig_ReadsProviderLimits(t *testing.T) {
	t.Setenv("BRIEFING_EGRESS_ANTHROPIC_RPM", "30")
	t.Setenv("BRIEFING_EGRESS_TAVILY_RPM", "junk")

	cfg := LoadConfig()
	if cfg.LimitsPerMin["anthropic"] != 30 {
		t.Fatalf("anthropic limit = %d, want 30", cfg.LimitsPerMin["anthropic"])
	}
	if _, ok := cfg.LimitsPerMin["tavily"]; ok {
		t.Fatal("non-numeric limit must be ignored")
	}
}
