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
	"fmt"
	"os"
	"sync"
	"time"
)

// SecretBackend retrieves secrets by key.
//
// Thread Safety: implementations must be safe for concurrent use.
type SecretBackend interface {
	// GetSecret returns the secret value for key, or an error wrapping
	// ErrSecretNotFound when it is unset.
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvBackend reads secrets from environment variables with TTL-based
// caching.
//
// # Description
//
// Negative results are cached too: a missing TAVILY_API_KEY would
// otherwise be re-probed on every research pass of every run.
//
// Thread Safety: safe for concurrent use.
type EnvBackend struct {
	mu    sync.RWMutex
	cache map[string]cachedSecret
	ttl   time.Duration
}

type cachedSecret struct {
	value     string
	fetchedAt int64
}

// NewEnvBackend creates an environment-variable backend. A zero ttl
// disables caching.
func NewEnvBackend(ttl time.Duration) *EnvBackend {
	return &EnvBackend{
		cache: make(map[string]cachedSecret),
		ttl:   ttl,
	}
}

// GetSecret implements SecretBackend.
func (e *EnvBackend) GetSecret(ctx context.Context, key string) (string, error) {
	if ctx.Err() != nil {
		return "", fmt.Errorf("retrieving secret %q: %w", key, ctx.Err())
	}

	now := time.Now().UnixMilli()

	if e.ttl > 0 {
		e.mu.RLock()
		if cached, ok := e.cache[key]; ok {
			age := time.Duration(now-cached.fetchedAt) * time.Millisecond
			if age < e.ttl {
				e.mu.RUnlock()
				if cached.value == "" {
					return "", fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
				}
				return cached.value, nil
			}
		}
		e.mu.RUnlock()
	}

	value := os.Getenv(key)

	if e.ttl > 0 {
		e.mu.Lock()
		e.cache[key] = cachedSecret{value: value, fetchedAt: now}
		e.mu.Unlock()
	}

	if value == "" {
		return "", fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
	}
	return value, nil
}

// SecretManager fronts the configured secret backend. The briefing
// service resolves every provider credential (TAVILY_API_KEY,
// ANTHROPIC_API_KEY, OPENAI_API_KEY) through it rather than calling
// os.Getenv at point of use, so rotation and future backends stay in
// one place.
//
// Thread Safety: safe for concurrent use.
type SecretManager struct {
	backend SecretBackend
}

// NewSecretManager creates a manager over the environment backend.
func NewSecretManager(cacheTTL time.Duration) *SecretManager {
	return &SecretManager{backend: NewEnvBackend(cacheTTL)}
}

// GetSecret retrieves a secret from the configured backend.
func (s *SecretManager) GetSecret(ctx context.Context, key string) (string, error) {
	return s.backend.GetSecret(ctx, key)
}
