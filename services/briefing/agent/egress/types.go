// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package egress governs outbound traffic to cloud providers: per
// provider rate limits, an audit trail of what left the process, and
// secret resolution for provider credentials.
//
// Local providers (Ollama) are exempt from rate limiting — the point
// is protecting metered external budgets and leaving a compliance
// trail for data that leaves the machine, neither of which applies to
// localhost.
package egress

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRateLimited is returned by Guard.Check when the provider's
	// request budget for the current window is spent.
	ErrRateLimited = errors.New("egress rate limited")

	// ErrSecretNotFound is returned when a requested secret is unset
	// or empty.
	ErrSecretNotFound = errors.New("secret not found")
)

// Destination discriminates audit records by the kind of external
// service the payload went to.
type Destination string

const (
	DestinationChat   Destination = "chat"
	DestinationSearch Destination = "search"
)

// Config controls egress governance. Loaded from the environment so
// deployments can tighten limits without a config file rollout.
type Config struct {
	// AuditEnabled turns the audit log on.
	AuditEnabled bool

	// HashContent includes a SHA256 digest of each outbound payload in
	// audit records. The content itself is never logged.
	HashContent bool

	// LimitsPerMin maps provider name to requests per minute. A
	// provider absent from the map is unlimited.
	LimitsPerMin map[string]int

	// SecretTTL is how long resolved secrets are cached.
	SecretTTL time.Duration
}

// defaultSecretTTL keeps env reads cheap while still picking up
// rotated credentials within a few minutes.
const defaultSecretTTL = 5 * time.Minute

// LoadConfig reads egress configuration from the environment.
//
// # Description
//
// BRIEFING_EGRESS_AUDIT ("0" disables; default on) and
// BRIEFING_EGRESS_HASH_CONTENT ("1" enables; default off) control the
// audit trail. BRIEFING_EGRESS_<PROVIDER>_RPM sets a per-minute limit
// for a provider (e.g. BRIEFING_EGRESS_ANTHROPIC_RPM=30); unset means
// unlimited.
func LoadConfig() Config {
	cfg := Config{
		AuditEnabled: os.Getenv("BRIEFING_EGRESS_AUDIT") != "0",
		HashContent:  os.Getenv("BRIEFING_EGRESS_HASH_CONTENT") == "1",
		LimitsPerMin: make(map[string]int),
		SecretTTL:    defaultSecretTTL,
	}
	for _, provider := range []string{"anthropic", "openai", "tavily"} {
		env := "BRIEFING_EGRESS_" + strings.ToUpper(provider) + "_RPM"
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.LimitsPerMin[provider] = n
			}
		}
	}
	return cfg
}

// AuditRecord describes one outbound request for the audit trail.
type AuditRecord struct {
	// RequestID correlates the before/after pair for one call.
	RequestID string

	// RunID is the briefing run the call belongs to, when known.
	RunID string

	// Destination is the external service class.
	Destination Destination

	// Provider and Model identify the upstream endpoint.
	Provider string
	Model    string

	// Role is the workflow role making a chat call (empty for search).
	Role string

	// ContentBytes is the outbound payload size.
	ContentBytes int

	// ContentHash is the SHA256 hex digest of the payload, set only
	// when Config.HashContent is enabled.
	ContentHash string
}
