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
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Guard is the single enforcement point for outbound calls: rate
// limiting, audit logging, and metrics in one Before/After pair.
//
// # Description
//
// Callers fill an AuditRecord, call Before, make the external call,
// and call After with the outcome. Before rejecting a call never has
// side effects on the upstream — the request simply is not made.
//
// Thread Safety: safe for concurrent use.
type Guard struct {
	limiter *RateLimiter
	auditor *Auditor
	secrets *SecretManager
}

// NewGuard builds a guard from configuration.
func NewGuard(cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		limiter: NewRateLimiter(cfg.LimitsPerMin),
		auditor: NewAuditor(logger, cfg.AuditEnabled, cfg.HashContent),
		secrets: NewSecretManager(cfg.SecretTTL),
	}
}

// Secrets exposes the guard's secret manager for credential
// resolution at wiring time.
func (g *Guard) Secrets() *SecretManager { return g.secrets }

// HashEnabled reports whether callers should populate
// AuditRecord.ContentHash before calling Before.
func (g *Guard) HashEnabled() bool { return g.auditor.HashEnabled() }

// Before admits or rejects one outbound call.
//
// # Description
//
// Assigns rec a request ID when empty, checks the provider's rate
// budget, and writes the request audit entry. On rejection the
// returned error wraps ErrRateLimited and carries the retry-after
// hint; the caller must not make the call.
//
// # Outputs
//   - AuditRecord: rec with RequestID populated; pass it to After.
//   - error: non-nil only on rate rejection.
func (g *Guard) Before(ctx context.Context, rec AuditRecord) (AuditRecord, error) {
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}

	allowed, retryAfter := g.limiter.Allow(rec.Provider)
	if !allowed {
		recordBlocked(rec.Destination, rec.Provider)
		g.auditor.LogBlocked(ctx, rec, retryAfter)
		return rec, fmt.Errorf("%w: provider %s, retry after %s",
			ErrRateLimited, rec.Provider, retryAfter.Round(time.Millisecond))
	}

	recordAllowed(rec.Destination, rec.Provider, rec.ContentBytes)
	g.auditor.LogRequest(ctx, rec)
	return rec, nil
}

// After records the outcome of a call previously admitted by Before.
func (g *Guard) After(ctx context.Context, rec AuditRecord, duration time.Duration, callErr error) {
	g.auditor.LogResponse(ctx, rec, duration, callErr)
}
