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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Auditor writes structured audit entries for outbound traffic.
//
// # Description
//
// Each entry carries the run, the destination, provider and model, the
// payload size, and optionally a SHA256 content hash — never the
// content itself. User queries are political by definition here, so the
// trail records that something left and where, not what it said.
//
// Thread Safety: safe for concurrent use.
type Auditor struct {
	logger      *slog.Logger
	enabled     bool
	hashContent bool
}

// NewAuditor creates an auditor. A nil logger falls back to
// slog.Default.
func NewAuditor(logger *slog.Logger, enabled, hashContent bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled, hashContent: hashContent}
}

// HashEnabled reports whether callers should populate
// AuditRecord.ContentHash.
func (a *Auditor) HashEnabled() bool { return a.enabled && a.hashContent }

// LogRequest records an outbound call before it is made.
func (a *Auditor) LogRequest(ctx context.Context, rec AuditRecord) {
	if !a.enabled {
		return
	}
	attrs := []any{
		slog.String("event", "egress_request"),
		slog.String("request_id", rec.RequestID),
		slog.String("destination", string(rec.Destination)),
		slog.String("provider", rec.Provider),
		slog.Int("content_bytes", rec.ContentBytes),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	}
	if rec.RunID != "" {
		attrs = append(attrs, slog.String("run_id", rec.RunID))
	}
	if rec.Model != "" {
		attrs = append(attrs, slog.String("model", rec.Model))
	}
	if rec.Role != "" {
		attrs = append(attrs, slog.String("role", rec.Role))
	}
	if a.hashContent && rec.ContentHash != "" {
		attrs = append(attrs, slog.String("content_hash", rec.ContentHash))
	}
	a.loggerWithTrace(ctx).Info("egress request", attrs...)
}

// LogResponse records the outcome of an outbound call.
func (a *Auditor) LogResponse(ctx context.Context, rec AuditRecord, duration time.Duration, callErr error) {
	if !a.enabled {
		return
	}
	status := "success"
	attrs := []any{
		slog.String("event", "egress_response"),
		slog.String("request_id", rec.RequestID),
		slog.String("destination", string(rec.Destination)),
		slog.String("provider", rec.Provider),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	}
	if callErr != nil {
		status = "error"
		attrs = append(attrs, slog.String("error", callErr.Error()))
	}
	attrs = append(attrs, slog.String("status", status))
	a.loggerWithTrace(ctx).Info("egress response", attrs...)
}

// LogBlocked records a call the rate limiter refused.
func (a *Auditor) LogBlocked(ctx context.Context, rec AuditRecord, retryAfter time.Duration) {
	if !a.enabled {
		return
	}
	a.loggerWithTrace(ctx).Warn("egress blocked",
		slog.String("event", "egress_blocked"),
		slog.String("request_id", rec.RequestID),
		slog.String("destination", string(rec.Destination)),
		slog.String("provider", rec.Provider),
		slog.String("role", rec.Role),
		slog.Duration("retry_after", retryAfter),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	)
}

// loggerWithTrace enriches the audit logger with the active span's
// trace context so entries join distributed traces.
func (a *Auditor) loggerWithTrace(ctx context.Context) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return a.logger
	}
	return a.logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// HashContent computes the SHA256 hex digest of an outbound payload.
// Returns the empty string for empty input.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
