// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package briefing

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// warmupRejects counts guarded requests turned away during warmup.
// Lazily initialized so the global meter provider is the one the
// binary installed, not the SDK default.
var (
	warmupRejects     otelmetric.Int64Counter
	warmupRejectsOnce sync.Once
)

func warmupRejectCounter() otelmetric.Int64Counter {
	warmupRejectsOnce.Do(func() {
		meter := otel.Meter(serviceTracerName)
		counter, err := meter.Int64Counter("briefing_warmup_rejects_total",
			otelmetric.WithDescription("Requests rejected while model warmup was in progress"))
		if err != nil {
			slog.Warn("Warmup reject counter unavailable", slog.String("error", err.Error()))
			return
		}
		warmupRejects = counter
	})
	return warmupRejects
}

// warmupComplete tracks whether the model warmup has finished. Flipped
// exactly once by the startup goroutine; read on every guarded request.
var warmupComplete atomic.Bool

// IsWarmupComplete reports whether the service is ready to accept
// briefing requests.
//
// Thread Safety: This function is safe for concurrent use.
func IsWarmupComplete() bool {
	return warmupComplete.Load()
}

// MarkWarmupComplete marks the warmup as complete. Called by the
// startup warmup goroutine, including its failure paths: a failed
// warmup degrades the first request, it does not gate the server
// forever.
//
// Thread Safety: This function is safe for concurrent use.
func MarkWarmupComplete() {
	warmupComplete.Store(true)
}

// ResetWarmupForTesting clears the warmup flag. Test hook.
func ResetWarmupForTesting() {
	warmupComplete.Store(false)
}

// WarmupGuardMiddleware returns 503 Service Unavailable for briefing
// endpoints while the model warmup is in progress.
//
// Description:
//
//	Protects run-starting endpoints from receiving requests before the
//	local model is loaded into VRAM. Without this guard, early requests
//	would ride the degraded path on cold-start errors instead of simply
//	waiting out the warmup.
//
// Behavior:
//
//   - Returns 503 with a Retry-After header while warmup is incomplete
//   - Creates an OTel span for rejected requests with trace context
//     inherited from the incoming headers
//   - Passes through once warmup is complete
//   - Health, status, and debug endpoints use unguarded routes
//
// Thread Safety: This middleware is safe for concurrent use.
func WarmupGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsWarmupComplete() {
			c.Next()
			return
		}

		// The otelgin middleware has already extracted trace context
		// from the request headers.
		ctx := c.Request.Context()
		_, span := otel.Tracer(serviceTracerName).Start(ctx, "warmup_guard.reject",
			oteltrace.WithAttributes(
				attribute.String("path", c.Request.URL.Path),
				attribute.String("method", c.Request.Method),
				attribute.Int("http.status_code", http.StatusServiceUnavailable),
			),
		)
		defer span.End()

		spanCtx := span.SpanContext()
		traceID := ""
		if spanCtx.HasTraceID() {
			traceID = spanCtx.TraceID().String()
		}

		slog.Warn("Briefing request rejected: model warmup in progress",
			slog.String("path", c.Request.URL.Path),
			slog.String("method", c.Request.Method),
			slog.String("trace_id", traceID))

		span.SetStatus(codes.Error, "service unavailable during warmup")

		if counter := warmupRejectCounter(); counter != nil {
			counter.Add(ctx, 1,
				otelmetric.WithAttributes(attribute.String("path", c.Request.URL.Path)))
		}

		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "Model warmup in progress",
			"code":     "SERVICE_WARMING_UP",
			"message":  "The model is still loading. Please retry in 30 seconds.",
			"trace_id": traceID,
		})
		c.Abort()
	}
}
