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
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// chatTracerName is the shared OTel tracer name for all ChatClient adapters.
const chatTracerName = "briefing.providers"

// Completion metrics are recorded per workflow role, not per adapter:
// the question operators ask is "which stage is slow / burning errors",
// and every stage owns exactly one role. Auto-registered via promauto
// so no explicit registry wiring is needed.
var (
	// chatCallDuration measures the duration of completion calls.
	//
	// Labels:
	//   - role: CLASSIFIER, PLANNER, SYNTH, NEUTRALITY, FACT
	//   - provider: "anthropic", "openai", "ollama"
	//   - status: "success" or "error"
	chatCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "chat",
			Name:      "call_duration_seconds",
			Help:      "Duration of completion calls in seconds, by workflow role.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"role", "provider", "status"},
	)

	// chatCallsTotal counts completion calls.
	//
	// Labels: as chatCallDuration.
	chatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "chat",
			Name:      "calls_total",
			Help:      "Total completion calls, by workflow role.",
		},
		[]string{"role", "provider", "status"},
	)

	// chatErrorsTotal counts completion errors by type.
	//
	// Labels:
	//   - role, provider: as chatCallDuration
	//   - error_type: "timeout", "auth", "rate_limit", "server", "nil_client", "unknown"
	chatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "chat",
			Name:      "errors_total",
			Help:      "Total completion errors by workflow role and error type.",
		},
		[]string{"role", "provider", "error_type"},
	)
)

// roleMetricsChatClient decorates a ChatClient so every call is
// recorded under the workflow role that made it. Applied once per role
// by CreateRoleClients; roles sharing an underlying client still get
// independent wrappers, mirroring how GuardRoleClients audits.
type roleMetricsChatClient struct {
	delegate ChatClient
	role     string
	provider string
}

func newRoleMetricsClient(role, provider string, delegate ChatClient) ChatClient {
	return &roleMetricsChatClient{delegate: delegate, role: role, provider: provider}
}

// Chat implements ChatClient.
func (c *roleMetricsChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	start := time.Now()
	response, err := c.delegate.Chat(ctx, messages, opts)
	recordChatMetrics(c.role, c.provider, time.Since(start), err)
	return response, err
}

// classifyChatError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error message to categorize it into one of the
//	predefined error types. Used for Prometheus labels to avoid high
//	cardinality.
//
// Thread Safety: Safe for concurrent use.
func classifyChatError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "client is nil"):
		return "nil_client"
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned 401") ||
		strings.Contains(msg, "returned 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "returned 500") ||
		strings.Contains(msg, "returned 502") ||
		strings.Contains(msg, "returned 503") ||
		strings.Contains(msg, "server error") ||
		strings.Contains(msg, "internal error"):
		return "server"
	default:
		return "unknown"
	}
}

// recordChatMetrics records Prometheus metrics for a completed call.
// One-shot recording for both success and error paths.
//
// Thread Safety: Safe for concurrent use.
func recordChatMetrics(role, provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errType := classifyChatError(err)
		chatErrorsTotal.WithLabelValues(role, provider, errType).Inc()
	}

	chatCallDuration.WithLabelValues(role, provider, status).Observe(duration.Seconds())
	chatCallsTotal.WithLabelValues(role, provider, status).Inc()
}
