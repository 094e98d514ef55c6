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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	egressRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "egress",
			Name:      "requests_total",
			Help:      "Outbound requests by destination, provider, and decision.",
		},
		[]string{"destination", "provider", "decision"},
	)

	egressBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "egress",
			Name:      "payload_bytes_total",
			Help:      "Outbound payload bytes by destination and provider.",
		},
		[]string{"destination", "provider"},
	)
)

func recordAllowed(dest Destination, provider string, contentBytes int) {
	egressRequestsTotal.WithLabelValues(string(dest), provider, "allowed").Inc()
	egressBytesTotal.WithLabelValues(string(dest), provider).Add(float64(contentBytes))
}

func recordBlocked(dest Destination, provider string) {
	egressRequestsTotal.WithLabelValues(string(dest), provider, "blocked").Inc()
}
