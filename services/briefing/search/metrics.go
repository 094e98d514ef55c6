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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for the search port.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// searchCallDuration measures provider round-trip time.
	//
	// Labels:
	//   - status: "success" or "error"
	searchCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "search",
			Name:      "call_duration_seconds",
			Help:      "Duration of search provider calls in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)

	// searchResultsReturned tracks how many snippets each call produced.
	searchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Snippets returned per successful search call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// searchCacheTotal counts cache lookups by outcome.
	//
	// Labels:
	//   - outcome: "hit" or "miss"
	searchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "search",
			Name:      "cache_total",
			Help:      "Search cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)

// recordSearchMetrics records one provider call.
//
// Thread Safety: Safe for concurrent use.
func recordSearchMetrics(duration time.Duration, results int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	searchCallDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		searchResultsReturned.Observe(float64(results))
	}
}

func recordCacheHit()  { searchCacheTotal.WithLabelValues("hit").Inc() }
func recordCacheMiss() { searchCacheTotal.WithLabelValues("miss").Inc() }
