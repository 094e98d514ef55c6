// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "End-to-end briefing run duration by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "run",
			Name:      "total",
			Help:      "Briefing runs by outcome (completed, degraded, failed).",
		},
		[]string{"outcome"},
	)

	runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "briefing",
			Subsystem: "run",
			Name:      "active",
			Help:      "Briefing runs currently executing.",
		},
	)

	runRevisions = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "run",
			Name:      "revisions",
			Help:      "Revision count at run completion. The ceilings cap this at 4.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "briefing",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Per-stage execution duration.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"stage", "status"},
	)

	stageVisits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "briefing",
			Subsystem: "stage",
			Name:      "visits_total",
			Help:      "Stage executions. Repair loops show up as repeat visits.",
		},
		[]string{"stage"},
	)
)

func recordRunStarted()  { runsActive.Inc() }
func recordRunFinished() { runsActive.Dec() }

func recordRunCompleted(outcome string, d time.Duration, revisions int) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if outcome != "failed" {
		runRevisions.Observe(float64(revisions))
	}
}

func recordStage(stage Stage, status string, d time.Duration) {
	stageVisits.WithLabelValues(stage.String()).Inc()
	stageDuration.WithLabelValues(stage.String(), status).Observe(d.Seconds())
}
