// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"log/slog"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// InfluxSink writes run events to InfluxDB as time-series points.
//
// Description:
//
//	Implements agent.EventSink over the non-blocking write API: points
//	are batched and shipped in the background, so Emit never stalls a
//	run goroutine. Stage completions land in the briefing_stage
//	measurement, run outcomes in briefing_run. Dropped writes are
//	logged, never surfaced — telemetry is a trail, not a dependency.
//
// Thread Safety: safe for concurrent use; the influx client serializes
// writes internally.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPI
	logger *slog.Logger
}

// NewInfluxSink connects a sink to one org/bucket. Pass the token
// resolved from the environment; an empty token still works against an
// unauthenticated dev instance.
func NewInfluxSink(url, token, org, bucket string, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	write := client.WriteAPI(org, bucket)

	s := &InfluxSink{client: client, write: write, logger: logger}
	go func() {
		for err := range write.Errors() {
			s.logger.Warn("Influx write failed", slog.String("error", err.Error()))
		}
	}()
	return s
}

// Emit implements agent.EventSink.
func (s *InfluxSink) Emit(ev agent.Event) {
	switch ev.Kind {
	case agent.EventStageCompleted:
		p := influxdb2.NewPoint("briefing_stage",
			map[string]string{
				"stage":    ev.Stage.String(),
				"next":     ev.Next.String(),
				"degraded": strconv.FormatBool(ev.Degraded),
			},
			map[string]interface{}{
				"duration_ms":    ev.DurationMS,
				"revision_count": ev.RevisionCount,
			},
			ev.At)
		s.write.WritePoint(p)

	case agent.EventRunCompleted, agent.EventRunFailed:
		p := influxdb2.NewPoint("briefing_run",
			map[string]string{
				"outcome":  string(ev.Kind),
				"degraded": strconv.FormatBool(ev.Degraded),
			},
			map[string]interface{}{
				"revision_count": ev.RevisionCount,
				"hops":           ev.Seq,
			},
			ev.At)
		s.write.WritePoint(p)
	}
}

// Close flushes pending points and shuts the client down.
func (s *InfluxSink) Close() {
	s.write.Flush()
	s.client.Close()
}
