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

import "time"

// EventKind discriminates the run event stream.
type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventStageStarted   EventKind = "stage_started"
	EventStageCompleted EventKind = "stage_completed"
	EventRunCompleted   EventKind = "run_completed"
	EventRunFailed      EventKind = "run_failed"
)

// Event is one observable moment of a run. Events are emitted in Seq
// order per run and carry enough state to drive a live UI without a
// follow-up read: the websocket stream, the transcript recorder, and
// the telemetry sink all consume this same type.
type Event struct {
	Kind  EventKind `json:"kind"`
	RunID string    `json:"run_id"`
	Seq   int       `json:"seq"`
	At    time.Time `json:"at"`

	// Stage fields. Stage is the node the event concerns; Next is the
	// routed successor, set on stage_completed only.
	Stage Stage `json:"stage,omitempty"`
	Next  Stage `json:"next,omitempty"`

	// DurationMS is the stage execution time, set on stage_completed.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// Changed names the state fields the stage's delta touched.
	Changed []string `json:"changed,omitempty"`

	// RevisionCount mirrors the post-merge state so ceiling progress
	// is visible live.
	RevisionCount int `json:"revision_count"`

	// Degraded marks a stage that fell back or a run that terminated
	// early on an external failure.
	Degraded bool `json:"degraded,omitempty"`

	// Error carries the failure description on run_failed and on
	// degraded stage events. Sanitized before emission; never contains
	// provider payloads.
	Error string `json:"error,omitempty"`

	// FinalText is the user-facing output, set on run_completed.
	FinalText string `json:"final_text,omitempty"`
}

// EventSink receives run events. Emit must not block: the engine calls
// it inline on the run goroutine, so slow consumers must buffer or
// drop on their side of the interface.
type EventSink interface {
	Emit(ev Event)
}

// NopSink discards every event. Used when no consumer is wired, and
// by tests that only care about final state.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(Event) {}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// CollectorSink appends events to an in-memory slice. Test helper;
// not safe for concurrent runs.
type CollectorSink struct {
	Events []Event
}

// Emit implements EventSink.
func (c *CollectorSink) Emit(ev Event) {
	c.Events = append(c.Events, ev)
}
