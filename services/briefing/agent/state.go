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
	"fmt"
	"strings"
)

// Message roles as they appear in transcripts and chat payloads.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn in a run.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Snippet is one unit of retrieved evidence. Source carries the
// locator (URL) the snippet came from; it travels with the content so
// the fact audit can attribute claims.
type Snippet struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// CritiqueNone is the sentinel stored in WorkflowState.Critique when
// the neutrality audit passes. Downstream consumers treat it the same
// as an empty critique.
const CritiqueNone = "None"

// WorkflowState is the complete shared state of one briefing run.
//
// # Description
//
// Exactly one WorkflowState exists per run and only the engine mutates
// it (see DefaultEngine). Stage executors receive a deep copy and
// communicate changes back as a StateDelta. Field semantics:
//
//   - Messages: append-only conversation history. Stages never rewrite
//     or delete prior turns.
//   - Query: the user's question, set once during classification and
//     read-only afterwards.
//   - Plan: research sub-queries produced by the planner.
//   - Context: retrieved evidence. Replaced wholesale on every research
//     pass; never merged across passes.
//   - Draft: current report text, overwritten on each synthesis pass.
//   - Critique: latest neutrality feedback, or CritiqueNone after a
//     clean audit. The fact audit leaves it untouched on success.
//   - RevisionCount: number of completed synthesis passes. Incremented
//     only by the synthesizer; the loop ceilings read it.
//   - IsPolitical: classification gate result.
//   - IsValid: verdict of the most recent audit. Every audit stage
//     writes it before any router decision reads it, so a stale value
//     is never consulted.
//
// Thread Safety: WorkflowState is not safe for concurrent mutation.
// The engine owns the only mutable instance per run; copies handed to
// executors are independent.
type WorkflowState struct {
	Messages      []Message `json:"messages"`
	Query         string    `json:"query"`
	Plan          []string  `json:"plan"`
	Context       []Snippet `json:"context"`
	Draft         string    `json:"draft"`
	Critique      string    `json:"critique"`
	RevisionCount int       `json:"revision_count"`
	IsPolitical   bool      `json:"is_political"`
	IsValid       bool      `json:"is_valid"`
}

// NewWorkflowState returns the initial state for a run: the user turn
// recorded, counters zeroed, and the audit verdict optimistically true
// so the first synthesis pass is not treated as a rejected one. The
// classifier re-derives Query from the last user message; seeding it
// here covers states built outside the engine.
func NewWorkflowState(query string) *WorkflowState {
	return &WorkflowState{
		Messages:      []Message{{Role: RoleUser, Content: query}},
		Query:         query,
		RevisionCount: 0,
		IsPolitical:   false,
		IsValid:       true,
	}
}

// Clone returns a deep copy. Slices are copied so an executor holding
// the snapshot cannot alias the engine's backing arrays.
func (ws *WorkflowState) Clone() *WorkflowState {
	cp := *ws
	if ws.Messages != nil {
		cp.Messages = make([]Message, len(ws.Messages))
		copy(cp.Messages, ws.Messages)
	}
	if ws.Plan != nil {
		cp.Plan = make([]string, len(ws.Plan))
		copy(cp.Plan, ws.Plan)
	}
	if ws.Context != nil {
		cp.Context = make([]Snippet, len(ws.Context))
		copy(cp.Context, ws.Context)
	}
	return &cp
}

// LastUserMessage returns the content of the most recent user turn, or
// the empty string when none exists.
func (ws *WorkflowState) LastUserMessage() string {
	for i := len(ws.Messages) - 1; i >= 0; i-- {
		if ws.Messages[i].Role == RoleUser {
			return ws.Messages[i].Content
		}
	}
	return ""
}

// FinalText selects the run's user-facing output: the draft when one
// exists, otherwise the content of the last message. The redirect path
// produces no draft, so its courtesy message is surfaced this way.
func (ws *WorkflowState) FinalText() string {
	if ws.Draft != "" {
		return ws.Draft
	}
	if n := len(ws.Messages); n > 0 {
		return ws.Messages[n-1].Content
	}
	return ""
}

// HasCritique reports whether the state carries actionable neutrality
// feedback. Both the empty string and CritiqueNone mean "nothing to
// address".
func (ws *WorkflowState) HasCritique() bool {
	return ws.Critique != "" && ws.Critique != CritiqueNone
}

// StateDelta is a partial update produced by one stage execution.
//
// Nil fields mean "unchanged". Non-nil fields carry absolute values,
// never increments: RevisionCount is the full new count and Messages
// is the full new history. Applying the same delta twice therefore
// yields the same state as applying it once, which keeps retried stage
// executions harmless.
type StateDelta struct {
	Messages      []Message
	Query         *string
	Plan          []string
	Context       []Snippet
	Draft         *string
	Critique      *string
	RevisionCount *int
	IsPolitical   *bool
	IsValid       *bool
}

// Apply merges the delta into ws field by field. Only the engine calls
// this; executors never touch the canonical state.
func (ws *WorkflowState) Apply(d StateDelta) {
	if d.Messages != nil {
		ws.Messages = d.Messages
	}
	if d.Query != nil {
		ws.Query = *d.Query
	}
	if d.Plan != nil {
		ws.Plan = d.Plan
	}
	if d.Context != nil {
		ws.Context = d.Context
	}
	if d.Draft != nil {
		ws.Draft = *d.Draft
	}
	if d.Critique != nil {
		ws.Critique = *d.Critique
	}
	if d.RevisionCount != nil {
		ws.RevisionCount = *d.RevisionCount
	}
	if d.IsPolitical != nil {
		ws.IsPolitical = *d.IsPolitical
	}
	if d.IsValid != nil {
		ws.IsValid = *d.IsValid
	}
}

// ChangedFields names the fields the delta sets, in declaration order.
// Used for stage event payloads and transcript step records.
func (d StateDelta) ChangedFields() []string {
	var fields []string
	if d.Messages != nil {
		fields = append(fields, "messages")
	}
	if d.Query != nil {
		fields = append(fields, "query")
	}
	if d.Plan != nil {
		fields = append(fields, "plan")
	}
	if d.Context != nil {
		fields = append(fields, "context")
	}
	if d.Draft != nil {
		fields = append(fields, "draft")
	}
	if d.Critique != nil {
		fields = append(fields, "critique")
	}
	if d.RevisionCount != nil {
		fields = append(fields, "revision_count")
	}
	if d.IsPolitical != nil {
		fields = append(fields, "is_political")
	}
	if d.IsValid != nil {
		fields = append(fields, "is_valid")
	}
	return fields
}

// String renders a compact summary for logs, e.g.
// "delta[draft revision_count is_valid]".
func (d StateDelta) String() string {
	return fmt.Sprintf("delta[%s]", strings.Join(d.ChangedFields(), " "))
}

// ptr helpers keep delta construction readable in the executors.

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
