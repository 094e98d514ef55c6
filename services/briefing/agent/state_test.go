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
	"reflect"
	"testing"
)

func TestNewWorkflowState_Initial(t *testing.T) {
	ws := NewWorkflowState("who sponsors the farm bill?")

	if len(ws.Messages) != 1 || ws.Messages[0].Role != RoleUser {
		t.Fatalf("messages = %+v, want the single user turn", ws.Messages)
	}
	if ws.Query != "who sponsors the farm bill?" {
		t.Errorf("Query = %q", ws.Query)
	}
	if ws.RevisionCount != 0 {
		t.Errorf("RevisionCount = %d, want 0", ws.RevisionCount)
	}
	if ws.IsPolitical {
		t.Error("IsPolitical must start false")
	}
	if !ws.IsValid {
		t.Error("IsValid must start true")
	}
}

func TestApply_MergesOnlySetFields(t *testing.T) {
	ws := NewWorkflowState("q")
	ws.Plan = []string{"a"}
	ws.Draft = "old draft"

	ws.Apply(StateDelta{
		Draft:         strPtr("new draft"),
		RevisionCount: intPtr(1),
	})

	if ws.Draft != "new draft" {
		t.Errorf("Draft = %q", ws.Draft)
	}
	if ws.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d", ws.RevisionCount)
	}
	if !reflect.DeepEqual(ws.Plan, []string{"a"}) {
		t.Errorf("Plan changed by an unrelated delta: %v", ws.Plan)
	}
	if len(ws.Messages) != 1 {
		t.Errorf("Messages changed by an unrelated delta: %v", ws.Messages)
	}
}

func TestApply_Idempotent(t *testing.T) {
	delta := StateDelta{
		Query:         strPtr("q"),
		Plan:          []string{"s1", "s2"},
		Context:       []Snippet{{Content: "c", Source: "https://a.example"}},
		Draft:         strPtr("draft"),
		Critique:      strPtr(CritiqueNone),
		RevisionCount: intPtr(2),
		IsPolitical:   boolPtr(true),
		IsValid:       boolPtr(true),
	}

	once := NewWorkflowState("q")
	once.Apply(delta)

	twice := NewWorkflowState("q")
	twice.Apply(delta)
	twice.Apply(delta)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("applying a delta twice diverged:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestApply_MessagesReplaceWithFullHistory(t *testing.T) {
	ws := NewWorkflowState("q")
	history := append(ws.Clone().Messages, Message{Role: RoleAssistant, Content: "reply"})

	ws.Apply(StateDelta{Messages: history})

	if len(ws.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(ws.Messages))
	}
	if ws.Messages[0].Role != RoleUser || ws.Messages[1].Role != RoleAssistant {
		t.Errorf("history order lost: %+v", ws.Messages)
	}
}

func TestClone_NoAliasing(t *testing.T) {
	ws := NewWorkflowState("q")
	ws.Plan = []string{"p1"}
	ws.Context = []Snippet{{Content: "c", Source: "s"}}

	cp := ws.Clone()
	cp.Messages[0].Content = "mutated"
	cp.Plan[0] = "mutated"
	cp.Context[0].Content = "mutated"
	cp.Draft = "mutated"

	if ws.Messages[0].Content != "q" {
		t.Error("clone aliases Messages")
	}
	if ws.Plan[0] != "p1" {
		t.Error("clone aliases Plan")
	}
	if ws.Context[0].Content != "c" {
		t.Error("clone aliases Context")
	}
	if ws.Draft != "" {
		t.Error("clone shares scalar fields")
	}
}

func TestFinalText(t *testing.T) {
	ws := NewWorkflowState("q")
	if got := ws.FinalText(); got != "q" {
		t.Errorf("no-draft FinalText = %q, want the last message", got)
	}

	ws.Messages = append(ws.Messages, Message{Role: RoleAssistant, Content: "redirect reply"})
	if got := ws.FinalText(); got != "redirect reply" {
		t.Errorf("FinalText = %q, want the appended reply", got)
	}

	ws.Draft = "the report"
	if got := ws.FinalText(); got != "the report" {
		t.Errorf("FinalText = %q, the draft must win", got)
	}

	empty := &WorkflowState{}
	if got := empty.FinalText(); got != "" {
		t.Errorf("empty state FinalText = %q", got)
	}
}

func TestHasCritique(t *testing.T) {
	ws := NewWorkflowState("q")
	if ws.HasCritique() {
		t.Error("empty critique must not be actionable")
	}
	ws.Critique = CritiqueNone
	if ws.HasCritique() {
		t.Error("the None marker must not be actionable")
	}
	ws.Critique = "BIAS: tone down the adjectives"
	if !ws.HasCritique() {
		t.Error("a real critique must be actionable")
	}
}

func TestLastUserMessage(t *testing.T) {
	ws := NewWorkflowState("first")
	ws.Messages = append(ws.Messages, Message{Role: RoleAssistant, Content: "reply"})
	if got := ws.LastUserMessage(); got != "first" {
		t.Errorf("LastUserMessage = %q", got)
	}
	if got := (&WorkflowState{}).LastUserMessage(); got != "" {
		t.Errorf("empty state LastUserMessage = %q", got)
	}
}

func TestStateDelta_ChangedFields(t *testing.T) {
	d := StateDelta{
		Draft:         strPtr("d"),
		RevisionCount: intPtr(1),
		IsValid:       boolPtr(false),
	}
	want := []string{"draft", "revision_count", "is_valid"}
	if got := d.ChangedFields(); !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedFields = %v, want %v", got, want)
	}
	if got := d.String(); got != "delta[draft revision_count is_valid]" {
		t.Errorf("String = %q", got)
	}
	if got := (StateDelta{}).ChangedFields(); len(got) != 0 {
		t.Errorf("empty delta ChangedFields = %v", got)
	}
}
