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
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// scriptedPhase drives the engine with canned stage behavior.
type scriptedPhase struct {
	stage Stage
	fn    func(snapshot *WorkflowState) (StateDelta, error)
}

func (p scriptedPhase) Stage() Stage { return p.stage }
func (p scriptedPhase) Execute(_ context.Context, snapshot *WorkflowState, _ *Dependencies) (StateDelta, error) {
	if p.fn == nil {
		return StateDelta{}, nil
	}
	return p.fn(snapshot)
}

// happyPathPhases is a complete registry whose run classifies as
// political, researches, drafts once, and passes both audits.
// Individual stages are overridden per test.
func happyPathPhases(t *testing.T, overrides map[Stage]func(*WorkflowState) (StateDelta, error)) *PhaseRegistry {
	t.Helper()
	defaults := map[Stage]func(*WorkflowState) (StateDelta, error){
		StageClassify: func(ws *WorkflowState) (StateDelta, error) {
			return StateDelta{Query: strPtr(ws.LastUserMessage()), IsPolitical: boolPtr(true)}, nil
		},
		StagePlan: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{Plan: []string{"q1", "q2"}}, nil
		},
		StageResearch: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{Context: []Snippet{{Content: "fact", Source: "https://a.example"}}}, nil
		},
		StageSynthesize: func(ws *WorkflowState) (StateDelta, error) {
			return StateDelta{Draft: strPtr("the report"), RevisionCount: intPtr(ws.RevisionCount + 1)}, nil
		},
		StageAuditNeutrality: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{Critique: strPtr(CritiqueNone), IsValid: boolPtr(true)}, nil
		},
		StageAuditFacts: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{IsValid: boolPtr(true)}, nil
		},
		StageRedirect: func(ws *WorkflowState) (StateDelta, error) {
			return StateDelta{Messages: append(ws.Messages, Message{Role: RoleAssistant, Content: "redirect reply"})}, nil
		},
	}
	for stage, fn := range overrides {
		defaults[stage] = fn
	}

	r := NewPhaseRegistry()
	for stage, fn := range defaults {
		if err := r.Register(scriptedPhase{stage: stage, fn: fn}); err != nil {
			t.Fatalf("Register(%s): %v", stage, err)
		}
	}
	return r
}

func testEngine(t *testing.T, registry *PhaseRegistry, opts ...EngineOption) *DefaultEngine {
	t.Helper()
	deps := &Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	base := []EngineOption{
		WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e, err := NewDefaultEngine(registry, deps, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewDefaultEngine: %v", err)
	}
	return e
}

func TestEngine_RejectsPartialRegistry(t *testing.T) {
	r := NewPhaseRegistry()
	_ = r.Register(scriptedPhase{stage: StageClassify})

	deps := &Dependencies{Logger: slog.Default()}
	if _, err := NewDefaultEngine(r, deps); err == nil {
		t.Fatal("expected error for a partial registry")
	}
}

func TestEngine_RejectsEmptyQuery(t *testing.T) {
	e := testEngine(t, happyPathPhases(t, nil))
	if _, err := e.Run(context.Background(), RunRequest{}); err == nil {
		t.Fatal("expected error for an empty query")
	}
}

func TestEngine_StraightThroughRun(t *testing.T) {
	sink := &CollectorSink{}
	e := testEngine(t, happyPathPhases(t, nil), WithEventSink(sink))

	res, err := e.Run(context.Background(), RunRequest{Query: "carbon tax outlook"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.FinalText != "the report" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if res.WasRedirected || res.Degraded {
		t.Errorf("flags = redirected:%v degraded:%v", res.WasRedirected, res.Degraded)
	}
	if res.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d, want 1", res.RevisionCount)
	}
	for _, stage := range []Stage{StageClassify, StagePlan, StageResearch, StageSynthesize, StageAuditNeutrality, StageAuditFacts} {
		if res.StageVisits[stage] != 1 {
			t.Errorf("visits[%s] = %d, want 1", stage, res.StageVisits[stage])
		}
	}
	if res.StageVisits[StageRedirect] != 0 {
		t.Errorf("redirect visited %d times", res.StageVisits[StageRedirect])
	}
	if len(res.Steps) != 6 {
		t.Errorf("steps = %d, want 6", len(res.Steps))
	}

	if len(sink.Events) == 0 || sink.Events[0].Kind != EventRunStarted {
		t.Fatal("first event must be run_started")
	}
	last := sink.Events[len(sink.Events)-1]
	if last.Kind != EventRunCompleted || last.FinalText != "the report" {
		t.Errorf("last event = %+v", last)
	}
	for i := 1; i < len(sink.Events); i++ {
		if sink.Events[i].Seq <= sink.Events[i-1].Seq {
			t.Fatal("event sequence numbers must increase")
		}
	}

	rec, ok := e.Sessions().Get(res.RunID)
	if !ok || rec.Status != RunStatusCompleted {
		t.Errorf("session record = %+v", rec)
	}
}

func TestEngine_RedirectRun(t *testing.T) {
	reg := happyPathPhases(t, map[Stage]func(*WorkflowState) (StateDelta, error){
		StageClassify: func(ws *WorkflowState) (StateDelta, error) {
			return StateDelta{Query: strPtr(ws.LastUserMessage()), IsPolitical: boolPtr(false)}, nil
		},
	})
	e := testEngine(t, reg)

	res, err := e.Run(context.Background(), RunRequest{Query: "how do I bake bread?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.WasRedirected {
		t.Error("WasRedirected = false")
	}
	if res.FinalText != "redirect reply" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if res.RevisionCount != 0 {
		t.Errorf("RevisionCount = %d", res.RevisionCount)
	}
	for _, stage := range []Stage{StagePlan, StageResearch, StageSynthesize} {
		if res.StageVisits[stage] != 0 {
			t.Errorf("%s visited on a redirect run", stage)
		}
	}
}

func TestEngine_DegradedEarlyTermination(t *testing.T) {
	reg := happyPathPhases(t, map[Stage]func(*WorkflowState) (StateDelta, error){
		StageAuditNeutrality: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{}, errors.New("completion unavailable: provider down")
		},
	})
	sink := &CollectorSink{}
	e := testEngine(t, reg, WithEventSink(sink))

	res, err := e.Run(context.Background(), RunRequest{Query: "q"})
	if err != nil {
		t.Fatalf("degraded runs must still return a result, got %v", err)
	}
	if !res.Degraded {
		t.Error("Degraded = false")
	}
	if !strings.Contains(res.DegradedCause, string(StageAuditNeutrality)) {
		t.Errorf("DegradedCause = %q", res.DegradedCause)
	}
	if res.FinalText != "the report" {
		t.Errorf("FinalText = %q, want the best available draft", res.FinalText)
	}
	if res.StageVisits[StageAuditFacts] != 0 {
		t.Error("run must end at the failed stage")
	}

	last := sink.Events[len(sink.Events)-1]
	if last.Kind != EventRunCompleted || !last.Degraded {
		t.Errorf("last event = %+v, want degraded run_completed", last)
	}
}

func TestEngine_PartialDeltaSurvivesDegradedStage(t *testing.T) {
	reg := happyPathPhases(t, map[Stage]func(*WorkflowState) (StateDelta, error){
		StageSynthesize: func(ws *WorkflowState) (StateDelta, error) {
			return StateDelta{Draft: strPtr("salvaged partial draft")},
				errors.New("stream cut mid response")
		},
	})
	e := testEngine(t, reg)

	res, err := e.Run(context.Background(), RunRequest{Query: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FinalText != "salvaged partial draft" {
		t.Errorf("FinalText = %q, the partial delta must be merged before ending", res.FinalText)
	}
}

func TestEngine_HopGuardCatchesRoutingLoops(t *testing.T) {
	// A synthesizer that never advances the revision counter plus an
	// always-rejecting audit would loop forever without the guard.
	reg := happyPathPhases(t, map[Stage]func(*WorkflowState) (StateDelta, error){
		StageSynthesize: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{Draft: strPtr("draft")}, nil
		},
		StageAuditNeutrality: func(*WorkflowState) (StateDelta, error) {
			return StateDelta{Critique: strPtr("BIAS: x"), IsValid: boolPtr(false)}, nil
		},
	})
	sink := &CollectorSink{}
	e := testEngine(t, reg, WithMaxHops(12), WithEventSink(sink))

	_, err := e.Run(context.Background(), RunRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected hop guard failure")
	}
	if !strings.Contains(err.Error(), "exceeded") {
		t.Errorf("error = %v", err)
	}
	last := sink.Events[len(sink.Events)-1]
	if last.Kind != EventRunFailed {
		t.Errorf("last event = %+v, want run_failed", last)
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	e := testEngine(t, happyPathPhases(t, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, RunRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEngine_RunIDPropagates(t *testing.T) {
	e := testEngine(t, happyPathPhases(t, nil))

	res, err := e.Run(context.Background(), RunRequest{Query: "q", RunID: "fixed-id"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "fixed-id" {
		t.Errorf("RunID = %q", res.RunID)
	}

	res2, err := e.Run(context.Background(), RunRequest{Query: "q"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res2.RunID == "" {
		t.Error("generated RunID is empty")
	}
}
