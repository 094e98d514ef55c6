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
	"fmt"
	"sync"
)

// Stage identifies one node of the briefing workflow graph.
type Stage string

const (
	// StageClassify gates the run: political queries continue, all
	// others are redirected.
	StageClassify Stage = "CLASSIFY"

	// StagePlan decomposes the query into research sub-queries.
	StagePlan Stage = "PLAN"

	// StageResearch executes the plan against the search port.
	StageResearch Stage = "RESEARCH"

	// StageSynthesize writes or revises the draft report.
	StageSynthesize Stage = "SYNTHESIZE"

	// StageAuditNeutrality reviews the draft for one-sided framing.
	StageAuditNeutrality Stage = "AUDIT_NEUTRALITY"

	// StageAuditFacts reviews the draft against the gathered evidence.
	StageAuditFacts Stage = "AUDIT_FACTS"

	// StageRedirect answers non-political queries with the fixed
	// courtesy message.
	StageRedirect Stage = "REDIRECT"

	// StageEnd is the terminal pseudo-stage. No executor runs for it.
	StageEnd Stage = "END"
)

// allStages enumerates every executable stage, in the order a
// straight-through political run visits them.
var allStages = []Stage{
	StageClassify,
	StagePlan,
	StageResearch,
	StageSynthesize,
	StageAuditNeutrality,
	StageAuditFacts,
	StageRedirect,
}

// AllStages returns every executable stage in straight-through order.
// The returned slice is a copy.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// String implements fmt.Stringer.
func (s Stage) String() string { return string(s) }

// IsValid reports whether s names a known stage (including StageEnd).
func (s Stage) IsValid() bool {
	if s == StageEnd {
		return true
	}
	for _, known := range allStages {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the run.
func (s Stage) IsTerminal() bool { return s == StageEnd }

var (
	// ErrInvalidTransition indicates the router produced an edge the
	// workflow graph does not contain. This is a programming error,
	// never an input error; the engine fails the run immediately
	// rather than guessing at recovery.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrUnknownStage indicates a stage name with no registered
	// executor.
	ErrUnknownStage = errors.New("unknown workflow stage")
)

// validEdges is the complete edge set of the workflow graph. The
// router can only ever select edges from this set; the state machine
// rechecks each hop so a router regression cannot silently walk an
// edge that does not exist.
var validEdges = map[Stage][]Stage{
	StageClassify:        {StagePlan, StageRedirect},
	StagePlan:            {StageResearch},
	StageResearch:        {StageSynthesize},
	StageSynthesize:      {StageAuditNeutrality},
	StageAuditNeutrality: {StageSynthesize, StageAuditFacts, StageEnd},
	StageAuditFacts:      {StageResearch, StageEnd},
	StageRedirect:        {StageEnd},
}

// StateMachine validates stage transitions against the workflow graph.
//
// Thread Safety: all methods are safe for concurrent use; the edge set
// is immutable after construction.
type StateMachine struct{}

// NewStateMachine returns the workflow graph validator.
func NewStateMachine() *StateMachine { return &StateMachine{} }

// ValidateTransition returns nil when from→to is an edge of the
// workflow graph and a wrapped ErrInvalidTransition otherwise.
func (m *StateMachine) ValidateTransition(from, to Stage) error {
	successors, ok := validEdges[from]
	if !ok {
		return fmt.Errorf("%w: %s has no outgoing edges", ErrInvalidTransition, from)
	}
	for _, s := range successors {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Successors returns the set of stages reachable in one hop from s.
// The returned slice is a copy.
func (m *StateMachine) Successors(s Stage) []Stage {
	edges := validEdges[s]
	out := make([]Stage, len(edges))
	copy(out, edges)
	return out
}

// EntryStage is where every run begins.
func (m *StateMachine) EntryStage() Stage { return StageClassify }

// PhaseExecutor is implemented by each stage of the workflow. Execute
// receives a private deep copy of the run state plus the shared
// dependency bundle and returns the partial update to apply. An error
// return reaches the engine, which decides between fallback, early
// termination, and failing the run (see loop.go).
type PhaseExecutor interface {
	// Stage names the graph node this executor implements.
	Stage() Stage

	// Execute performs the stage's work against a state snapshot.
	Execute(ctx context.Context, snapshot *WorkflowState, deps *Dependencies) (StateDelta, error)
}

// PhaseRegistry maps stages to their executors. Registration happens
// once at startup; lookups happen on every hop.
//
// Thread Safety: safe for concurrent use. Register and Resolve take
// the registry lock.
type PhaseRegistry struct {
	mu        sync.RWMutex
	executors map[Stage]PhaseExecutor
}

// NewPhaseRegistry returns an empty registry.
func NewPhaseRegistry() *PhaseRegistry {
	return &PhaseRegistry{executors: make(map[Stage]PhaseExecutor)}
}

// Register binds an executor to its stage, replacing any previous
// binding. Registering for StageEnd is rejected: the terminal stage
// never executes.
func (r *PhaseRegistry) Register(exec PhaseExecutor) error {
	stage := exec.Stage()
	if !stage.IsValid() || stage == StageEnd {
		return fmt.Errorf("%w: cannot register executor for %q", ErrUnknownStage, stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[stage] = exec
	return nil
}

// Resolve returns the executor for a stage or a wrapped
// ErrUnknownStage.
func (r *PhaseRegistry) Resolve(stage Stage) (PhaseExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[stage]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for %q", ErrUnknownStage, stage)
	}
	return exec, nil
}

// Missing lists the non-terminal stages with no executor. The engine
// refuses to start with a partial registry.
func (r *PhaseRegistry) Missing() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []Stage
	for _, s := range allStages {
		if _, ok := r.executors[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
