// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the briefing workflow: a cyclic state
// machine that turns a political query into a researched, audited
// report.
//
// =============================================================================
// Architecture
// =============================================================================
//
// Seven stages (classify, plan, research, synthesize, two audits,
// redirect) share one WorkflowState per run. The engine owns the only
// mutable copy; stages receive deep snapshots and return StateDelta
// partial updates, which the engine merges. Routing is a pure function
// of the merged state, and every chosen edge is revalidated against
// the static graph before the hop is taken.
//
// Design choices:
//
//  1. Engine-as-sole-mutator. Stages cannot write state, so no stage
//     can race another and replaying a delta is always safe. The split
//     also keeps stages unit-testable as plain functions.
//
//  2. Bounded repair loops instead of retries. A draft that fails its
//     neutrality audit goes back to synthesis with feedback; a draft
//     that fails its fact audit sends the run back to research. Both
//     loops are capped by revision ceilings (router.go); hitting a
//     ceiling ships the best draft rather than erroring. The user
//     always gets a response.
//
//  3. Failure tiers. Malformed model output is absorbed by stage-local
//     fallbacks and never surfaces. A dead search provider costs one
//     sub-query. A dead completion provider past the gate stages ends
//     the run early with whatever draft exists, marked degraded. Only
//     a broken transition, an unregistered stage, or the hop guard
//     fails a run, and those are programming errors.
//
// Cross-run concurrency is bounded by a semaphore; within a run,
// stages execute strictly sequentially (the research stage fans out
// internally).
// =============================================================================
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	agentTracerName = "briefing.agent"

	// defaultMaxConcurrentRuns bounds parallel runs. Each run holds a
	// model conversation and a research fan-out; past this the service
	// queues rather than thrashing the provider.
	defaultMaxConcurrentRuns = 8

	// defaultMaxHops is a safety valve far above the worst legal path
	// (the ceilings bound real runs under twenty hops). Exceeding it
	// means a routing bug, and the run fails rather than spinning.
	defaultMaxHops = 64
)

// RunRequest starts one briefing run.
type RunRequest struct {
	// Query is the user's question. Required.
	Query string

	// RunID is optional; a UUID is generated when empty.
	RunID string
}

// StepRecord is one hop of a completed run, as persisted in the
// transcript.
type StepRecord struct {
	Seq        int      `json:"seq"`
	Stage      Stage    `json:"stage"`
	Next       Stage    `json:"next,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Changed    []string `json:"changed,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	RunID         string        `json:"run_id"`
	Query         string        `json:"query"`
	FinalText     string        `json:"final_text"`
	WasRedirected bool          `json:"was_redirected"`
	RevisionCount int           `json:"revision_count"`
	Degraded      bool          `json:"degraded"`
	DegradedCause string        `json:"degraded_cause,omitempty"`
	StageVisits   map[Stage]int `json:"stage_visits"`
	Steps         []StepRecord  `json:"steps"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`

	// FinalState is the post-run workflow state, carried for transcript
	// persistence. Excluded from API payloads; the transcript store
	// serializes it under its own key.
	FinalState *WorkflowState `json:"-"`
}

// WorkflowEngine runs briefing workflows.
type WorkflowEngine interface {
	// Run executes one workflow to completion. The returned error is
	// non-nil only for contract violations and cancellation; every
	// model- or search-level failure resolves to a (possibly degraded)
	// result instead.
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
}

// DefaultEngine is the production WorkflowEngine.
//
// Thread Safety: safe for concurrent use. Each run's state is local to
// its Run call; shared fields are immutable after construction.
type DefaultEngine struct {
	registry *PhaseRegistry
	machine  *StateMachine
	deps     *Dependencies
	sessions SessionStore
	sink     EventSink
	logger   *slog.Logger
	sem      chan struct{}
	maxHops  int
}

// EngineOption configures a DefaultEngine.
type EngineOption func(*DefaultEngine)

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(s SessionStore) EngineOption {
	return func(e *DefaultEngine) { e.sessions = s }
}

// WithEventSink wires a consumer for run events.
func WithEventSink(s EventSink) EngineOption {
	return func(e *DefaultEngine) { e.sink = s }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *DefaultEngine) { e.logger = l }
}

// WithMaxConcurrentRuns bounds parallel runs.
func WithMaxConcurrentRuns(n int) EngineOption {
	return func(e *DefaultEngine) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// WithMaxHops overrides the routing safety valve. Test hook.
func WithMaxHops(n int) EngineOption {
	return func(e *DefaultEngine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// NewDefaultEngine creates an engine over a fully populated registry.
//
// # Inputs
//   - registry: executors for all seven stages. A partial registry is
//     rejected here rather than failing mid-run.
//   - deps: validated dependency bundle.
//   - opts: engine options.
//
// # Outputs
//   - *DefaultEngine: ready to run.
//   - error: non-nil when the registry is incomplete or deps is nil.
func NewDefaultEngine(registry *PhaseRegistry, deps *Dependencies, opts ...EngineOption) (*DefaultEngine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: registry is nil")
	}
	if missing := registry.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("engine: registry missing executors for %v", missing)
	}
	if deps == nil {
		return nil, fmt.Errorf("engine: dependencies are nil")
	}

	e := &DefaultEngine{
		registry: registry,
		machine:  NewStateMachine(),
		deps:     deps,
		sessions: NewInMemorySessionStore(0),
		sink:     NopSink{},
		logger:   slog.Default(),
		sem:      make(chan struct{}, defaultMaxConcurrentRuns),
		maxHops:  defaultMaxHops,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Sessions exposes the session store for status handlers.
func (e *DefaultEngine) Sessions() SessionStore { return e.sessions }

// Run implements WorkflowEngine.
func (e *DefaultEngine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("engine: query is empty")
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	// Bound cross-run concurrency. Blocks until a slot frees or the
	// caller gives up.
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("engine: waiting for run slot: %w", ctx.Err())
	}

	tracer := otel.Tracer(agentTracerName)
	ctx, span := tracer.Start(ctx, "briefing.run", trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	defer span.End()

	startedAt := time.Now().UTC()
	recordRunStarted()
	defer recordRunFinished()

	e.sessions.Put(RunRecord{
		ID:        runID,
		Query:     req.Query,
		Status:    RunStatusRunning,
		StartedAt: startedAt,
	})

	result, err := e.runLoop(ctx, runID, req.Query, startedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		recordRunCompleted("failed", time.Since(startedAt), 0)
		e.sessions.Put(RunRecord{
			ID:        runID,
			Query:     req.Query,
			Status:    RunStatusFailed,
			StartedAt: startedAt,
			Error:     err.Error(),
		})
		e.emit(Event{
			Kind:  EventRunFailed,
			RunID: runID,
			At:    time.Now().UTC(),
			Error: err.Error(),
		})
		return nil, err
	}

	outcome := "completed"
	if result.Degraded {
		outcome = "degraded"
	}
	recordRunCompleted(outcome, time.Since(startedAt), result.RevisionCount)
	span.SetAttributes(
		attribute.Bool("run.redirected", result.WasRedirected),
		attribute.Bool("run.degraded", result.Degraded),
		attribute.Int("run.revisions", result.RevisionCount),
	)

	e.sessions.Put(RunRecord{
		ID:        runID,
		Query:     req.Query,
		Status:    RunStatusCompleted,
		StartedAt: startedAt,
		Result:    result,
	})
	return result, nil
}

// runLoop walks the workflow graph until StageEnd.
func (e *DefaultEngine) runLoop(ctx context.Context, runID, query string, startedAt time.Time) (*RunResult, error) {
	ws := NewWorkflowState(query)
	visits := make(map[Stage]int, len(allStages))
	var steps []StepRecord
	seq := 0
	degraded := false
	degradedCause := ""

	emitNext := func(ev Event) {
		seq++
		ev.Seq = seq
		ev.RunID = runID
		ev.At = time.Now().UTC()
		ev.RevisionCount = ws.RevisionCount
		e.emit(ev)
	}

	emitNext(Event{Kind: EventRunStarted})

	stage := e.machine.EntryStage()
	hops := 0

	for stage != StageEnd {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s canceled at %s: %w", runID, stage, err)
		}
		hops++
		if hops > e.maxHops {
			return nil, fmt.Errorf("run %s exceeded %d hops at %s: routing bug", runID, e.maxHops, stage)
		}

		exec, err := e.registry.Resolve(stage)
		if err != nil {
			return nil, err
		}

		visits[stage]++
		emitNext(Event{Kind: EventStageStarted, Stage: stage})

		stageStart := time.Now()
		delta, execErr := exec.Execute(ctx, ws.Clone(), e.deps)
		stageDur := time.Since(stageStart)

		if execErr != nil && (errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded)) {
			recordStage(stage, "canceled", stageDur)
			return nil, fmt.Errorf("run %s canceled during %s: %w", runID, stage, execErr)
		}

		// Merge before routing: the router must only ever see
		// post-merge state.
		ws.Apply(delta)

		if execErr != nil {
			// External dependency gone and no local fallback. End the
			// run now, keeping whatever the stage salvaged.
			degraded = true
			degradedCause = fmt.Sprintf("%s: %s", stage, execErr.Error())
			recordStage(stage, "degraded", stageDur)
			e.logger.Warn("Stage failed, ending run with best available draft",
				slog.String("run_id", runID),
				slog.String("stage", stage.String()),
				slog.String("error", execErr.Error()))
			steps = append(steps, StepRecord{
				Seq: hops, Stage: stage, Next: StageEnd,
				DurationMS: stageDur.Milliseconds(),
				Changed:    delta.ChangedFields(),
				Degraded:   true,
				Error:      execErr.Error(),
			})
			emitNext(Event{
				Kind: EventStageCompleted, Stage: stage, Next: StageEnd,
				DurationMS: stageDur.Milliseconds(),
				Changed:    delta.ChangedFields(),
				Degraded:   true,
				Error:      execErr.Error(),
			})
			break
		}

		next, routeErr := Route(stage, ws)
		if routeErr != nil {
			return nil, routeErr
		}
		if next != StageEnd {
			if verr := e.machine.ValidateTransition(stage, next); verr != nil {
				return nil, verr
			}
		}

		recordStage(stage, "ok", stageDur)
		steps = append(steps, StepRecord{
			Seq: hops, Stage: stage, Next: next,
			DurationMS: stageDur.Milliseconds(),
			Changed:    delta.ChangedFields(),
		})
		emitNext(Event{
			Kind: EventStageCompleted, Stage: stage, Next: next,
			DurationMS: stageDur.Milliseconds(),
			Changed:    delta.ChangedFields(),
		})

		e.logger.Debug("Stage completed",
			slog.String("run_id", runID),
			slog.String("stage", stage.String()),
			slog.String("next", next.String()),
			slog.Duration("duration", stageDur),
			slog.Int("revision_count", ws.RevisionCount))

		stage = next
	}

	result := &RunResult{
		RunID:         runID,
		Query:         query,
		FinalText:     ws.FinalText(),
		WasRedirected: visits[StageRedirect] > 0,
		RevisionCount: ws.RevisionCount,
		Degraded:      degraded,
		DegradedCause: degradedCause,
		StageVisits:   visits,
		Steps:         steps,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		FinalState:    ws,
	}

	emitNext(Event{
		Kind:      EventRunCompleted,
		Degraded:  degraded,
		FinalText: result.FinalText,
	})
	return result, nil
}

func (e *DefaultEngine) emit(ev Event) {
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}
