// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package briefing is the HTTP surface of the briefing service: it
// wires the workflow engine behind gin handlers, streams run events
// over websockets, and persists transcripts after each run.
package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

const serviceTracerName = "briefing.service"

// TranscriptArchiver copies a saved transcript to long-term storage.
// Implemented by the GCS archiver; nil when archiving is disabled.
type TranscriptArchiver interface {
	Archive(ctx context.Context, t *agent.Transcript) error
}

// Service runs briefings and owns their aftermath: session records,
// transcript persistence, and optional archiving.
//
// Description:
//
//	Brief is the single entry point the HTTP and websocket handlers
//	share. Persistence is best effort: a failed transcript save or
//	archive costs the debug trail, never the response.
//
// Thread Safety: safe for concurrent use. All fields are immutable
// after construction.
type Service struct {
	engine      agent.WorkflowEngine
	sessions    agent.SessionStore
	transcripts *agent.TranscriptStore
	archiver    TranscriptArchiver
	runTimeout  time.Duration
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessions wires the session store shared with the engine so
// status handlers see the engine's run records.
func WithSessions(s agent.SessionStore) ServiceOption {
	return func(svc *Service) { svc.sessions = s }
}

// WithTranscripts enables transcript persistence.
func WithTranscripts(ts *agent.TranscriptStore) ServiceOption {
	return func(svc *Service) { svc.transcripts = ts }
}

// WithArchiver enables long-term transcript archiving.
func WithArchiver(a TranscriptArchiver) ServiceOption {
	return func(svc *Service) { svc.archiver = a }
}

// WithRunTimeout caps one end-to-end run. Zero means no cap beyond the
// caller's context.
func WithRunTimeout(d time.Duration) ServiceOption {
	return func(svc *Service) { svc.runTimeout = d }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

// NewService creates the service over a ready engine.
func NewService(engine agent.WorkflowEngine, opts ...ServiceOption) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("briefing: engine is nil")
	}
	svc := &Service{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Brief executes one briefing run and persists its transcript.
//
// Description:
//
//	Applies the configured run timeout, delegates to the engine, then
//	saves and archives the transcript. Persistence runs on a context
//	detached from the request so a client hanging up after the run
//	finishes cannot cost the record.
//
// Outputs:
//
//	*agent.RunResult - The (possibly degraded) outcome.
//	error - Non-nil only for contract violations and cancellation.
func (s *Service) Brief(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.engine.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	s.persist(context.WithoutCancel(ctx), result)
	return result, nil
}

// persist saves and archives the transcript, logging failures instead
// of surfacing them.
func (s *Service) persist(ctx context.Context, result *agent.RunResult) {
	if s.transcripts == nil {
		return
	}

	t := &agent.Transcript{
		RunID:      result.RunID,
		Query:      result.Query,
		Result:     result,
		FinalState: result.FinalState,
	}
	if _, err := s.transcripts.Save(ctx, t); err != nil {
		s.logger.Warn("Transcript save failed",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
		return
	}

	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, t); err != nil {
		s.logger.Warn("Transcript archive failed",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
	}
}

// Sessions returns the session store, or nil when status tracking is
// not wired.
func (s *Service) Sessions() agent.SessionStore { return s.sessions }

// Transcripts returns the transcript store, or nil when persistence is
// disabled.
func (s *Service) Transcripts() *agent.TranscriptStore { return s.transcripts }

// WorkflowMermaid renders the workflow graph as Mermaid source, edges
// taken from the same validator the engine routes against.
func WorkflowMermaid() string {
	m := agent.NewStateMachine()
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, stage := range agent.AllStages() {
		for _, next := range m.Successors(stage) {
			fmt.Fprintf(&b, "    %s --> %s\n", stage, next)
		}
	}
	return b.String()
}
