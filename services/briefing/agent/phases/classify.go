// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
)

// ClassifyPhase gates every run: political queries proceed to
// planning, everything else is redirected.
//
// Description:
//
//	One completion call classifies the last user message. The verdict
//	is strict JSON; any failure here, whether the model is down or the
//	output is garbage, fails closed to political. A false positive
//	costs one wasted research run, a false negative silently refuses a
//	legitimate query, so the cheap direction wins.
type ClassifyPhase struct{}

// NewClassifyPhase returns the classifier executor.
func NewClassifyPhase() *ClassifyPhase { return &ClassifyPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *ClassifyPhase) Stage() agent.Stage { return agent.StageClassify }

// Execute implements agent.PhaseExecutor. The returned delta always
// carries the query (lifted from the last user message) plus the
// political verdict; it never returns an error short of cancellation.
func (p *ClassifyPhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	query := snapshot.LastUserMessage()

	messages := []providers.Message{
		{Role: providers.MessageRoleSystem, Content: classifierSystemPrompt},
		{Role: providers.MessageRoleUser, Content: query},
	}

	isPolitical := true
	raw, err := deps.ChatFor(providers.RoleClassifier).Chat(ctx, messages, providers.ChatOptions{Temperature: 0})
	if err != nil {
		if ctx.Err() != nil {
			return agent.StateDelta{}, fmt.Errorf("classifying query: %w", err)
		}
		deps.Logger.Warn("Classifier call failed, defaulting to political",
			slog.String("error", err.Error()))
	} else {
		verdict, perr := decodeClassifierVerdict(raw)
		if perr != nil {
			deps.Logger.Warn("Classifier verdict unparseable, defaulting to political",
				slog.String("error", perr.Error()))
		} else {
			isPolitical = verdict.IsPolitical
			deps.Logger.Debug("Query classified",
				slog.String("category", verdict.Category),
				slog.Bool("is_political", verdict.IsPolitical),
				slog.Int("entity_count", len(verdict.PrimaryEntities)))
		}
	}

	return agent.StateDelta{
		Query:       strPtr(query),
		IsPolitical: boolPtr(isPolitical),
	}, nil
}
