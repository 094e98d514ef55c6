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

// PlanPhase decomposes the query into 3-5 search sub-queries, at least
// one phrased to surface opposing viewpoints.
//
// A degraded plan is better than no plan: if the model is unreachable
// or returns something other than a JSON string array, the plan
// becomes the raw query and research proceeds single-pronged.
type PlanPhase struct{}

// NewPlanPhase returns the planner executor.
func NewPlanPhase() *PlanPhase { return &PlanPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *PlanPhase) Stage() agent.Stage { return agent.StagePlan }

// Execute implements agent.PhaseExecutor.
func (p *PlanPhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	query := snapshot.Query

	messages := []providers.Message{
		{Role: providers.MessageRoleSystem, Content: plannerSystemPrompt},
		{Role: providers.MessageRoleUser, Content: query},
	}

	plan := []string{query}
	raw, err := deps.ChatFor(providers.RolePlanner).Chat(ctx, messages, providers.ChatOptions{Temperature: 0})
	if err != nil {
		if ctx.Err() != nil {
			return agent.StateDelta{}, fmt.Errorf("planning research: %w", err)
		}
		deps.Logger.Warn("Planner call failed, searching the raw query",
			slog.String("error", err.Error()))
	} else {
		decoded, perr := decodePlanList(raw)
		if perr != nil {
			deps.Logger.Warn("Planner output unparseable, searching the raw query",
				slog.String("error", perr.Error()))
		} else {
			plan = decoded
		}
	}

	deps.Logger.Debug("Research plan ready", slog.Int("sub_queries", len(plan)))
	return agent.StateDelta{Plan: plan}, nil
}
