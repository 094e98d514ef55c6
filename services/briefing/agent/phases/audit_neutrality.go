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
	"strings"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
)

// NeutralityAuditPhase reviews the draft for partisan framing.
//
// The contract with the auditor model is positional: a response
// starting with "BIAS" carries a revision instruction for the
// synthesizer, anything else counts as a pass. A pass resets the
// critique to the explicit "None" marker so the synthesizer's
// feedback block stays off on later revisions.
type NeutralityAuditPhase struct{}

// NewNeutralityAuditPhase returns the neutrality critic executor.
func NewNeutralityAuditPhase() *NeutralityAuditPhase { return &NeutralityAuditPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *NeutralityAuditPhase) Stage() agent.Stage { return agent.StageAuditNeutrality }

// Execute implements agent.PhaseExecutor. Completion failure is
// surfaced: an unauditable draft still ships, marked degraded, which
// beats inventing a verdict.
func (p *NeutralityAuditPhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	messages := []providers.Message{
		{Role: providers.MessageRoleSystem, Content: neutralitySystemPrompt},
		{Role: providers.MessageRoleUser, Content: snapshot.Draft},
	}

	raw, err := deps.ChatFor(providers.RoleNeutrality).Chat(ctx, messages, providers.ChatOptions{Temperature: 0})
	if err != nil {
		return agent.StateDelta{}, fmt.Errorf("auditing neutrality: %w", err)
	}

	verdict := strings.TrimSpace(raw)
	if strings.HasPrefix(verdict, "BIAS") {
		deps.Logger.Debug("Neutrality audit rejected draft",
			slog.Int("revision_count", snapshot.RevisionCount))
		return agent.StateDelta{
			Critique: strPtr(verdict),
			IsValid:  boolPtr(false),
		}, nil
	}

	deps.Logger.Debug("Neutrality audit passed",
		slog.Int("revision_count", snapshot.RevisionCount))
	return agent.StateDelta{
		Critique: strPtr(agent.CritiqueNone),
		IsValid:  boolPtr(true),
	}, nil
}
