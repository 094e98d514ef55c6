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

// FactAuditPhase checks every claim in the draft against the gathered
// evidence.
//
// Unlike the neutrality audit, the whole exchange is a single system
// message with the evidence and draft embedded, and the verdict check
// is a substring match: "HALLUCINATION" anywhere in the response
// rejects the draft and sends the run back to research for better
// evidence. A pass touches only the validity flag. The critique is
// left alone, and this stage never advances the revision counter.
type FactAuditPhase struct{}

// NewFactAuditPhase returns the fact critic executor.
func NewFactAuditPhase() *FactAuditPhase { return &FactAuditPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *FactAuditPhase) Stage() agent.Stage { return agent.StageAuditFacts }

// Execute implements agent.PhaseExecutor. Completion failure is
// surfaced for degraded early termination, same as the neutrality
// audit.
func (p *FactAuditPhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	systemPrompt := fmt.Sprintf(factSystemPromptTemplate, joinEvidence(snapshot.Context), snapshot.Draft)
	messages := []providers.Message{
		{Role: providers.MessageRoleSystem, Content: systemPrompt},
	}

	raw, err := deps.ChatFor(providers.RoleFact).Chat(ctx, messages, providers.ChatOptions{Temperature: 0})
	if err != nil {
		return agent.StateDelta{}, fmt.Errorf("auditing facts: %w", err)
	}

	verdict := strings.TrimSpace(raw)
	if strings.Contains(verdict, "HALLUCINATION") {
		deps.Logger.Debug("Fact audit rejected draft",
			slog.Int("revision_count", snapshot.RevisionCount))
		return agent.StateDelta{
			Critique: strPtr(verdict),
			IsValid:  boolPtr(false),
		}, nil
	}

	deps.Logger.Debug("Fact audit passed",
		slog.Int("revision_count", snapshot.RevisionCount))
	return agent.StateDelta{IsValid: boolPtr(true)}, nil
}
