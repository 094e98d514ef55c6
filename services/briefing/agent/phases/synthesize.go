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
	"strings"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
)

// SynthesizePhase writes the balanced report, or rewrites it when a
// critic sent the run back with feedback.
//
// This is the only stage that advances the revision counter. Both
// repair loops reconverge here or upstream of here, so counting
// drafts is exactly counting loop iterations, which is what the
// ceilings bound.
type SynthesizePhase struct{}

// NewSynthesizePhase returns the synthesizer executor.
func NewSynthesizePhase() *SynthesizePhase { return &SynthesizePhase{} }

// Stage implements agent.PhaseExecutor.
func (p *SynthesizePhase) Stage() agent.Stage { return agent.StageSynthesize }

// Execute implements agent.PhaseExecutor. A completion failure is
// surfaced to the engine: there is no local fallback that could
// produce a report, so the run ends early with whatever draft exists.
func (p *SynthesizePhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Context provided below:\n%s\n\n", joinEvidence(snapshot.Context))
	fmt.Fprintf(&sb, "User Question: %s\n\n", snapshot.Query)
	if snapshot.HasCritique() {
		fmt.Fprintf(&sb, "PREVIOUS FEEDBACK TO ADDRESS: %s\n", snapshot.Critique)
	}

	messages := []providers.Message{
		{Role: providers.MessageRoleSystem, Content: synthesisSystemPrompt},
		{Role: providers.MessageRoleUser, Content: sb.String()},
	}

	draft, err := deps.ChatFor(providers.RoleSynth).Chat(ctx, messages, providers.ChatOptions{Temperature: 0})
	if err != nil {
		return agent.StateDelta{}, fmt.Errorf("synthesizing draft: %w", err)
	}

	return agent.StateDelta{
		Draft:         strPtr(draft),
		RevisionCount: intPtr(snapshot.RevisionCount + 1),
	}, nil
}
