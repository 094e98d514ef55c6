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

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// RedirectPhase answers non-political queries with the fixed courtesy
// message. It makes no model or search calls; the reply is appended to
// the conversation so FinalText picks it up with no draft present.
type RedirectPhase struct{}

// NewRedirectPhase returns the redirect executor.
func NewRedirectPhase() *RedirectPhase { return &RedirectPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *RedirectPhase) Stage() agent.Stage { return agent.StageRedirect }

// Execute implements agent.PhaseExecutor. Message deltas carry the
// full new history, so the reply is appended to the snapshot's copy.
func (p *RedirectPhase) Execute(_ context.Context, snapshot *agent.WorkflowState, _ *agent.Dependencies) (agent.StateDelta, error) {
	return agent.StateDelta{
		Messages: append(snapshot.Messages, agent.Message{
			Role:    agent.RoleAssistant,
			Content: RedirectMessage,
		}),
	}, nil
}
