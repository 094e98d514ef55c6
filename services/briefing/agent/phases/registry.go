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
	"fmt"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// NewRegistry returns a registry with all seven stage executors bound.
// This is the production wiring; tests swap individual executors to
// fake failure modes.
func NewRegistry() (*agent.PhaseRegistry, error) {
	r := agent.NewPhaseRegistry()
	executors := []agent.PhaseExecutor{
		NewClassifyPhase(),
		NewPlanPhase(),
		NewResearchPhase(),
		NewSynthesizePhase(),
		NewNeutralityAuditPhase(),
		NewFactAuditPhase(),
		NewRedirectPhase(),
	}
	for _, exec := range executors {
		if err := r.Register(exec); err != nil {
			return nil, fmt.Errorf("registering %s executor: %w", exec.Stage(), err)
		}
	}
	return r, nil
}
