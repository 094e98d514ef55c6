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

import "fmt"

// Revision ceilings. The neutrality audit stops sending the draft back
// for revision once more than NeutralityRevisionCeiling synthesis
// passes have completed; the fact audit stops sending the run back to
// research once more than FactRevisionCeiling passes have completed.
//
// A ceiling exit is a designed outcome, not an error: the run ends
// with the best draft produced so far and no failure flag. The
// neutrality check runs after every synthesis pass, so it is the gate
// that actually ends long runs, at four passes; the fact ceiling sits
// one higher as a backstop in case the audit ordering ever changes.
const (
	NeutralityRevisionCeiling = 3
	FactRevisionCeiling       = 4
)

// Route selects the next stage after `from` completed, reading only
// the post-merge state. It is a pure function: no I/O, no mutation,
// same answer for the same inputs. All loop decisions in the workflow
// live here; executors never pick their own successor.
//
// Returns ErrInvalidTransition (wrapped) when asked to route from a
// stage that has no routing rule, which means the engine and the graph
// definition have diverged.
func Route(from Stage, ws *WorkflowState) (Stage, error) {
	switch from {
	case StageClassify:
		if !ws.IsPolitical {
			return StageRedirect, nil
		}
		return StagePlan, nil

	case StagePlan:
		return StageResearch, nil

	case StageResearch:
		return StageSynthesize, nil

	case StageSynthesize:
		return StageAuditNeutrality, nil

	case StageAuditNeutrality:
		// Ceiling first: once the budget is spent the verdict no
		// longer matters and the draft ships as-is.
		if ws.RevisionCount > NeutralityRevisionCeiling {
			return StageEnd, nil
		}
		if !ws.IsValid {
			return StageSynthesize, nil
		}
		return StageAuditFacts, nil

	case StageAuditFacts:
		if ws.RevisionCount > FactRevisionCeiling {
			return StageEnd, nil
		}
		if !ws.IsValid {
			// A factual miss means the evidence was insufficient, so
			// the run loops back through research rather than asking
			// the synthesizer to fix facts from the same context.
			return StageResearch, nil
		}
		return StageEnd, nil

	case StageRedirect:
		return StageEnd, nil
	}

	return StageEnd, fmt.Errorf("%w: no routing rule for stage %q", ErrInvalidTransition, from)
}
