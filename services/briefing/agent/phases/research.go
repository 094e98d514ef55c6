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

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

// researchConcurrency bounds parallel sub-query searches. The search
// client rate-limits outbound calls anyway; this just keeps a large
// plan from queueing five waiters at once.
const researchConcurrency = 3

// ResearchPhase executes the search plan and assembles the evidence
// context.
//
// Description:
//
//	Each sub-query runs against the search port independently; a
//	failed sub-query is logged and skipped, so one dead search costs
//	its snippets and nothing else. The merged results are deduplicated
//	and BM25-ranked against the originating query, then trimmed to the
//	context budget. The context is replaced wholesale on every visit,
//	including the fact-audit loop-back, so stale evidence never
//	survives a re-research.
type ResearchPhase struct{}

// NewResearchPhase returns the researcher executor.
func NewResearchPhase() *ResearchPhase { return &ResearchPhase{} }

// Stage implements agent.PhaseExecutor.
func (p *ResearchPhase) Stage() agent.Stage { return agent.StageResearch }

// Execute implements agent.PhaseExecutor. The returned delta always
// carries a non-nil context slice: an all-failures run produces an
// empty context, not an unchanged one.
func (p *ResearchPhase) Execute(ctx context.Context, snapshot *agent.WorkflowState, deps *agent.Dependencies) (agent.StateDelta, error) {
	plan := snapshot.Plan

	// Collect per-sub-query hits at their plan index so ordering stays
	// deterministic regardless of completion order.
	hits := make([][]search.Result, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchConcurrency)
	for i, q := range plan {
		g.Go(func() error {
			found, err := deps.Search.Search(gctx, q, deps.MaxSearchResults)
			if err != nil {
				if gctx.Err() != nil {
					return fmt.Errorf("searching sub-query %d: %w", i, err)
				}
				deps.Logger.Warn("Sub-query search failed, continuing without it",
					slog.Int("sub_query", i),
					slog.String("error", err.Error()))
				return nil
			}
			hits[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return agent.StateDelta{}, err
	}
	if err := ctx.Err(); err != nil {
		return agent.StateDelta{}, fmt.Errorf("researching plan: %w", err)
	}

	var merged []search.Result
	succeeded := 0
	for _, h := range hits {
		if h != nil {
			succeeded++
		}
		merged = append(merged, h...)
	}

	ranked := search.RankResults(snapshot.Query, search.Dedupe(merged), deps.ContextBudget)

	snippets := make([]agent.Snippet, 0, len(ranked))
	for _, r := range ranked {
		snippets = append(snippets, agent.Snippet{Content: r.Content, Source: r.Source})
	}

	deps.Logger.Debug("Research complete",
		slog.Int("sub_queries", len(plan)),
		slog.Int("succeeded", succeeded),
		slog.Int("raw_results", len(merged)),
		slog.Int("kept_snippets", len(snippets)))

	return agent.StateDelta{Context: snippets}, nil
}
