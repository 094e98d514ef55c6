// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/phases"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

// cannedChat returns one fixed reply forever and counts calls.
type cannedChat struct {
	reply string
	err   error
	calls atomic.Int64
}

func (c *cannedChat) Chat(context.Context, []providers.Message, providers.ChatOptions) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

// countingSearch returns the same results for every query.
type countingSearch struct {
	results []search.Result
	calls   atomic.Int64
}

func (s *countingSearch) Search(context.Context, string, int) ([]search.Result, error) {
	s.calls.Add(1)
	return s.results, nil
}

// roleChats is the per-role fake bundle for one engine run.
type roleChats struct {
	classifier *cannedChat
	planner    *cannedChat
	synth      *cannedChat
	neutrality *cannedChat
	fact       *cannedChat
}

func (r *roleChats) totalCalls() int64 {
	return r.classifier.calls.Load() + r.planner.calls.Load() +
		r.synth.calls.Load() + r.neutrality.calls.Load() + r.fact.calls.Load()
}

func defaultRoleChats() *roleChats {
	return &roleChats{
		classifier: &cannedChat{reply: `{"category":"policy","is_political":true,"primary_entities":["Congress"]}`},
		planner:    &cannedChat{reply: `["impact of the bill","critiques of the bill"]`},
		synth:      &cannedChat{reply: "Overview.\nPerspective A.\nPerspective B.\nAreas of Consensus/Uncertainty."},
		neutrality: &cannedChat{reply: "NEUTRAL"},
		fact:       &cannedChat{reply: "VERIFIED"},
	}
}

func newWiredEngine(t *testing.T, chats *roleChats, searcher search.Client) *agent.DefaultEngine {
	t.Helper()
	registry, err := phases.NewRegistry()
	require.NoError(t, err)

	deps, err := agent.NewDependencies(
		agent.WithChatClients(map[string]providers.ChatClient{
			providers.RoleClassifier: chats.classifier,
			providers.RolePlanner:    chats.planner,
			providers.RoleSynth:      chats.synth,
			providers.RoleNeutrality: chats.neutrality,
			providers.RoleFact:       chats.fact,
		}),
		agent.WithSearchClient(searcher),
		agent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	engine, err := agent.NewDefaultEngine(registry, deps,
		agent.WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return engine
}

func stockResults() []search.Result {
	return []search.Result{
		{Content: "the bill passed committee in March", Source: "https://a.example"},
		{Content: "analysts dispute the revenue estimate", Source: "https://b.example"},
	}
}

func TestWorkflow_HappyPath(t *testing.T) {
	chats := defaultRoleChats()
	searcher := &countingSearch{results: stockResults()}
	engine := newWiredEngine(t, chats, searcher)

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "What does the bill change?"})
	require.NoError(t, err)

	assert.False(t, res.WasRedirected)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.RevisionCount)
	assert.Equal(t, chats.synth.reply, res.FinalText)
	assert.Equal(t, 1, res.StageVisits[agent.StageSynthesize])
	// One search per planned sub-query.
	assert.EqualValues(t, 2, searcher.calls.Load())
}

func TestWorkflow_NonPoliticalQueryRedirects(t *testing.T) {
	chats := defaultRoleChats()
	chats.classifier = &cannedChat{reply: `{"category":"cooking","is_political":false,"primary_entities":[]}`}
	searcher := &countingSearch{results: stockResults()}
	engine := newWiredEngine(t, chats, searcher)

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "how do I bake sourdough?"})
	require.NoError(t, err)

	assert.True(t, res.WasRedirected)
	assert.Equal(t, phases.RedirectMessage, res.FinalText)
	assert.Equal(t, 0, res.RevisionCount)
	// The classifier call is the run's only completion, and research
	// never touches the search port.
	assert.EqualValues(t, 1, chats.totalCalls())
	assert.EqualValues(t, 0, searcher.calls.Load())
}

func TestWorkflow_GarbageClassifierProceedsPolitical(t *testing.T) {
	chats := defaultRoleChats()
	chats.classifier = &cannedChat{reply: "sorry, I cannot produce JSON today"}
	engine := newWiredEngine(t, chats, &countingSearch{results: stockResults()})

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "budget vote outlook"})
	require.NoError(t, err)

	assert.False(t, res.WasRedirected, "unparseable verdicts must fail closed to the political path")
	assert.Equal(t, 1, res.StageVisits[agent.StagePlan])
	assert.False(t, res.Degraded)
}

func TestWorkflow_NeutralityCeilingBoundsRevisions(t *testing.T) {
	chats := defaultRoleChats()
	chats.neutrality = &cannedChat{reply: "BIAS: the framing favors one side"}
	engine := newWiredEngine(t, chats, &countingSearch{results: stockResults()})

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "pipeline politics"})
	require.NoError(t, err)

	// Revisions 1 through 4; after the fourth the ceiling ends the run.
	assert.Equal(t, 4, res.StageVisits[agent.StageSynthesize])
	assert.Equal(t, 4, res.RevisionCount)
	assert.Equal(t, 0, res.StageVisits[agent.StageAuditFacts],
		"a draft that never clears neutrality must not reach the fact audit")
	assert.Equal(t, chats.synth.reply, res.FinalText,
		"the ceiling exit still ships the draft")
	assert.False(t, res.Degraded, "a ceiling exit is a designed outcome")
}

func TestWorkflow_FactRejectionsLoopThroughResearch(t *testing.T) {
	chats := defaultRoleChats()
	chats.fact = &cannedChat{reply: "HALLUCINATION: the March date is unsupported"}
	searcher := &countingSearch{results: stockResults()}
	engine := newWiredEngine(t, chats, searcher)

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "bill timeline"})
	require.NoError(t, err)

	// Three fact rejections each re-research and re-draft; after the
	// fourth draft the neutrality gate's ceiling ends the run before a
	// fourth fact audit happens.
	assert.Equal(t, 4, res.RevisionCount)
	assert.Equal(t, 4, res.StageVisits[agent.StageSynthesize])
	assert.Equal(t, 4, res.StageVisits[agent.StageResearch])
	assert.Equal(t, 3, res.StageVisits[agent.StageAuditFacts])
	assert.Equal(t, chats.synth.reply, res.FinalText)
	assert.False(t, res.Degraded)
	assert.LessOrEqual(t, res.RevisionCount, 5, "global revision bound")
}

func TestWorkflow_SynthesizerOutageDegradesGracefully(t *testing.T) {
	chats := defaultRoleChats()
	chats.synth = &cannedChat{err: fmt.Errorf("%w: connection refused", providers.ErrCompletionUnavailable)}
	engine := newWiredEngine(t, chats, &countingSearch{results: stockResults()})

	res, err := engine.Run(context.Background(), agent.RunRequest{Query: "q"})
	require.NoError(t, err, "a provider outage must yield a degraded result, not an error")

	assert.True(t, res.Degraded)
	assert.Contains(t, res.DegradedCause, string(agent.StageSynthesize))
	assert.Equal(t, "q", res.FinalText,
		"with no draft the last message is the best available output")
}
