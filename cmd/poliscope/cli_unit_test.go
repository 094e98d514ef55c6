// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"brief", "chat", "status", "init"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestGetServerBaseURL_Precedence(t *testing.T) {
	t.Cleanup(func() { serverFlag = "" })

	serverFlag = ""
	t.Setenv("POLISCOPE_SERVER_URL", "")
	assert.Equal(t, defaultServerURL, getServerBaseURL())

	t.Setenv("POLISCOPE_SERVER_URL", "http://example.org:9999/")
	assert.Equal(t, "http://example.org:9999", getServerBaseURL(),
		"env overrides default and trailing slash is stripped")

	serverFlag = "http://flag-wins:1234/"
	assert.Equal(t, "http://flag-wins:1234", getServerBaseURL())
}

func TestSendBriefingRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/briefings", r.URL.Path)
		var req briefingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "budget bill status", req.Query)

		json.NewEncoder(w).Encode(briefingResponse{
			RunID:         "run-7",
			FinalText:     "The bill advanced out of committee.",
			RevisionCount: 1,
			StageVisits:   map[string]int{"CLASSIFY": 1, "SYNTHESIZE": 2},
			DurationMS:    4200,
		})
	}))
	defer server.Close()

	result, err := sendBriefingRequest(server.URL, "budget bill status", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "run-7", result.RunID)
	assert.Equal(t, "The bill advanced out of committee.", result.FinalText)
}

func TestSendBriefingRequest_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(serverError{Error: "warming up", Code: "SERVICE_WARMING_UP"})
	}))
	defer server.Close()

	_, err := sendBriefingRequest(server.URL, "q", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVICE_WARMING_UP")
}

func TestFetchReadiness(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/briefings/ready", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "warming_up"})
	}))
	defer server.Close()

	status, err := fetchReadiness(server.URL)
	require.NoError(t, err, "a warming-up server is a status, not an error")
	assert.Equal(t, "warming_up", status)
}

func TestFormatStageVisits(t *testing.T) {
	assert.Equal(t, "no stages recorded", formatStageVisits(nil))

	got := formatStageVisits(map[string]int{
		"CLASSIFY":   1,
		"SYNTHESIZE": 3,
		"RESEARCH":   2,
	})
	assert.Equal(t, "SYNTHESIZE x3, RESEARCH x2, CLASSIFY x1", got,
		"busiest stage first, name as tie-break")
}

func TestFormatRunRecord(t *testing.T) {
	rec := runRecord{
		ID:     "run-1",
		Query:  "Summarize the farm bill markup",
		Status: "completed",
	}
	rec.Result = &struct {
		Degraded      bool `json:"degraded"`
		WasRedirected bool `json:"was_redirected"`
		RevisionCount int  `json:"revision_count"`
	}{RevisionCount: 2}

	line := formatRunRecord(rec)
	assert.Contains(t, line, "run-1")
	assert.Contains(t, line, "2 revision(s)")
	assert.Contains(t, line, "farm bill")

	rec.Result.Degraded = true
	assert.Contains(t, formatRunRecord(rec), "degraded")

	rec.Result.WasRedirected = true
	assert.Contains(t, formatRunRecord(rec), "redirected",
		"redirect outranks the degraded label")
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "short", truncateQuery("  short  ", 10))
	long := strings.Repeat("a", 100)
	got := truncateQuery(long, 20)
	assert.Len(t, got, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestChatModel_EventFlow(t *testing.T) {
	m := newChatModel("http://localhost:8080")
	m.state = stateRunning
	m.stream = &eventStream{events: make(chan streamEvent)}

	m.applyEvent(streamEvent{Kind: "run_started", RunID: "run-9"})
	assert.Equal(t, "run-9", m.runID)

	m.applyEvent(streamEvent{Kind: "stage_started", Stage: "CLASSIFY"})
	require.GreaterOrEqual(t, m.stageRowIndex("CLASSIFY"), 0)
	assert.True(t, m.rows[m.stageRowIndex("CLASSIFY")].active)

	m.applyEvent(streamEvent{Kind: "stage_completed", Stage: "CLASSIFY", Next: "PLAN", DurationMS: 120})
	row := m.rows[m.stageRowIndex("CLASSIFY")]
	assert.False(t, row.active)
	assert.Equal(t, 1, row.visits)

	m.applyEvent(streamEvent{Kind: "stage_started", Stage: "REDIRECT"})
	assert.GreaterOrEqual(t, m.stageRowIndex("REDIRECT"), 0,
		"stages outside the fixed panel order are appended")

	m.applyEvent(streamEvent{Kind: "run_completed", FinalText: "done", RevisionCount: 1})
	assert.Equal(t, stateResult, m.state)
	assert.Equal(t, "done", m.finalText)
	assert.Equal(t, 1, m.revisionCount)
}

func TestChatModel_RunFailed(t *testing.T) {
	m := newChatModel("http://localhost:8080")
	m.state = stateRunning

	m.applyEvent(streamEvent{Kind: "run_failed", Error: "workflow contract violation"})
	assert.Equal(t, stateResult, m.state)
	assert.Equal(t, "workflow contract violation", m.runErr)
	assert.Contains(t, m.View(), "Run failed")
}

func TestChatModel_RepeatVisitsAccumulate(t *testing.T) {
	m := newChatModel("http://localhost:8080")
	m.state = stateRunning

	for i := 0; i < 3; i++ {
		m.applyEvent(streamEvent{Kind: "stage_started", Stage: "SYNTHESIZE"})
		m.applyEvent(streamEvent{Kind: "stage_completed", Stage: "SYNTHESIZE", DurationMS: 50})
	}
	row := m.rows[m.stageRowIndex("SYNTHESIZE")]
	assert.Equal(t, 3, row.visits)
	assert.Contains(t, m.renderStageRow(row), "x3")
}
