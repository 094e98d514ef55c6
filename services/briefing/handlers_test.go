// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package briefing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
	"github.com/AleutianAI/Poliscope/services/briefing/storage/badgerstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeEngine implements agent.WorkflowEngine for handler tests.
type fakeEngine struct {
	runFunc func(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

func (f *fakeEngine) Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	if f.runFunc != nil {
		return f.runFunc(ctx, req)
	}
	now := time.Now().UTC()
	return &agent.RunResult{
		RunID:       "run-1",
		Query:       req.Query,
		FinalText:   "## Overview\ncanned briefing",
		StageVisits: map[agent.Stage]int{agent.StageClassify: 1},
		StartedAt:   now,
		CompletedAt: now.Add(time.Second),
	}, nil
}

func setupTestRouter(t *testing.T, svc *Service, opts ...HandlerOption) *gin.Engine {
	t.Helper()
	handlers := NewHandlers(svc, opts...)
	r := gin.New()
	v1 := r.Group("/v1")
	RegisterRoutes(v1, handlers)
	return r
}

func newTestService(t *testing.T, engine agent.WorkflowEngine, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(engine, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func postBriefing(t *testing.T, r *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/briefings", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleCreateBriefing_Success(t *testing.T) {
	engine := &fakeEngine{
		runFunc: func(_ context.Context, req agent.RunRequest) (*agent.RunResult, error) {
			now := time.Now().UTC()
			return &agent.RunResult{
				RunID:         "run-42",
				Query:         req.Query,
				FinalText:     "## Overview\nA neutral summary.",
				RevisionCount: 2,
				StageVisits: map[agent.Stage]int{
					agent.StageClassify:   1,
					agent.StageSynthesize: 3,
				},
				StartedAt:   now,
				CompletedAt: now.Add(3 * time.Second),
			}, nil
		},
	}
	r := setupTestRouter(t, newTestService(t, engine))

	w := postBriefing(t, r, BriefingRequest{Query: "What does the new budget bill change?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp BriefingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.RunID != "run-42" {
		t.Errorf("RunID = %q, want run-42", resp.RunID)
	}
	if resp.FinalText == "" {
		t.Error("expected non-empty final text")
	}
	if resp.RevisionCount != 2 {
		t.Errorf("RevisionCount = %d, want 2", resp.RevisionCount)
	}
	if resp.DurationMS != 3000 {
		t.Errorf("DurationMS = %d, want 3000", resp.DurationMS)
	}
}

func TestHandleCreateBriefing_DegradedRunIsStill200(t *testing.T) {
	engine := &fakeEngine{
		runFunc: func(_ context.Context, req agent.RunRequest) (*agent.RunResult, error) {
			now := time.Now().UTC()
			return &agent.RunResult{
				RunID:         "run-degraded",
				Query:         req.Query,
				FinalText:     "partial draft",
				Degraded:      true,
				DegradedCause: "SYNTHESIZE: completion provider unavailable",
				StartedAt:     now,
				CompletedAt:   now,
			}, nil
		},
	}
	r := setupTestRouter(t, newTestService(t, engine))

	w := postBriefing(t, r, BriefingRequest{Query: "anything"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a degraded run", w.Code)
	}
	var resp BriefingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Degraded || resp.DegradedCause == "" {
		t.Errorf("degraded flag/cause not carried: %+v", resp)
	}
}

func TestHandleCreateBriefing_EmptyQuery(t *testing.T) {
	r := setupTestRouter(t, newTestService(t, &fakeEngine{}))

	w := postBriefing(t, r, map[string]string{"query": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %q, want INVALID_REQUEST", resp.Code)
	}
}

func TestHandleCreateBriefing_EngineFailure(t *testing.T) {
	engine := &fakeEngine{
		runFunc: func(context.Context, agent.RunRequest) (*agent.RunResult, error) {
			return nil, fmt.Errorf("registry missing executors")
		},
	}
	r := setupTestRouter(t, newTestService(t, engine))

	w := postBriefing(t, r, BriefingRequest{Query: "q"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleCreateBriefing_CanceledRun(t *testing.T) {
	engine := &fakeEngine{
		runFunc: func(context.Context, agent.RunRequest) (*agent.RunResult, error) {
			return nil, fmt.Errorf("waiting for run slot: %w", context.Canceled)
		},
	}
	r := setupTestRouter(t, newTestService(t, engine))

	w := postBriefing(t, r, BriefingRequest{Query: "q"})
	if w.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusRequestTimeout)
	}
}

func TestHandleGetRun(t *testing.T) {
	sessions := agent.NewInMemorySessionStore(0)
	sessions.Put(agent.RunRecord{
		ID:     "run-7",
		Query:  "q",
		Status: agent.RunStatusCompleted,
	})
	svc := newTestService(t, &fakeEngine{}, WithSessions(sessions))
	r := setupTestRouter(t, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/runs/run-7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rec agent.RunRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.ID != "run-7" || rec.Status != agent.RunStatusCompleted {
		t.Errorf("unexpected record: %+v", rec)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/runs/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown run: status = %d, want 404", w.Code)
	}
}

func TestHandleListRuns_RespectsLimit(t *testing.T) {
	sessions := agent.NewInMemorySessionStore(0)
	for i := 0; i < 5; i++ {
		sessions.Put(agent.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Status:    agent.RunStatusCompleted,
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	svc := newTestService(t, &fakeEngine{}, WithSessions(sessions))
	r := setupTestRouter(t, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/runs?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ListRunsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Count = %d, want 2", resp.Count)
	}
	// Newest first.
	if resp.Runs[0].ID != "run-4" {
		t.Errorf("first run = %s, want run-4", resp.Runs[0].ID)
	}
}

func TestHandleListRuns_NoSessionStore(t *testing.T) {
	r := setupTestRouter(t, newTestService(t, &fakeEngine{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp ListRunsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Count = %d, want 0", resp.Count)
	}
}

func TestHandleWorkflowGraph(t *testing.T) {
	r := setupTestRouter(t, newTestService(t, &fakeEngine{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/workflow", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, edge := range []string{
		"CLASSIFY --> PLAN",
		"CLASSIFY --> REDIRECT",
		"AUDIT_NEUTRALITY --> SYNTHESIZE",
		"AUDIT_FACTS --> RESEARCH",
		"REDIRECT --> END",
	} {
		if !strings.Contains(body, edge) {
			t.Errorf("graph missing edge %q:\n%s", edge, body)
		}
	}
}

func TestHandleReady_TracksWarmup(t *testing.T) {
	ResetWarmupForTesting()
	t.Cleanup(MarkWarmupComplete)
	r := setupTestRouter(t, newTestService(t, &fakeEngine{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("before warmup: status = %d, want 503", w.Code)
	}

	MarkWarmupComplete()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("after warmup: status = %d, want 200", w.Code)
	}
}

func TestWarmupGuardMiddleware(t *testing.T) {
	ResetWarmupForTesting()
	t.Cleanup(MarkWarmupComplete)

	handlers := NewHandlers(newTestService(t, &fakeEngine{}))
	r := gin.New()
	v1 := r.Group("/v1")
	RegisterRoutesWithMiddleware(v1, handlers, WarmupGuardMiddleware())

	w := postBriefing(t, r, BriefingRequest{Query: "q"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("during warmup: status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("503 must carry a Retry-After header")
	}

	// Health stays unguarded.
	hw := httptest.NewRecorder()
	r.ServeHTTP(hw, httptest.NewRequest(http.MethodGet, "/v1/briefings/health", nil))
	if hw.Code != http.StatusOK {
		t.Fatalf("health during warmup: status = %d, want 200", hw.Code)
	}

	MarkWarmupComplete()
	w = postBriefing(t, r, BriefingRequest{Query: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("after warmup: status = %d, want 200", w.Code)
	}
}

// openTestDB returns an in-memory badger handle closed with the test.
func openTestDB(t *testing.T) *badgerstore.DB {
	t.Helper()
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDebugTranscriptEndpoints(t *testing.T) {
	db := openTestDB(t)
	ts, err := agent.NewTranscriptStore(db, slog.Default())
	if err != nil {
		t.Fatalf("NewTranscriptStore: %v", err)
	}

	svc := newTestService(t, &fakeEngine{}, WithTranscripts(ts))
	r := setupTestRouter(t, svc)

	// Run a briefing through the service so a transcript lands.
	if _, err := svc.Brief(context.Background(), agent.RunRequest{Query: "q"}); err != nil {
		t.Fatalf("Brief: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/debug/transcripts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d, want 200", w.Code)
	}
	var list ListTranscriptsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Count != 1 {
		t.Fatalf("Count = %d, want 1", list.Count)
	}
	runID := list.Transcripts[0].RunID

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/debug/transcripts/"+runID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/briefings/debug/transcripts/"+runID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/debug/transcripts/"+runID, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", w.Code)
	}
}

func TestDebugTranscripts_DisabledIs404(t *testing.T) {
	r := setupTestRouter(t, newTestService(t, &fakeEngine{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/debug/transcripts", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when persistence is off", w.Code)
	}
}

func TestDebugCacheEndpoints(t *testing.T) {
	db := openTestDB(t)

	// Seed a couple of cache entries and one unrelated key.
	err := db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		if err := txn.Set([]byte(search.CachePrefix+"aa/5"), []byte("one")); err != nil {
			return err
		}
		if err := txn.Set([]byte(search.CachePrefix+"bb/5"), []byte("two")); err != nil {
			return err
		}
		return txn.Set([]byte("runs/v1/keep/meta"), []byte("{}"))
	})
	if err != nil {
		t.Fatalf("seed db: %v", err)
	}

	svc := newTestService(t, &fakeEngine{})
	r := setupTestRouter(t, svc, WithDebugDB(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/briefings/debug/cache", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status = %d, want 200", w.Code)
	}
	var stats CacheStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/briefings/debug/cache", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("clear: status = %d, want 200", w.Code)
	}

	// Cache gone, transcripts untouched.
	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(search.CachePrefix + "aa/5")); err != badger.ErrKeyNotFound {
			t.Errorf("cache key survived clear: %v", err)
		}
		if _, err := txn.Get([]byte("runs/v1/keep/meta")); err != nil {
			t.Errorf("transcript key lost in cache clear: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify db: %v", err)
	}
}

func TestServicePersistsDegradedRuns(t *testing.T) {
	db := openTestDB(t)
	ts, err := agent.NewTranscriptStore(db, slog.Default())
	if err != nil {
		t.Fatalf("NewTranscriptStore: %v", err)
	}

	engine := &fakeEngine{
		runFunc: func(_ context.Context, req agent.RunRequest) (*agent.RunResult, error) {
			now := time.Now().UTC()
			return &agent.RunResult{
				RunID:       "run-deg",
				Query:       req.Query,
				FinalText:   "best draft",
				Degraded:    true,
				StartedAt:   now,
				CompletedAt: now,
				FinalState:  agent.NewWorkflowState(req.Query),
			}, nil
		},
	}
	svc := newTestService(t, engine, WithTranscripts(ts))

	if _, err := svc.Brief(context.Background(), agent.RunRequest{Query: "q"}); err != nil {
		t.Fatalf("Brief: %v", err)
	}

	loaded, meta, err := ts.Load(context.Background(), "run-deg")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !meta.Degraded {
		t.Error("metadata must flag the degraded run")
	}
	if loaded.FinalState == nil || loaded.FinalState.Query != "q" {
		t.Errorf("final state not persisted: %+v", loaded.FinalState)
	}
}
