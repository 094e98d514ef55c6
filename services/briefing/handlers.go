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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/storage/badgerstore"
)

// BriefingRequest is the body of POST /v1/briefings.
type BriefingRequest struct {
	// Query is the user's question. Required.
	Query string `json:"query" binding:"required"`
}

// BriefingResponse is the outcome of a completed run.
type BriefingResponse struct {
	RunID         string              `json:"run_id"`
	FinalText     string              `json:"final_text"`
	WasRedirected bool                `json:"was_redirected"`
	RevisionCount int                 `json:"revision_count"`
	Degraded      bool                `json:"degraded"`
	DegradedCause string              `json:"degraded_cause,omitempty"`
	StageVisits   map[agent.Stage]int `json:"stage_visits"`
	DurationMS    int64               `json:"duration_ms"`
}

// ListRunsResponse is the body of GET /v1/briefings/runs.
type ListRunsResponse struct {
	Runs  []agent.RunRecord `json:"runs"`
	Count int               `json:"count"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers serves the briefing HTTP API.
//
// Thread Safety: safe for concurrent use; handlers hold no per-request
// state.
type Handlers struct {
	svc    *Service
	hub    *Hub
	db     *badgerstore.DB
	logger *slog.Logger
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithHub wires the websocket hub for the streaming endpoint.
func WithHub(h *Hub) HandlerOption {
	return func(hs *Handlers) { hs.hub = h }
}

// WithDebugDB wires the shared BadgerDB handle used by the cache debug
// endpoints.
func WithDebugDB(db *badgerstore.DB) HandlerOption {
	return func(hs *Handlers) { hs.db = db }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(hs *Handlers) { hs.logger = l }
}

// NewHandlers creates the handler set over a service.
func NewHandlers(svc *Service, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// getOrCreateRequestID returns the X-Request-ID header, minting a UUID
// when the client sent none.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleCreateBriefing handles POST /v1/briefings.
//
// Description:
//
//	Runs one briefing synchronously and returns the result. Degraded
//	runs still return 200: from the client's perspective a degraded
//	briefing is a briefing, just flagged. Only contract violations and
//	cancellation produce an error status.
//
// Response:
//
//	200 OK: BriefingResponse
//	400 Bad Request: missing or empty query
//	499 (client closed): run canceled by the caller
//	500 Internal Server Error: workflow contract violation
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCreateBriefing(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("handler", "HandleCreateBriefing"))

	var req BriefingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.svc.Brief(c.Request.Context(), agent.RunRequest{Query: req.Query})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Briefing canceled", slog.String("error", err.Error()))
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Error: "briefing run canceled",
				Code:  "RUN_CANCELED",
			})
			return
		}
		logger.Error("Briefing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "briefing run failed",
			Code:  "RUN_FAILED",
		})
		return
	}

	logger.Info("Briefing completed",
		slog.String("run_id", result.RunID),
		slog.Bool("redirected", result.WasRedirected),
		slog.Bool("degraded", result.Degraded),
		slog.Int("revisions", result.RevisionCount))

	c.JSON(http.StatusOK, BriefingResponse{
		RunID:         result.RunID,
		FinalText:     result.FinalText,
		WasRedirected: result.WasRedirected,
		RevisionCount: result.RevisionCount,
		Degraded:      result.Degraded,
		DegradedCause: result.DegradedCause,
		StageVisits:   result.StageVisits,
		DurationMS:    result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	})
}

// HandleGetRun handles GET /v1/briefings/runs/:id.
//
// Response:
//
//	200 OK: agent.RunRecord
//	404 Not Found: unknown run ID or session tracking disabled
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	sessions := h.svc.Sessions()
	if sessions == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "session tracking is not enabled",
			Code:  "SESSIONS_DISABLED",
		})
		return
	}

	rec, ok := sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "unknown run ID",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleListRuns handles GET /v1/briefings/runs.
//
// Query Parameters:
//
//	limit: maximum records returned, default 50
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var runs []agent.RunRecord
	if sessions := h.svc.Sessions(); sessions != nil {
		runs = sessions.List(limit)
	}
	if runs == nil {
		runs = []agent.RunRecord{}
	}
	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// HandleWorkflowGraph handles GET /v1/briefings/workflow. Returns the
// workflow graph as Mermaid source for documentation and debugging.
func (h *Handlers) HandleWorkflowGraph(c *gin.Context) {
	c.String(http.StatusOK, WorkflowMermaid())
}

// HandleHealth handles GET /v1/briefings/health. Liveness only; a
// warming-up server is alive.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/briefings/ready. Ready means warmup has
// finished and runs will not be rejected by the guard.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !IsWarmupComplete() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "warming_up",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
