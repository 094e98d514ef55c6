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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// Hub fans run events out to websocket subscribers by run ID.
//
// Description:
//
//	The engine emits every event of every run into the hub; subscribers
//	register for one run ID and receive only its events. Emit never
//	blocks: a subscriber whose buffer is full loses events rather than
//	stalling the run goroutine. The stream is a live view, not a
//	durable log; the transcript is the durable log.
//
// Thread Safety: safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]chan agent.Event
}

// subscriberBuffer sizes each subscriber channel. Generous relative to
// the worst legal run (under twenty hops, two events per hop).
const subscriberBuffer = 64

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan agent.Event)}
}

// Emit implements agent.EventSink.
func (h *Hub) Emit(ev agent.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block the
			// run goroutine.
		}
	}
}

// Subscribe registers for one run's events. The returned cancel
// function unregisters and closes the channel; callers must invoke it
// exactly once.
func (h *Hub) Subscribe(runID string) (<-chan agent.Event, func()) {
	ch := make(chan agent.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[runID] = append(h.subs[runID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		channels := h.subs[runID]
		for i, c := range channels {
			if c == ch {
				h.subs[runID] = append(channels[:i], channels[i+1:]...)
				break
			}
		}
		if len(h.subs[runID]) == 0 {
			delete(h.subs, runID)
		}
		close(ch)
	}
	return ch, cancel
}

// StreamRequest is the first (and only) client message on the
// websocket: the query to run.
type StreamRequest struct {
	Query string `json:"query"`
}

const (
	// wsWriteTimeout bounds each outbound frame write.
	wsWriteTimeout = 10 * time.Second

	// wsRunStartTimeout bounds how long the client may take to send
	// its query after connecting.
	wsRunStartTimeout = 30 * time.Second
)

// The service is consumed by the bundled CLI and by local dashboards;
// it does not serve browsers cross-origin, so the handshake accepts
// any origin.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleStream handles GET /v1/briefings/stream.
//
// Description:
//
//	Upgrades to a websocket, reads one StreamRequest, and runs the
//	briefing while forwarding every run event as a JSON frame. The
//	terminal event (run_completed or run_failed) is the last frame;
//	the server then closes the connection. One connection drives one
//	run.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStream(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "event streaming is not enabled",
			Code:  "STREAMING_DISABLED",
		})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsRunStartTimeout))
	var req StreamRequest
	if err := conn.ReadJSON(&req); err != nil || req.Query == "" {
		_ = writeWSError(conn, "a non-empty query is required", "INVALID_REQUEST")
		return
	}
	// The run drives the connection from here on; no further client
	// input is expected.
	_ = conn.SetReadDeadline(time.Time{})

	runID := uuid.NewString()
	events, cancel := h.hub.Subscribe(runID)
	defer cancel()

	logger := h.logger.With(
		slog.String("handler", "HandleStream"),
		slog.String("run_id", runID))

	runErr := make(chan error, 1)
	go func() {
		_, err := h.svc.Brief(c.Request.Context(), agent.RunRequest{
			Query: req.Query,
			RunID: runID,
		})
		runErr <- err
	}()

	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Warn("Websocket write failed, abandoning stream",
				slog.String("error", err.Error()))
			<-runErr // the run finishes regardless; don't leak the goroutine's send
			return
		}
		if ev.Kind == agent.EventRunCompleted || ev.Kind == agent.EventRunFailed {
			break
		}
	}

	if err := <-runErr; err != nil {
		logger.Warn("Streamed run failed", slog.String("error", err.Error()))
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

// writeWSError sends one error frame and a close frame.
func writeWSError(conn *websocket.Conn, msg, code string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(ErrorResponse{Error: msg, Code: code}); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
}
