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
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

// ListTranscriptsResponse is the body of GET
// /v1/briefings/debug/transcripts.
type ListTranscriptsResponse struct {
	Transcripts []*agent.TranscriptMetadata `json:"transcripts"`
	Count       int                         `json:"count"`
}

// CacheStatsResponse is the body of GET /v1/briefings/debug/cache.
type CacheStatsResponse struct {
	Prefix     string `json:"prefix"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
}

// HandleListTranscripts handles GET /v1/briefings/debug/transcripts.
//
// Query Parameters:
//
//	limit: maximum transcripts returned, default 100
//
// Response:
//
//	200 OK: ListTranscriptsResponse
//	404 Not Found: transcript persistence disabled
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleListTranscripts(c *gin.Context) {
	ts := h.svc.Transcripts()
	if ts == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "transcript persistence is not enabled",
			Code:  "TRANSCRIPTS_DISABLED",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	metas, err := ts.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Transcript listing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "listing transcripts failed",
			Code:  "STORAGE_ERROR",
		})
		return
	}
	if metas == nil {
		metas = []*agent.TranscriptMetadata{}
	}
	c.JSON(http.StatusOK, ListTranscriptsResponse{Transcripts: metas, Count: len(metas)})
}

// HandleGetTranscript handles GET /v1/briefings/debug/transcripts/:id.
// Returns the full transcript including the final workflow state, so
// the whole repair-loop history of a run can be inspected after the
// fact.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleGetTranscript(c *gin.Context) {
	ts := h.svc.Transcripts()
	if ts == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "transcript persistence is not enabled",
			Code:  "TRANSCRIPTS_DISABLED",
		})
		return
	}

	runID := c.Param("id")
	transcript, meta, err := ts.Load(c.Request.Context(), runID)
	if err != nil {
		if strings.Contains(err.Error(), badger.ErrKeyNotFound.Error()) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "unknown run ID",
				Code:  "TRANSCRIPT_NOT_FOUND",
			})
			return
		}
		h.logger.Error("Transcript load failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "loading transcript failed",
			Code:  "STORAGE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metadata":   meta,
		"transcript": transcript,
	})
}

// HandleDeleteTranscript handles DELETE
// /v1/briefings/debug/transcripts/:id. Deleting an unknown run ID
// succeeds; the endpoint is idempotent.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleDeleteTranscript(c *gin.Context) {
	ts := h.svc.Transcripts()
	if ts == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "transcript persistence is not enabled",
			Code:  "TRANSCRIPTS_DISABLED",
		})
		return
	}

	runID := c.Param("id")
	if err := ts.Delete(c.Request.Context(), runID); err != nil {
		h.logger.Error("Transcript delete failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "deleting transcript failed",
			Code:  "STORAGE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": runID})
}

// HandleCacheStats handles GET /v1/briefings/debug/cache. Walks the
// research cache namespace and reports entry count and compressed
// size. Key-only iteration; values are never loaded.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "cache inspection is not enabled",
			Code:  "CACHE_DISABLED",
		})
		return
	}

	stats := CacheStatsResponse{Prefix: search.CachePrefix}
	err := h.db.WithReadTxn(c.Request.Context(), func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(search.CachePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			stats.Entries++
			stats.TotalBytes += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		h.logger.Error("Cache stats failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "reading cache stats failed",
			Code:  "STORAGE_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleClearCache handles DELETE /v1/briefings/debug/cache. Drops
// every key in the research cache namespace; transcripts are untouched.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleClearCache(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "cache inspection is not enabled",
			Code:  "CACHE_DISABLED",
		})
		return
	}

	if err := h.db.DropPrefix(c.Request.Context(), []byte(search.CachePrefix)); err != nil {
		h.logger.Error("Cache clear failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "clearing cache failed",
			Code:  "STORAGE_ERROR",
		})
		return
	}

	h.logger.Info("Research cache cleared", slog.String("prefix", search.CachePrefix))
	c.JSON(http.StatusOK, gin.H{"cleared": search.CachePrefix})
}
