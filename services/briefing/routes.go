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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all briefing routes with the router.
//
// Description:
//
//	Registers all /v1/briefings/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Run Endpoints:
//
//	POST /v1/briefings - Run one briefing synchronously
//	GET  /v1/briefings/stream - Run one briefing over a websocket
//
// Status Endpoints:
//
//	GET  /v1/briefings/runs - List recent runs
//	GET  /v1/briefings/runs/:id - Get one run's record
//	GET  /v1/briefings/workflow - Workflow graph as Mermaid source
//
// Health Endpoints:
//
//	GET  /v1/briefings/health - Liveness check
//	GET  /v1/briefings/ready - Readiness check (warmup complete)
//
// Debug Endpoints:
//
//	GET    /v1/briefings/debug/transcripts - List persisted transcripts
//	GET    /v1/briefings/debug/transcripts/:id - Load one transcript
//	DELETE /v1/briefings/debug/transcripts/:id - Delete one transcript
//	GET    /v1/briefings/debug/cache - Research cache statistics
//	DELETE /v1/briefings/debug/cache - Clear the research cache
//
// Example:
//
//	svc, _ := briefing.NewService(engine)
//	handlers := briefing.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	briefing.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	RegisterRoutesWithMiddleware(rg, handlers, nil)
}

// RegisterRoutesWithMiddleware registers briefing routes with optional
// middleware on the run-starting endpoints.
//
// Description:
//
//	Same as RegisterRoutes but applies middleware (e.g. the warmup
//	guard) to the endpoints that start runs. Status, health, and debug
//	endpoints stay unguarded: a warming-up server must still answer
//	readiness probes and listings.
//
// Inputs:
//
//	rg - The router group to register routes under.
//	handlers - The handlers.
//	middleware - Optional middleware for run-starting routes. Can be nil.
//
// Thread Safety: This function is safe for concurrent use.
func RegisterRoutesWithMiddleware(rg *gin.RouterGroup, handlers *Handlers, middleware gin.HandlerFunc) {
	briefings := rg.Group("/briefings")
	{
		// Run-starting endpoints, optionally guarded.
		var runs *gin.RouterGroup
		if middleware != nil {
			runs = briefings.Group("", middleware)
		} else {
			runs = briefings.Group("")
		}
		runs.POST("", handlers.HandleCreateBriefing)
		runs.GET("/stream", handlers.HandleStream)

		// Run status
		briefings.GET("/runs", handlers.HandleListRuns)
		briefings.GET("/runs/:id", handlers.HandleGetRun)
		briefings.GET("/workflow", handlers.HandleWorkflowGraph)

		// Health checks
		briefings.GET("/health", handlers.HandleHealth)
		briefings.GET("/ready", handlers.HandleReady)

		debug := briefings.Group("/debug")
		{
			debug.GET("/transcripts", handlers.HandleListTranscripts)
			debug.GET("/transcripts/:id", handlers.HandleGetTranscript)
			debug.DELETE("/transcripts/:id", handlers.HandleDeleteTranscript)
			debug.GET("/cache", handlers.HandleCacheStats)
			debug.DELETE("/cache", handlers.HandleClearCache)
		}
	}
}
