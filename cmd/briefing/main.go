// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command briefing runs the Poliscope briefing server: the HTTP and
// websocket surface over the briefing workflow engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/Poliscope/services/briefing"
	"github.com/AleutianAI/Poliscope/services/briefing/agent"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/egress"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/phases"
	"github.com/AleutianAI/Poliscope/services/briefing/agent/providers"
	"github.com/AleutianAI/Poliscope/services/briefing/archive"
	"github.com/AleutianAI/Poliscope/services/briefing/config"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
	"github.com/AleutianAI/Poliscope/services/briefing/storage/badgerstore"
	"github.com/AleutianAI/Poliscope/services/briefing/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are compiled in)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}
	config.Set(cfg)

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so incoming traceparent headers flow
	// through all handlers and middleware, the warmup guard included.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()
	traceShutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry, slog.Default())
	if err != nil {
		slog.Error("Failed to set up tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	metricShutdown, err := telemetry.SetupMetrics(cfg.Server.Debug && cfg.Telemetry.StdoutTraces, slog.Default())
	if err != nil {
		slog.Error("Failed to set up metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Hot reload: an edited config file swaps the snapshot served by
	// config.Get; components that read per-run (timeouts, budgets) pick
	// it up on the next run. Engine-structural settings need a restart.
	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, cfg, config.Set, slog.Default())
		if err != nil {
			slog.Warn("Config hot reload unavailable", slog.String("error", err.Error()))
		}
	}

	// Storage: one BadgerDB shared by the research cache and the
	// transcript store.
	storeCfg := badgerstore.DefaultConfig()
	if cfg.Storage.InMemory {
		storeCfg = badgerstore.InMemoryConfig()
	} else {
		storeCfg.Path = cfg.Storage.DataDir
		if storeCfg.Path == "" {
			storeCfg.Path = config.DefaultDataDir()
		}
	}
	db, err := badgerstore.OpenDB(storeCfg)
	if err != nil {
		slog.Error("Failed to open BadgerDB", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcripts, err := agent.NewTranscriptStore(db, slog.Default())
	if err != nil {
		slog.Error("Failed to create transcript store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Egress governance: rate limits, audit trail, secret resolution.
	guard := egress.NewGuard(egress.LoadConfig(), slog.Default())

	// Event sinks: the websocket hub always, Influx when configured.
	hub := briefing.NewHub()
	sink := agent.MultiSink{hub}
	var influx *telemetry.InfluxSink
	if cfg.Telemetry.InfluxURL != "" {
		token, err := guard.Secrets().GetSecret(ctx, "BRIEFING_INFLUX_TOKEN")
		if err != nil {
			token = ""
		}
		influx = telemetry.NewInfluxSink(cfg.Telemetry.InfluxURL, token,
			cfg.Telemetry.InfluxOrg, cfg.Telemetry.InfluxBucket, slog.Default())
		sink = append(sink, influx)
		slog.Info("Influx run-event sink enabled",
			slog.String("url", cfg.Telemetry.InfluxURL))
	}

	deps, roleConfig, modelReady := buildDependencies(ctx, cfg, db, guard)

	registry, err := phases.NewRegistry()
	if err != nil {
		slog.Error("Failed to build phase registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions := agent.NewInMemorySessionStore(0)
	engine, err := agent.NewDefaultEngine(registry, deps,
		agent.WithSessionStore(sessions),
		agent.WithEventSink(sink),
		agent.WithMaxConcurrentRuns(cfg.Engine.MaxConcurrentRuns),
	)
	if err != nil {
		slog.Error("Failed to create workflow engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svcOpts := []briefing.ServiceOption{
		briefing.WithSessions(sessions),
		briefing.WithTranscripts(transcripts),
		briefing.WithRunTimeout(cfg.Engine.RunTimeout.Std()),
	}
	var archiver *archive.GCSArchiver
	if cfg.Archive.GCSBucket != "" {
		archiver, err = archive.NewGCSArchiver(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix, slog.Default())
		if err != nil {
			slog.Warn("Transcript archiving unavailable", slog.String("error", err.Error()))
		} else {
			svcOpts = append(svcOpts, briefing.WithArchiver(archiver))
			slog.Info("GCS transcript archive enabled",
				slog.String("bucket", cfg.Archive.GCSBucket))
		}
	}

	svc, err := briefing.NewService(engine, svcOpts...)
	if err != nil {
		slog.Error("Failed to create service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := briefing.NewHandlers(svc,
		briefing.WithHub(hub),
		briefing.WithDebugDB(db),
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("poliscope-briefing"))
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	briefing.RegisterRoutesWithMiddleware(v1, handlers, briefing.WarmupGuardMiddleware())

	warmup(roleConfig, modelReady)

	printBanner(cfg.Server.Port, modelReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Poliscope briefing server")
		if watcher != nil {
			_ = watcher.Close()
		}
		if influx != nil {
			influx.Close()
		}
		if archiver != nil {
			_ = archiver.Close()
		}
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close BadgerDB", slog.String("error", err.Error()))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, traceShutdown, metricShutdown); err != nil {
			slog.Warn("Telemetry shutdown incomplete", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting Poliscope briefing server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildDependencies wires providers, egress, and search into the
// engine's dependency bundle.
//
// Returns the bundle, the resolved role configuration, and whether a
// live completion provider is configured. A deployment with no
// reachable provider still gets valid dependencies: every chat call
// fails with ErrCompletionUnavailable and runs ride the degraded path.
func buildDependencies(ctx context.Context, cfg *config.ServiceConfig, db *badgerstore.DB, guard *egress.Guard) (*agent.Dependencies, providers.RoleConfig, bool) {
	modelReady := true

	roleConfig, err := providers.LoadRoleConfig(providers.DefaultModel())
	if err != nil {
		slog.Error("Invalid role configuration", slog.String("error", err.Error()))
		roleConfig = providers.RoleConfig{}
		modelReady = false
	}

	var chat map[string]providers.ChatClient
	if modelReady {
		factory := providers.NewProviderFactory()
		chat, err = factory.CreateRoleClients(roleConfig)
		if err != nil {
			slog.Warn("Completion provider unavailable, runs will degrade",
				slog.String("error", err.Error()))
			modelReady = false
		}
	}
	if chat == nil {
		chat = map[string]providers.ChatClient{}
		for _, role := range []string{
			providers.RoleClassifier,
			providers.RolePlanner,
			providers.RoleSynth,
			providers.RoleNeutrality,
			providers.RoleFact,
		} {
			chat[role] = providers.UnavailableChatClient{}
		}
	}
	chat = providers.GuardRoleClients(chat, guard, roleConfig)

	var searchClient search.Client
	apiKey, err := guard.Secrets().GetSecret(ctx, "TAVILY_API_KEY")
	if err != nil {
		slog.Warn("TAVILY_API_KEY unset, research will run without evidence")
		searchClient = search.UnavailableClient{Reason: "TAVILY_API_KEY unset"}
	} else {
		tavily, err := search.NewTavilyClient(apiKey,
			search.WithRateLimit(cfg.Search.RequestsPerSecond, cfg.Search.Burst))
		if err != nil {
			slog.Warn("Tavily client construction failed",
				slog.String("error", err.Error()))
			searchClient = search.UnavailableClient{Reason: "tavily misconfigured"}
		} else {
			searchClient = search.NewGuardedClient(tavily, guard, "tavily")
		}
	}
	// Cache outside the guard: hits never spend rate budget.
	searchClient = search.NewCachedClient(searchClient, db, cfg.Search.CacheTTL.Std(), slog.Default())

	deps, err := agent.NewDependencies(
		agent.WithChatClients(chat),
		agent.WithSearchClient(searchClient),
		agent.WithMaxSearchResults(cfg.Engine.MaxSearchResults),
		agent.WithContextBudget(cfg.Engine.ContextBudget),
	)
	if err != nil {
		// Unreachable with the fallbacks above; a nil bundle here is a
		// programming error.
		slog.Error("Failed to build dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	return deps, roleConfig, modelReady
}

// warmup pre-loads the synthesis model so the first briefing does not
// pay the cold-start. Runs in the background; the warmup guard holds
// run-starting requests until it finishes.
func warmup(roleConfig providers.RoleConfig, modelReady bool) {
	if !modelReady {
		briefing.MarkWarmupComplete()
		return
	}

	synthCfg := roleConfig.ForRole(providers.RoleSynth)
	factory := providers.NewProviderFactory()
	lifecycle, err := factory.CreateLifecycleManager(synthCfg)
	if err != nil {
		slog.Warn("Could not create lifecycle manager, skipping warmup",
			slog.String("error", err.Error()))
		briefing.MarkWarmupComplete()
		return
	}

	slog.Info("Server starting, model warmup in progress...",
		slog.String("provider", synthCfg.Provider),
		slog.String("model", synthCfg.Model))

	go func() {
		// Panic recovery ensures MarkWarmupComplete is always called;
		// otherwise the server would reject runs forever.
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				slog.Error("Panic in warmup goroutine recovered",
					slog.Any("panic", r),
					slog.String("stack", string(buf[:n])))
				briefing.MarkWarmupComplete()
			}
		}()

		warmupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		if err := lifecycle.WarmModel(warmupCtx, synthCfg.Model, providers.WarmupOptions{}); err != nil {
			slog.Warn("Model warmup failed, first briefing may be slow",
				slog.String("model", synthCfg.Model),
				slog.String("error", err.Error()),
				slog.Duration("duration", time.Since(start)))
		} else {
			slog.Info("Model warmup completed",
				slog.String("model", synthCfg.Model),
				slog.Duration("duration", time.Since(start)))
		}

		briefing.MarkWarmupComplete()
		slog.Info("Server ready to accept briefing requests")
	}()
}

func printBanner(port int, modelReady bool) {
	modelStatus := "DEGRADED (no completion provider configured)"
	if modelReady {
		modelStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                   POLISCOPE BRIEFING SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Researched, audited briefings on political queries.              ║
║  Models: %-50s       ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/briefings/health           │  ║
║  │                                                             │  ║
║  │ # Run a briefing                                            │  ║
║  │ curl -X POST http://localhost:%d/v1/briefings \        │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"query": "What does the new budget bill change?"}'   │  ║
║  │                                                             │  ║
║  │ # Inspect the workflow graph                                │  ║
║  │ curl http://localhost:%d/v1/briefings/workflow         │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Runs: POST /v1/briefings, GET /v1/briefings/stream (ws)     ║
║  ├── Status: /runs, /runs/:id, /workflow, /health, /ready        ║
║  └── Debug: /debug/transcripts, /debug/cache                     ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, modelStatus, port, port, port)
}
