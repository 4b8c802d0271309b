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
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianEvolve/pkg/logging"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/observability"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
	buspkg "github.com/AleutianAI/AleutianEvolve/services/evolution/propagation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/routes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/stages"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/store"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/watcher"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("evolution-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func pipelineConfig() pipeline.Config {
	cfg := pipeline.Config{AutoRollback: true}
	if raw := os.Getenv("EVOLVE_MAX_PIPELINES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MaxConcurrentPipelines = n
		} else {
			slog.Warn("ignoring invalid EVOLVE_MAX_PIPELINES", "value", raw)
		}
	}
	if raw := os.Getenv("EVOLVE_PIPELINE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.PipelineTimeout = d
		} else {
			slog.Warn("ignoring invalid EVOLVE_PIPELINE_TIMEOUT", "value", raw)
		}
	}
	return cfg
}

func main() {
	port := os.Getenv("EVOLVE_PORT")
	if port == "" {
		port = "12230"
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "evolved",
		JSON:    true,
		LogDir:  os.Getenv("EVOLVE_LOG_DIR"),
	})
	defer appLogger.Close()
	logger := appLogger.Slog()
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// --- Audit store ---
	dataDir := os.Getenv("EVOLVE_DATA_DIR")
	storeCfg := store.Config{Path: dataDir, Logger: logger}
	if dataDir == "" {
		slog.Warn("EVOLVE_DATA_DIR not set, audit trail is in-memory only")
		storeCfg.InMemory = true
	}
	auditStore, err := store.Open(storeCfg)
	if err != nil {
		log.Fatalf("FATAL: could not open the audit store: %v", err)
	}
	defer auditStore.Close()

	// --- Propagation bus ---
	bus := buspkg.NewBus(buspkg.Config{}, logger)
	bus.Start()
	defer bus.Stop()

	// Mirror bus delivery signals into Prometheus.
	go func() {
		for sig := range bus.Signals() {
			observability.DefaultMetrics.RecordPropagation(string(sig.Channel), string(sig.Kind))
		}
	}()

	// --- Orchestrator ---
	adapterRoot := os.Getenv("EVOLVE_ADAPTER_ROOT")
	if adapterRoot == "" {
		adapterRoot = "/app/adapters"
	}
	orch, err := pipeline.NewOrchestrator(pipelineConfig(), pipeline.Deps{
		Generator:  stages.NewTemplateGenerator(),
		Validator:  stages.NewHeuristicValidator(),
		Deployer:   stages.NewFilesystemDeployer(adapterRoot),
		Store:      auditStore,
		Propagator: bus,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("FATAL: could not create the orchestrator: %v", err)
	}
	defer orch.Close()

	// Mirror pipeline lifecycle events into Prometheus.
	_, pipelineEvents := orch.Events().Subscribe()
	go observability.DefaultMetrics.ObservePipeline(pipelineEvents)

	// --- Source watcher ---
	srcWatcher, err := watcher.New(func(change datatypes.RepositoryChange) {
		observability.DefaultMetrics.RecordChange(change.SourceID, string(change.Type))
		if _, err := orch.Submit(context.Background(), change); err != nil {
			slog.Error("failed to submit detected change", "source_id", change.SourceID, "error", err)
		}
	}, watcher.Options{Logger: logger})
	if err != nil {
		log.Fatalf("FATAL: could not create the source watcher: %v", err)
	}
	defer srcWatcher.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware("evolution-service"))

	routes.SetupRoutes(router, routes.Deps{
		Orchestrator: orch,
		Watch:        srcWatcher.Watch,
		History:      auditStore,
	})
	log.Println("started up the container")

	log.Println("Starting the evolution server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
