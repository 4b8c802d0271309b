// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/handlers"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// Deps carries the wired components the routes need.
type Deps struct {
	Orchestrator *pipeline.Orchestrator

	// Watch starts filesystem watching for a newly registered source.
	// Optional; nil leaves sources push-only via POST /v1/changes.
	Watch func(pipeline.WatchedSource) error

	// History serves the audit trail. Optional; nil disables /v1/history.
	History handlers.HistoryStore
}

// SetupRoutes registers the evolution service endpoints.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/changes", handlers.SubmitChange(deps.Orchestrator))
		v1.POST("/sources", handlers.AddSource(deps.Orchestrator, deps.Watch))
		v1.GET("/sources", handlers.ListSources(deps.Orchestrator))
		v1.GET("/approvals", handlers.ListApprovals(deps.Orchestrator))
		v1.GET("/statistics", handlers.GetStatistics(deps.Orchestrator))
		v1.GET("/events/ws", handlers.HandleEventsWebSocket(deps.Orchestrator.Events()))

		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("", handlers.ListPipelines(deps.Orchestrator))
			pipelines.GET("/:id", handlers.GetPipeline(deps.Orchestrator))
			pipelines.POST("/:id/review", handlers.SubmitReview(deps.Orchestrator))
			pipelines.POST("/:id/cancel", handlers.CancelPipeline(deps.Orchestrator))
			pipelines.POST("/:id/rollback", handlers.RollbackPipeline(deps.Orchestrator))
		}

		if deps.History != nil {
			v1.GET("/history", handlers.ListHistory(deps.History))
		}
	}
}
