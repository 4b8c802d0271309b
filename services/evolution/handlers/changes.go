// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the evolution
// service: change submission, source registration, pipeline queries,
// reviews, and the websocket event stream.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubmitChange handles POST /v1/changes: accepts a repository change
// and starts an adaptation pipeline for it.
func SubmitChange(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var change datatypes.RepositoryChange
		if err := c.ShouldBindJSON(&change); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid change payload: " + err.Error()})
			return
		}

		p, err := orch.Submit(c.Request.Context(), change)
		if err != nil {
			if errors.Is(err, pipeline.ErrTooManyPipelines) {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
				return
			}
			slog.Error("failed to submit change", "source_id", change.SourceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start pipeline"})
			return
		}

		slog.Info("change accepted", "pipeline_id", p.ID, "source_id", p.Change.SourceID)
		c.JSON(http.StatusAccepted, p)
	}
}

// AddSource handles POST /v1/sources: registers a watched change
// source and, when a watcher is attached, begins filesystem watching.
func AddSource(orch *pipeline.Orchestrator, watch func(pipeline.WatchedSource) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var src pipeline.WatchedSource
		if err := c.ShouldBindJSON(&src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source payload: " + err.Error()})
			return
		}

		if err := orch.AddSource(src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if watch != nil {
			if err := watch(src); err != nil {
				slog.Error("failed to start watching source", "source_id", src.ID, "error", err)
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error": "source registered but watching failed: " + err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusCreated, gin.H{"status": "registered", "source_id": src.ID})
	}
}

// ListSources handles GET /v1/sources.
func ListSources(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sources": orch.Sources()})
	}
}
