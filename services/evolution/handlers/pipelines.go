// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// ListPipelines handles GET /v1/pipelines. Active pipelines come
// first, then terminal ones, most recent first.
func ListPipelines(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active":    orch.GetActivePipelines(),
			"completed": orch.GetCompletedPipelines(),
		})
	}
}

// GetPipeline handles GET /v1/pipelines/:id.
func GetPipeline(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		p, ok := orch.GetPipeline(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found", "pipeline_id": id})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ListApprovals handles GET /v1/approvals: pipelines parked for human
// review.
func ListApprovals(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pending": orch.GetPendingApprovals()})
	}
}

// SubmitReview handles POST /v1/pipelines/:id/review with a
// ReviewDecision body. Approval resumes the pipeline; rejection
// cancels it.
func SubmitReview(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var decision datatypes.ReviewDecision
		if err := c.ShouldBindJSON(&decision); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review payload: " + err.Error()})
			return
		}

		err := orch.SubmitReview(c.Request.Context(), id, decision)
		switch {
		case errors.Is(err, pipeline.ErrPipelineNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "pipeline_id": id})
		case errors.Is(err, pipeline.ErrNotAwaitingReview):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "pipeline_id": id})
		case err != nil:
			slog.Error("failed to submit review", "pipeline_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit review"})
		default:
			slog.Info("review submitted", "pipeline_id", id,
				"approved", decision.Approved, "reviewer", decision.Reviewer)
			c.JSON(http.StatusOK, gin.H{"status": "accepted", "approved": decision.Approved})
		}
	}
}

// CancelPipeline handles POST /v1/pipelines/:id/cancel.
func CancelPipeline(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var body struct {
			Reason string `json:"reason"`
		}
		// Body is optional; a bare cancel is fine.
		_ = c.ShouldBindJSON(&body)
		if body.Reason == "" {
			body.Reason = "cancelled by operator"
		}

		err := orch.Cancel(c.Request.Context(), id, body.Reason)
		switch {
		case errors.Is(err, pipeline.ErrPipelineNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "pipeline_id": id})
		case errors.Is(err, pipeline.ErrPipelineFinished):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "pipeline_id": id})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel pipeline"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "cancelling", "pipeline_id": id})
		}
	}
}

// RollbackPipeline handles POST /v1/pipelines/:id/rollback.
func RollbackPipeline(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		err := orch.Rollback(c.Request.Context(), id)
		switch {
		case errors.Is(err, pipeline.ErrPipelineNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "pipeline_id": id})
		case errors.Is(err, pipeline.ErrRollbackUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "pipeline_id": id})
		case err != nil:
			slog.Error("rollback failed", "pipeline_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rollback failed: " + err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "rolled_back", "pipeline_id": id})
		}
	}
}

// GetStatistics handles GET /v1/statistics.
func GetStatistics(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.GetStatistics())
	}
}

// HistoryStore is the slice of the audit store the history endpoint
// needs.
type HistoryStore interface {
	ListPipelines(ctx context.Context, limit int) ([]pipeline.Pipeline, error)
}

// ListHistory handles GET /v1/history: terminal pipelines from the
// audit store, most recent first. The limit query parameter caps the
// result (default 50).
func ListHistory(store HistoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		records, err := store.ListPipelines(c.Request.Context(), limit)
		if err != nil {
			slog.Error("failed to list pipeline history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read pipeline history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pipelines": records})
	}
}
