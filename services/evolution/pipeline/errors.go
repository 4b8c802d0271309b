// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors returned from orchestrator entry points.
var (
	// ErrTooManyPipelines indicates the active-pipeline cap was hit;
	// the change was rejected, not queued.
	ErrTooManyPipelines = errors.New("max concurrent pipelines reached")

	// ErrPipelineNotFound indicates the pipeline ID is unknown.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrNotAwaitingReview indicates a review was submitted for a
	// pipeline that is not parked for approval.
	ErrNotAwaitingReview = errors.New("pipeline is not awaiting review")

	// ErrPipelineFinished indicates an operation on a pipeline already
	// in a terminal stage.
	ErrPipelineFinished = errors.New("pipeline already finished")

	// ErrRollbackUnavailable indicates no rollback-capable deployment
	// exists for the pipeline.
	ErrRollbackUnavailable = errors.New("rollback unavailable")

	// ErrInvalidSource indicates a watched-source registration without
	// an ID or path.
	ErrInvalidSource = errors.New("invalid watched source")
)

// ErrorCode categorizes a pipeline failure.
type ErrorCode string

const (
	CodePipelineFailed   ErrorCode = "PIPELINE_FAILED"
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeDeploymentFailed ErrorCode = "DEPLOYMENT_FAILED"
	CodeCancelled        ErrorCode = "PIPELINE_CANCELLED"
)

// PipelineError is the terminal error recorded on a failed or cancelled
// pipeline. Stage names where the failure occurred. Retryable is always
// false in the current design; the field exists so the audit record
// carries the decision explicitly.
type PipelineError struct {
	Code      ErrorCode `json:"code"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Stage, e.Message)
}
