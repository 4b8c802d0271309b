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
	"context"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// =============================================================================
// Collaborator Contracts
// =============================================================================

// GenerateRequest is the input to the proposal generator: the analyzed
// change, its pattern matches, and the adapter files the generator may
// touch.
type GenerateRequest struct {
	Protocol        string                     `json:"protocol"`
	Change          datatypes.RepositoryChange `json:"change"`
	Analysis        AnalysisResult             `json:"analysis"`
	FileList        []string                   `json:"file_list,omitempty"`
	ExistingContent map[string]string          `json:"existing_content,omitempty"`
}

// GenerationError is one failure reported by the generator. A
// non-recoverable error terminates the pipeline.
type GenerationError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// GenerationResult is the generator's report. Proposal is non-nil only
// on success.
type GenerationResult struct {
	Success  bool                      `json:"success"`
	Proposal *datatypes.ChangeProposal `json:"proposal,omitempty"`
	Errors   []GenerationError         `json:"errors,omitempty"`
}

// Generator produces a remediation proposal for an analyzed change.
//
// Implementations must honor ctx cancellation; the orchestrator threads
// its per-pipeline deadline through this call.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerationResult, error)
}

// Validator checks a proposal for contract compliance, runs its
// generated tests, and scans it for security findings.
type Validator interface {
	Validate(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.ValidationResult, error)
}

// Deployer applies an approved proposal and can revert a deployment
// that reported rollback availability.
type Deployer interface {
	Deploy(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error)
	Rollback(ctx context.Context, proposal datatypes.ChangeProposal, deployment datatypes.DeploymentResult) error
}

// Store persists finished pipelines for audit. Optional; a nil store
// disables persistence.
type Store interface {
	SavePipeline(ctx context.Context, p Pipeline) error
}

// Propagator publishes pipeline outcomes to downstream subscribers.
// Optional; a nil propagator disables propagation.
type Propagator interface {
	Propagate(ctx context.Context, event string, payload any) (string, error)
}
