// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline provides the change-adaptation pipeline orchestrator.
//
// # Description
//
// The orchestrator runs one pipeline instance per incoming repository
// change through a fixed stage sequence: analyzing, generating,
// validating, then either awaiting human review or deploying, and
// finally completed. Failed and cancelled are terminal states reachable
// from any in-flight stage. Stage transitions within one pipeline are
// strictly ordered; pipelines progress concurrently and independently.
//
// # Thread Safety
//
// All orchestrator state (active pipelines, pending approvals,
// aggregate statistics) is guarded by a single mutex; pipeline
// snapshots returned from query methods are copies.
package pipeline

import (
	"time"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/patterns"
)

// =============================================================================
// Stages
// =============================================================================

// Stage is one state of the pipeline state machine.
type Stage string

const (
	StageMonitoring     Stage = "monitoring"
	StageAnalyzing      Stage = "analyzing"
	StageGenerating     Stage = "generating"
	StageValidating     Stage = "validating"
	StageAwaitingReview Stage = "awaiting_review"
	StageDeploying      Stage = "deploying"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
	StageCancelled      Stage = "cancelled"
)

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// StageRecord is one entry in a pipeline's append-only stage history.
type StageRecord struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"entered_at"`
}

// =============================================================================
// Approval
// =============================================================================

// ApprovalMode records which gate admitted a proposal to deployment.
// Caution covers proposals above the auto-approval threshold but at or
// below the human-approval threshold; they deploy without explicit
// approval and the mode makes that path auditable.
type ApprovalMode string

const (
	ApprovalNone    ApprovalMode = ""
	ApprovalAuto    ApprovalMode = "auto"
	ApprovalHuman   ApprovalMode = "human"
	ApprovalCaution ApprovalMode = "caution"
)

// =============================================================================
// Pipeline
// =============================================================================

// AnalysisResult bundles the semantic analysis of a change with its
// pattern matches and the risk score used by the approval gate.
type AnalysisResult struct {
	Analysis analysis.Result         `json:"analysis"`
	Matches  []patterns.PatternMatch `json:"matches"`

	// RiskScore is the fixed mapping of the overall impact level
	// (critical=1.0, significant=0.8, moderate=0.5, minimal=0.2,
	// none=0.0). It drives approval gating; the analyzer's weighted
	// ImpactScore does not.
	RiskScore float64 `json:"risk_score"`
}

// RecommendedStrategies returns the deduplicated remediation strategies
// across all pattern matches, in match order.
func (r *AnalysisResult) RecommendedStrategies() []patterns.RemediationStrategy {
	seen := make(map[patterns.RemediationStrategy]bool)
	out := make([]patterns.RemediationStrategy, 0)
	for _, m := range r.Matches {
		for _, s := range m.Strategies {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Pipeline is one adaptation run for one repository change. All fields
// are mutated only by the orchestrator under its lock; callers receive
// copies via Clone.
type Pipeline struct {
	ID         string                      `json:"id"`
	Change     datatypes.RepositoryChange  `json:"change"`
	Stage      Stage                       `json:"stage"`
	History    []StageRecord               `json:"history"`
	Analysis   *AnalysisResult             `json:"analysis,omitempty"`
	Proposal   *datatypes.ChangeProposal   `json:"proposal,omitempty"`
	Validation *datatypes.ValidationResult `json:"validation,omitempty"`
	Deployment *datatypes.DeploymentResult `json:"deployment,omitempty"`
	Approval   ApprovalMode                `json:"approval,omitempty"`
	Err        *PipelineError              `json:"error,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
	FinishedAt time.Time                   `json:"finished_at,omitempty"`
}

// Clone returns a copy safe to hand outside the orchestrator's lock.
// Nested pointer fields are copied one level deep, which is sufficient
// because the orchestrator never mutates their contents after the
// owning stage finishes.
func (p *Pipeline) Clone() Pipeline {
	out := *p
	out.History = append([]StageRecord(nil), p.History...)
	if p.Analysis != nil {
		a := *p.Analysis
		out.Analysis = &a
	}
	if p.Proposal != nil {
		pr := *p.Proposal
		out.Proposal = &pr
	}
	if p.Validation != nil {
		v := *p.Validation
		out.Validation = &v
	}
	if p.Deployment != nil {
		d := *p.Deployment
		out.Deployment = &d
	}
	if p.Err != nil {
		e := *p.Err
		out.Err = &e
	}
	return out
}

// =============================================================================
// Statistics
// =============================================================================

// Statistics are the orchestrator's aggregate counters. AvgDuration is
// a running average over completed pipelines only.
type Statistics struct {
	Total         int           `json:"total"`
	Active        int           `json:"active"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	AutoApproved  int           `json:"auto_approved"`
	HumanApproved int           `json:"human_approved"`
	RolledBack    int           `json:"rolled_back"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// =============================================================================
// Configuration
// =============================================================================

// Default configuration values applied by NewOrchestrator.
const (
	DefaultMaxConcurrentPipelines = 5
	DefaultPipelineTimeout        = 5 * time.Minute
	DefaultAutoApprovalThreshold  = 0.3
	DefaultHumanApprovalThreshold = 0.7
	DefaultEventBuffer            = 64
)

// Config holds orchestrator configuration. The zero value is usable;
// NewOrchestrator fills in defaults.
type Config struct {
	// MaxConcurrentPipelines caps the number of active pipeline
	// instances; changes arriving at the cap are rejected, not queued.
	// Default: 5
	MaxConcurrentPipelines int

	// PipelineTimeout bounds one pipeline's stage sequence. The
	// deadline is threaded through every external call, so expiry
	// aborts in-flight work. Time spent parked in awaiting_review does
	// not count. Default: 5m
	PipelineTimeout time.Duration

	// AutoApprovalThreshold is the risk score at or below which a
	// proposal with passing validation deploys without review.
	// Default: 0.3
	AutoApprovalThreshold float64

	// HumanApprovalThreshold is the risk score above which a proposal
	// always parks for human review. Default: 0.7
	HumanApprovalThreshold float64

	// AutoRollback triggers rollback automatically when a pipeline
	// fails after a deployment record with rollback availability
	// already exists.
	AutoRollback bool

	// EventBuffer is the per-subscriber event channel capacity.
	// Default: 64
	EventBuffer int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentPipelines <= 0 {
		c.MaxConcurrentPipelines = DefaultMaxConcurrentPipelines
	}
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = DefaultPipelineTimeout
	}
	if c.AutoApprovalThreshold <= 0 {
		c.AutoApprovalThreshold = DefaultAutoApprovalThreshold
	}
	if c.HumanApprovalThreshold <= 0 {
		c.HumanApprovalThreshold = DefaultHumanApprovalThreshold
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// =============================================================================
// Watched Sources
// =============================================================================

// WatchedSource is one registered upstream interface the service
// monitors for changes.
type WatchedSource struct {
	ID           string        `json:"id"`
	Protocol     string        `json:"protocol"`
	Path         string        `json:"path"`
	PollInterval time.Duration `json:"poll_interval,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
}
