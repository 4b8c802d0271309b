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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
)

// =============================================================================
// Stub Collaborators
// =============================================================================

type stubGenerator struct {
	fn func(ctx context.Context, req GenerateRequest) (GenerationResult, error)
}

func (s *stubGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	return GenerationResult{
		Success: true,
		Proposal: &datatypes.ChangeProposal{
			ID:        uuid.NewString(),
			ChangeID:  req.Change.ID,
			Protocol:  req.Protocol,
			Summary:   "stub proposal",
			CreatedAt: time.Now(),
		},
	}, nil
}

type stubValidator struct {
	fn func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.ValidationResult, error)
}

func (s *stubValidator) Validate(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.ValidationResult, error) {
	if s.fn != nil {
		return s.fn(ctx, proposal)
	}
	return datatypes.ValidationResult{
		ProposalID:  proposal.ID,
		Valid:       true,
		ValidatedAt: time.Now(),
	}, nil
}

type stubDeployer struct {
	mu        sync.Mutex
	rollbacks int
	deployFn  func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error)
}

func (s *stubDeployer) Deploy(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error) {
	if s.deployFn != nil {
		return s.deployFn(ctx, proposal)
	}
	return datatypes.DeploymentResult{
		ProposalID:        proposal.ID,
		Status:            datatypes.DeploymentStatusSuccess,
		Stages:            []datatypes.StageOutcome{{Name: "apply", State: datatypes.StageStateSuccess}},
		RollbackAvailable: true,
		DeployedAt:        time.Now(),
	}, nil
}

func (s *stubDeployer) Rollback(ctx context.Context, proposal datatypes.ChangeProposal, deployment datatypes.DeploymentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	return nil
}

func (s *stubDeployer) rollbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// =============================================================================
// Helpers
// =============================================================================

func newTestOrchestrator(t *testing.T, cfg Config, deployer *stubDeployer) *Orchestrator {
	t.Helper()
	if deployer == nil {
		deployer = &stubDeployer{}
	}
	o, err := NewOrchestrator(cfg, Deps{
		Generator: &stubGenerator{},
		Validator: &stubValidator{},
		Deployer:  deployer,
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) Pipeline {
	t.Helper()
	var p Pipeline
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = o.GetPipeline(id)
		return ok && p.Stage.Terminal()
	}, 2*time.Second, 5*time.Millisecond, "pipeline %s never reached a terminal stage", id)
	return p
}

func waitStage(t *testing.T, o *Orchestrator, id string, stage Stage) Pipeline {
	t.Helper()
	var p Pipeline
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = o.GetPipeline(id)
		return ok && p.Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "pipeline %s never reached stage %s", id, stage)
	return p
}

func stageSequence(p Pipeline) []Stage {
	out := make([]Stage, 0, len(p.History))
	for _, rec := range p.History {
		out = append(out, rec.Stage)
	}
	return out
}

func trivialChange() datatypes.RepositoryChange {
	return datatypes.RepositoryChange{
		SourceID: "payments-api",
		Type:     datatypes.ChangeTypeVersionBump,
	}
}

func majorBumpChange() datatypes.RepositoryChange {
	return datatypes.RepositoryChange{
		SourceID:        "payments-api",
		Type:            datatypes.ChangeTypeVersionBump,
		PreviousVersion: "1.0.0",
		CurrentVersion:  "2.0.0",
	}
}

// paramRemovedChange yields a single high-severity breaking change,
// which classifies as moderate impact (risk 0.5).
func paramRemovedChange() datatypes.RepositoryChange {
	return datatypes.RepositoryChange{
		SourceID: "orders-api",
		Type:     datatypes.ChangeTypeAPIChange,
		Previous: &datatypes.InterfaceSurface{
			Operations: []datatypes.APISignature{{
				Name: "CreateOrder",
				Parameters: []datatypes.Parameter{
					{Name: "id", Type: "string", Required: true},
					{Name: "note", Type: "string"},
				},
			}},
		},
		Current: &datatypes.InterfaceSurface{
			Operations: []datatypes.APISignature{{
				Name: "CreateOrder",
				Parameters: []datatypes.Parameter{
					{Name: "id", Type: "string", Required: true},
				},
			}},
		},
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestSubmitRunsToCompletionWithAutoApproval(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	assert.Equal(t, StageMonitoring, p.Stage)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCompleted, done.Stage)
	assert.Equal(t, ApprovalAuto, done.Approval)
	assert.Equal(t, []Stage{
		StageMonitoring, StageAnalyzing, StageGenerating,
		StageValidating, StageDeploying, StageCompleted,
	}, stageSequence(done))
	require.NotNil(t, done.Proposal)
	assert.Equal(t, datatypes.ProposalStatusDeployed, done.Proposal.Status)
	assert.Equal(t, datatypes.ChangeStatusAdapted, done.Change.Status)

	stats := o.GetStatistics()
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.AutoApproved)
	assert.Equal(t, 0, stats.Active)
	assert.Greater(t, stats.AvgDuration, time.Duration(0))
}

func TestConcurrencyCapRejectsSubmission(t *testing.T) {
	release := make(chan struct{})
	gen := &stubGenerator{fn: func(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return GenerationResult{}, ctx.Err()
		}
		return (&stubGenerator{}).Generate(ctx, req)
	}}
	o, err := NewOrchestrator(Config{MaxConcurrentPipelines: 1}, Deps{
		Generator: gen,
		Validator: &stubValidator{},
		Deployer:  &stubDeployer{},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	first, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	waitStage(t, o, first.ID, StageGenerating)

	_, err = o.Submit(context.Background(), trivialChange())
	assert.ErrorIs(t, err, ErrTooManyPipelines)
	assert.Len(t, o.GetActivePipelines(), 1)

	close(release)
	waitTerminal(t, o, first.ID)
	assert.Empty(t, o.GetActivePipelines())
}

func TestPipelineTimeoutFails(t *testing.T) {
	gen := &stubGenerator{fn: func(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
		<-ctx.Done()
		return GenerationResult{}, ctx.Err()
	}}
	o, err := NewOrchestrator(Config{PipelineTimeout: 50 * time.Millisecond}, Deps{
		Generator: gen,
		Validator: &stubValidator{},
		Deployer:  &stubDeployer{},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageFailed, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodePipelineFailed, done.Err.Code)
	assert.Equal(t, StageGenerating, done.Err.Stage)
	assert.False(t, done.Err.Retryable)
}

func TestGenerationFailureIsTerminal(t *testing.T) {
	gen := &stubGenerator{fn: func(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
		return GenerationResult{
			Success: false,
			Errors:  []GenerationError{{Code: "TEMPLATE_ERROR", Message: "no template for protocol"}},
		}, nil
	}}
	o, err := NewOrchestrator(Config{}, Deps{
		Generator: gen,
		Validator: &stubValidator{},
		Deployer:  &stubDeployer{},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageFailed, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodeGenerationFailed, done.Err.Code)
	assert.Contains(t, done.Err.Message, "no template for protocol")
	assert.Len(t, o.GetCompletedPipelines(), 1)
}

// =============================================================================
// Approval Gating
// =============================================================================

func TestHighRiskChangeParksForReview(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	p, err := o.Submit(context.Background(), majorBumpChange())
	require.NoError(t, err)

	parked := waitStage(t, o, p.ID, StageAwaitingReview)
	require.NotNil(t, parked.Analysis)
	assert.NotEmpty(t, parked.Analysis.Analysis.Diff.BreakingChanges)
	assert.GreaterOrEqual(t, parked.Analysis.RiskScore, 0.8)
	require.NotNil(t, parked.Proposal)
	assert.Equal(t, datatypes.ProposalStatusPendingReview, parked.Proposal.Status)

	pending := o.GetPendingApprovals()
	require.Len(t, pending, 1)
	assert.Equal(t, p.ID, pending[0].ID)

	err = o.SubmitReview(context.Background(), p.ID, datatypes.ReviewDecision{
		Approved: true,
		Reviewer: "jinterlante",
		Comments: []string{"contract diff looks right"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCompleted, done.Stage)
	assert.Equal(t, ApprovalHuman, done.Approval)
	assert.Contains(t, done.Proposal.ReviewComments, "contract diff looks right")
	assert.Equal(t, []Stage{
		StageMonitoring, StageAnalyzing, StageGenerating,
		StageValidating, StageAwaitingReview, StageDeploying, StageCompleted,
	}, stageSequence(done))
	assert.Equal(t, 1, o.GetStatistics().HumanApproved)
	assert.Empty(t, o.GetPendingApprovals())
}

func TestApprovalRearmedDeadlineReleased(t *testing.T) {
	var mu sync.Mutex
	var deployCtx context.Context
	dep := &stubDeployer{deployFn: func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error) {
		mu.Lock()
		deployCtx = ctx
		mu.Unlock()
		return (&stubDeployer{}).Deploy(ctx, proposal)
	}}
	o := newTestOrchestrator(t, Config{}, dep)

	p, err := o.Submit(context.Background(), majorBumpChange())
	require.NoError(t, err)
	waitStage(t, o, p.ID, StageAwaitingReview)

	require.NoError(t, o.SubmitReview(context.Background(), p.ID,
		datatypes.ReviewDecision{Approved: true, Reviewer: "jinterlante"}))
	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCompleted, done.Stage)

	// The deadline armed on approval must be cancelled when the run
	// ends, not left ticking until it expires.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deployCtx != nil && deployCtx.Err() != nil
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ErrorIs(t, deployCtx.Err(), context.Canceled)
	mu.Unlock()
}

func TestReviewRejectionCancelsPipeline(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	p, err := o.Submit(context.Background(), majorBumpChange())
	require.NoError(t, err)
	waitStage(t, o, p.ID, StageAwaitingReview)

	err = o.SubmitReview(context.Background(), p.ID, datatypes.ReviewDecision{
		Approved: false,
		Reviewer: "jinterlante",
		Comments: []string{"needs a migration plan"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCancelled, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodeCancelled, done.Err.Code)
	assert.Contains(t, done.Err.Message, "jinterlante")
	assert.Equal(t, datatypes.ProposalStatusRejected, done.Proposal.Status)
	assert.Nil(t, done.Deployment)
	assert.Equal(t, 1, o.GetStatistics().Cancelled)

	// A fresh pipeline starts independently after the rejection.
	next, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	assert.Equal(t, StageMonitoring, next.Stage)
	waitTerminal(t, o, next.ID)
}

func TestSubmitReviewErrors(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	err := o.SubmitReview(context.Background(), "missing", datatypes.ReviewDecision{Approved: true})
	assert.ErrorIs(t, err, ErrPipelineNotFound)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	waitTerminal(t, o, p.ID)

	err = o.SubmitReview(context.Background(), p.ID, datatypes.ReviewDecision{Approved: true})
	assert.ErrorIs(t, err, ErrNotAwaitingReview)
}

func TestCautionPathDeploysWithoutExplicitApproval(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	p, err := o.Submit(context.Background(), paramRemovedChange())
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCompleted, done.Stage)
	assert.Equal(t, ApprovalCaution, done.Approval)
	assert.Equal(t, 0.5, done.Analysis.RiskScore)

	stats := o.GetStatistics()
	assert.Equal(t, 0, stats.AutoApproved)
	assert.Equal(t, 0, stats.HumanApproved)
}

func TestValidationFailureBlocksDeployment(t *testing.T) {
	val := &stubValidator{fn: func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.ValidationResult, error) {
		return datatypes.ValidationResult{
			ProposalID: proposal.ID,
			Valid:      false,
			Issues: []datatypes.ValidationIssue{
				{Severity: datatypes.IssueSeverityError, Code: "CONTRACT_MISMATCH", Message: "adapter drifts from contract"},
			},
		}, nil
	}}
	deployCalled := false
	dep := &stubDeployer{deployFn: func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error) {
		deployCalled = true
		return datatypes.DeploymentResult{}, fmt.Errorf("should not deploy")
	}}
	o, err := NewOrchestrator(Config{}, Deps{
		Generator: &stubGenerator{},
		Validator: val,
		Deployer:  dep,
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	p, err := o.Submit(context.Background(), paramRemovedChange())
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageFailed, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodeValidationFailed, done.Err.Code)
	assert.False(t, deployCalled)
}

// =============================================================================
// Cancellation and Rollback
// =============================================================================

func TestCancelInFlightPipeline(t *testing.T) {
	started := make(chan struct{})
	gen := &stubGenerator{fn: func(ctx context.Context, req GenerateRequest) (GenerationResult, error) {
		close(started)
		<-ctx.Done()
		return GenerationResult{}, ctx.Err()
	}}
	o, err := NewOrchestrator(Config{}, Deps{
		Generator: gen,
		Validator: &stubValidator{},
		Deployer:  &stubDeployer{},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	<-started

	require.NoError(t, o.Cancel(context.Background(), p.ID, "operator abort"))

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCancelled, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodeCancelled, done.Err.Code)
	assert.Equal(t, "operator abort", done.Err.Message)

	err = o.Cancel(context.Background(), p.ID, "again")
	assert.ErrorIs(t, err, ErrPipelineFinished)
}

func TestCancelParkedPipeline(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	p, err := o.Submit(context.Background(), majorBumpChange())
	require.NoError(t, err)
	waitStage(t, o, p.ID, StageAwaitingReview)

	require.NoError(t, o.Cancel(context.Background(), p.ID, "change superseded"))

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageCancelled, done.Stage)
	assert.Empty(t, o.GetPendingApprovals())
}

func TestAutoRollbackOnDeploymentFailure(t *testing.T) {
	dep := &stubDeployer{deployFn: func(ctx context.Context, proposal datatypes.ChangeProposal) (datatypes.DeploymentResult, error) {
		return datatypes.DeploymentResult{
			ProposalID: proposal.ID,
			Status:     datatypes.DeploymentStatusFailed,
			Stages: []datatypes.StageOutcome{
				{Name: "apply", State: datatypes.StageStateSuccess},
				{Name: "verify", State: datatypes.StageStateFailed, Error: "health check failed"},
			},
			RollbackAvailable: true,
		}, nil
	}}
	o, err := NewOrchestrator(Config{AutoRollback: true}, Deps{
		Generator: &stubGenerator{},
		Validator: &stubValidator{},
		Deployer:  dep,
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)

	done := waitTerminal(t, o, p.ID)
	assert.Equal(t, StageFailed, done.Stage)
	require.NotNil(t, done.Err)
	assert.Equal(t, CodeDeploymentFailed, done.Err.Code)
	assert.Contains(t, done.Err.Message, "health check failed")

	require.Eventually(t, func() bool {
		return dep.rollbackCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	rolled, ok := o.GetPipeline(p.ID)
	require.True(t, ok)
	assert.Equal(t, datatypes.DeploymentStatusRolledBack, rolled.Deployment.Status)
	assert.Equal(t, datatypes.ProposalStatusRolledBack, rolled.Proposal.Status)
	assert.Equal(t, 1, o.GetStatistics().RolledBack)

	// Successful stages stay in the audit trail.
	assert.Equal(t, datatypes.StageStateSuccess, rolled.Deployment.Stages[0].State)
}

func TestManualRollback(t *testing.T) {
	dep := &stubDeployer{}
	o := newTestOrchestrator(t, Config{}, dep)

	p, err := o.Submit(context.Background(), trivialChange())
	require.NoError(t, err)
	waitTerminal(t, o, p.ID)

	require.NoError(t, o.Rollback(context.Background(), p.ID))
	assert.Equal(t, 1, dep.rollbackCount())

	rolled, ok := o.GetPipeline(p.ID)
	require.True(t, ok)
	assert.Equal(t, datatypes.DeploymentStatusRolledBack, rolled.Deployment.Status)

	// A second rollback has nothing to revert.
	assert.ErrorIs(t, o.Rollback(context.Background(), p.ID), ErrRollbackUnavailable)
	assert.ErrorIs(t, o.Rollback(context.Background(), "missing"), ErrPipelineNotFound)
}

// =============================================================================
// Sources and Misc
// =============================================================================

func TestAddSource(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, nil)

	assert.ErrorIs(t, o.AddSource(WatchedSource{}), ErrInvalidSource)

	require.NoError(t, o.AddSource(WatchedSource{ID: "payments-api", Protocol: "grpc", Path: "/srv/contracts/payments"}))
	require.NoError(t, o.AddSource(WatchedSource{ID: "orders-api", Protocol: "rest", Path: "/srv/contracts/orders"}))

	sources := o.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "orders-api", sources[0].ID)
	assert.Equal(t, "payments-api", sources[1].ID)
	assert.False(t, sources[0].RegisteredAt.IsZero())
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	_, err := NewOrchestrator(Config{}, Deps{})
	assert.Error(t, err)

	_, err = NewOrchestrator(Config{}, Deps{Generator: &stubGenerator{}})
	assert.Error(t, err)

	_, err = NewOrchestrator(Config{}, Deps{Generator: &stubGenerator{}, Validator: &stubValidator{}})
	assert.Error(t, err)
}
