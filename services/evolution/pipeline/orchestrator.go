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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianEvolve/pkg/validation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/analysis"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/datatypes"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/patterns"
)

var tracer = otel.Tracer("evolve.pipeline")

// Propagation event names published on pipeline outcomes.
const (
	PropagationAdaptationCompleted = "adaptation-completed"
	PropagationAdaptationFailed    = "adaptation-failed"
	PropagationRollbackExecuted    = "rollback-executed"
)

// =============================================================================
// Dependencies
// =============================================================================

// Deps are the orchestrator's collaborators. Generator, Validator, and
// Deployer are required; the rest default or disable when nil.
type Deps struct {
	Analyzer   *analysis.Analyzer
	Registry   *patterns.Registry
	Generator  Generator
	Validator  Validator
	Deployer   Deployer
	Store      Store
	Propagator Propagator
	Logger     *slog.Logger
}

// =============================================================================
// Orchestrator
// =============================================================================

// reviewSignal resumes a parked pipeline: either a reviewer decision or
// an explicit cancellation.
type reviewSignal struct {
	decision  datatypes.ReviewDecision
	cancelled bool
	reason    string
}

// runState is the per-pipeline runtime handle. cancel aborts the
// current stage context; resume wakes a pipeline parked for review.
type runState struct {
	cancel          context.CancelFunc
	resume          chan reviewSignal
	cancelRequested bool
	cancelReason    string
}

// Orchestrator drives pipelines through the stage sequence and owns all
// shared pipeline state.
type Orchestrator struct {
	cfg        Config
	analyzer   *analysis.Analyzer
	matcher    *patterns.Matcher
	generator  Generator
	validator  Validator
	deployer   Deployer
	store      Store
	propagator Propagator
	events     *Dispatcher
	logger     *slog.Logger

	mu        sync.Mutex
	active    map[string]*Pipeline
	runs      map[string]*runState
	pending   map[string]*Pipeline
	completed []*Pipeline
	sources   map[string]WatchedSource
	stats     Statistics
	durTotal  time.Duration
}

// NewOrchestrator creates an orchestrator.
//
// # Inputs
//
//   - cfg: Configuration; zero values get defaults.
//   - deps: Collaborators. Generator, Validator, and Deployer must be
//     non-nil. A nil Analyzer gets a default; a nil Registry gets the
//     built-in pattern catalog. Store and Propagator are optional.
//
// # Outputs
//
//   - *Orchestrator: Ready for Submit calls.
//   - error: Non-nil when a required collaborator is missing.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("pipeline: validator is required")
	}
	if deps.Deployer == nil {
		return nil, fmt.Errorf("pipeline: deployer is required")
	}

	cfg.applyDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer(logger)
	}
	registry := deps.Registry
	if registry == nil {
		registry = patterns.DefaultRegistry()
	}

	return &Orchestrator{
		cfg:        cfg,
		analyzer:   analyzer,
		matcher:    patterns.NewMatcher(registry),
		generator:  deps.Generator,
		validator:  deps.Validator,
		deployer:   deps.Deployer,
		store:      deps.Store,
		propagator: deps.Propagator,
		events:     NewDispatcher(cfg.EventBuffer, logger),
		logger:     logger.With("component", "pipeline"),
		active:     make(map[string]*Pipeline),
		runs:       make(map[string]*runState),
		pending:    make(map[string]*Pipeline),
		sources:    make(map[string]WatchedSource),
	}, nil
}

// Events returns the orchestrator's event dispatcher for subscription.
func (o *Orchestrator) Events() *Dispatcher {
	return o.events
}

// Close shuts down the event dispatcher. In-flight pipelines keep
// running; call Cancel first to stop them.
func (o *Orchestrator) Close() {
	o.events.Close()
}

// =============================================================================
// Change Intake
// =============================================================================

// Submit admits a repository change and starts a pipeline for it.
//
// # Description
//
// One pipeline instance is created per change. When the number of
// active pipelines is already at MaxConcurrentPipelines the change is
// rejected with ErrTooManyPipelines and no instance is created. The
// returned snapshot shows the pipeline in its initial monitoring stage;
// the stage sequence runs on a background goroutine.
func (o *Orchestrator) Submit(ctx context.Context, change datatypes.RepositoryChange) (Pipeline, error) {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now()
	}
	if change.Status == "" {
		change.Status = datatypes.ChangeStatusDetected
	}

	o.mu.Lock()
	if len(o.active) >= o.cfg.MaxConcurrentPipelines {
		o.mu.Unlock()
		instruments().recordRejected(ctx)
		o.logger.Warn("change rejected at concurrency cap",
			"change_id", change.ID, "max", o.cfg.MaxConcurrentPipelines)
		return Pipeline{}, fmt.Errorf("%w (max %d)", ErrTooManyPipelines, o.cfg.MaxConcurrentPipelines)
	}

	now := time.Now()
	p := &Pipeline{
		ID:        uuid.NewString(),
		Change:    change,
		Stage:     StageMonitoring,
		History:   []StageRecord{{Stage: StageMonitoring, EnteredAt: now}},
		CreatedAt: now,
	}
	o.active[p.ID] = p
	o.runs[p.ID] = &runState{resume: make(chan reviewSignal, 1)}
	o.stats.Total++
	snapshot := p.Clone()
	o.mu.Unlock()

	instruments().recordStart(ctx)
	o.events.Publish(Event{Type: EventChangeDetected, ChangeID: change.ID, Payload: change})
	o.events.Publish(Event{Type: EventPipelineCreated, PipelineID: p.ID, ChangeID: change.ID, Stage: StageMonitoring})
	o.logger.Info("pipeline created", "pipeline_id", p.ID, "change_id", change.ID,
		"change_type", string(change.Type))

	go o.run(p.ID)

	return snapshot, nil
}

// AddSource registers an upstream interface to watch for changes.
func (o *Orchestrator) AddSource(src WatchedSource) error {
	if src.ID == "" || src.Path == "" {
		return ErrInvalidSource
	}
	if err := validation.ValidateSourceID(src.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if src.RegisteredAt.IsZero() {
		src.RegisteredAt = time.Now()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[src.ID] = src
	o.logger.Info("watched source registered", "source_id", src.ID, "path", src.Path)
	return nil
}

// Sources returns the registered watched sources sorted by ID.
func (o *Orchestrator) Sources() []WatchedSource {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]WatchedSource, 0, len(o.sources))
	for _, src := range o.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// Stage Sequence
// =============================================================================

// run executes the stage sequence for one pipeline. It is the only
// goroutine that advances the pipeline's stage; Cancel and SubmitReview
// merely signal it.
func (o *Orchestrator) run(id string) {
	o.mu.Lock()
	p, ok := o.active[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	rs := o.runs[id]
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PipelineTimeout)
	rs.cancel = cancel
	change := p.Change
	o.mu.Unlock()
	// awaitReview re-arms the deadline under the lock; release whichever
	// cancel is current when the run ends so the timer never leaks.
	defer func() {
		o.mu.Lock()
		release := rs.cancel
		o.mu.Unlock()
		release()
	}()

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.id", id),
		attribute.String("change.id", change.ID),
		attribute.String("change.type", string(change.Type)),
	))
	defer span.End()

	// ---- analyzing ----
	o.transition(id, StageAnalyzing)
	stageStart := time.Now()
	result := o.analyzer.Analyze(ctx, change)
	matches := o.matcher.Match(patterns.ContextFromAnalysis(change, result))
	ar := &AnalysisResult{
		Analysis:  result,
		Matches:   matches,
		RiskScore: result.Diff.Impact.Score(),
	}
	instruments().recordStage(ctx, StageAnalyzing, time.Since(stageStart).Seconds())
	if o.interrupted(ctx, id, StageAnalyzing) {
		return
	}

	o.mu.Lock()
	p.Analysis = ar
	p.Change.Status = datatypes.ChangeStatusAnalyzed
	o.mu.Unlock()
	o.events.Publish(Event{Type: EventAnalysisCompleted, PipelineID: id, ChangeID: change.ID, Payload: ar})
	span.SetAttributes(
		attribute.String("analysis.impact", string(result.Diff.Impact)),
		attribute.Int("analysis.matches", len(matches)),
	)

	// ---- generating ----
	o.transition(id, StageGenerating)
	stageStart = time.Now()
	gen, err := o.generator.Generate(ctx, GenerateRequest{
		Protocol: change.SourceID,
		Change:   change,
		Analysis: *ar,
		FileList: change.ChangedPaths,
	})
	instruments().recordStage(ctx, StageGenerating, time.Since(stageStart).Seconds())
	if o.interrupted(ctx, id, StageGenerating) {
		return
	}
	if err != nil {
		o.failPipeline(ctx, id, StageGenerating, CodeGenerationFailed, err.Error())
		return
	}
	if !gen.Success || gen.Proposal == nil {
		o.failPipeline(ctx, id, StageGenerating, CodeGenerationFailed, generationFailureMessage(gen.Errors))
		return
	}

	proposal := gen.Proposal
	proposal.Status = datatypes.ProposalStatusDraft
	o.mu.Lock()
	p.Proposal = proposal
	o.mu.Unlock()
	o.events.Publish(Event{Type: EventProposalGenerated, PipelineID: id, ChangeID: change.ID, Payload: proposal})

	// ---- validating ----
	o.transition(id, StageValidating)
	stageStart = time.Now()
	vres, err := o.validator.Validate(ctx, *proposal)
	instruments().recordStage(ctx, StageValidating, time.Since(stageStart).Seconds())
	if o.interrupted(ctx, id, StageValidating) {
		return
	}
	if err != nil {
		o.failPipeline(ctx, id, StageValidating, CodeValidationFailed, err.Error())
		return
	}

	o.mu.Lock()
	p.Validation = &vres
	o.mu.Unlock()
	o.events.Publish(Event{Type: EventValidationCompleted, PipelineID: id, ChangeID: change.ID, Payload: vres})

	// ---- approval gate ----
	risk := ar.RiskScore
	span.SetAttributes(attribute.Float64("approval.risk_score", risk))

	switch {
	case risk > o.cfg.HumanApprovalThreshold:
		next, ok := o.awaitReview(ctx, id, rs)
		if !ok {
			return
		}
		ctx = next

	case !vres.Valid:
		o.failPipeline(ctx, id, StageValidating, CodeValidationFailed,
			fmt.Sprintf("proposal invalid: %d blocking issues", countBlocking(vres.Issues)))
		return

	case risk <= o.cfg.AutoApprovalThreshold:
		o.mu.Lock()
		p.Approval = ApprovalAuto
		p.Proposal.Status = datatypes.ProposalStatusApproved
		o.stats.AutoApproved++
		o.mu.Unlock()
		o.logger.Info("proposal auto-approved", "pipeline_id", id, "risk_score", risk)

	default:
		// Above the auto threshold but at or below the human threshold:
		// deploy without explicit approval, flagged for audit.
		o.mu.Lock()
		p.Approval = ApprovalCaution
		p.Proposal.Status = datatypes.ProposalStatusApproved
		o.mu.Unlock()
		o.logger.Warn("proposal deploying without explicit approval",
			"pipeline_id", id, "risk_score", risk)
	}

	// ---- deploying ----
	o.transition(id, StageDeploying)
	stageStart = time.Now()
	o.mu.Lock()
	approvedProposal := *p.Proposal
	o.mu.Unlock()
	deployment, err := o.deployer.Deploy(ctx, approvedProposal)
	instruments().recordStage(ctx, StageDeploying, time.Since(stageStart).Seconds())
	if o.interrupted(ctx, id, StageDeploying) {
		return
	}
	if err != nil {
		o.failPipeline(ctx, id, StageDeploying, CodeDeploymentFailed, err.Error())
		return
	}

	o.mu.Lock()
	p.Deployment = &deployment
	o.mu.Unlock()
	o.events.Publish(Event{Type: EventDeploymentCompleted, PipelineID: id, ChangeID: change.ID, Payload: deployment})

	if deployment.Status != datatypes.DeploymentStatusSuccess {
		o.failPipeline(ctx, id, StageDeploying, CodeDeploymentFailed, deploymentFailureMessage(deployment))
		return
	}

	o.mu.Lock()
	p.Proposal.Status = datatypes.ProposalStatusDeployed
	p.Change.Status = datatypes.ChangeStatusAdapted
	o.mu.Unlock()

	o.complete(ctx, id)
}

// awaitReview parks the pipeline until a reviewer decides or the
// pipeline is cancelled. The stage timeout is released while parked and
// a fresh deadline is armed on approval. Returns the deployment context
// and true to continue, or false when the pipeline reached a terminal
// state here.
func (o *Orchestrator) awaitReview(ctx context.Context, id string, rs *runState) (context.Context, bool) {
	o.mu.Lock()
	p := o.active[id]
	p.Approval = ApprovalHuman
	p.Proposal.Status = datatypes.ProposalStatusPendingReview
	o.pending[id] = p
	o.mu.Unlock()

	o.transition(id, StageAwaitingReview)

	o.mu.Lock()
	snapshot := p.Clone()
	o.mu.Unlock()
	o.events.Publish(Event{Type: EventApprovalRequired, PipelineID: id,
		ChangeID: snapshot.Change.ID, Payload: snapshot})
	o.logger.Info("pipeline awaiting review", "pipeline_id", id,
		"risk_score", snapshot.Analysis.RiskScore)

	// Release the stage deadline; parked time is not bounded.
	rs.cancel()

	sig := <-rs.resume
	if sig.cancelled {
		o.finishCancelled(context.Background(), id, sig.reason)
		return nil, false
	}

	if !sig.decision.Approved {
		o.mu.Lock()
		p.Proposal.Status = datatypes.ProposalStatusRejected
		p.Proposal.ReviewComments = append(p.Proposal.ReviewComments, sig.decision.Comments...)
		o.mu.Unlock()
		reason := "rejected by reviewer"
		if sig.decision.Reviewer != "" {
			reason = fmt.Sprintf("rejected by %s", sig.decision.Reviewer)
		}
		o.finishCancelled(context.Background(), id, reason)
		return nil, false
	}

	next, cancel := context.WithTimeout(context.Background(), o.cfg.PipelineTimeout)
	o.mu.Lock()
	rs.cancel = cancel
	p.Approval = ApprovalHuman
	p.Proposal.Status = datatypes.ProposalStatusApproved
	p.Proposal.ReviewComments = append(p.Proposal.ReviewComments, sig.decision.Comments...)
	o.stats.HumanApproved++
	o.mu.Unlock()
	o.logger.Info("proposal approved by reviewer", "pipeline_id", id,
		"reviewer", sig.decision.Reviewer)
	return next, true
}

// interrupted checks for timeout or cancellation after a stage call and
// finalizes the pipeline when either occurred.
func (o *Orchestrator) interrupted(ctx context.Context, id string, stage Stage) bool {
	o.mu.Lock()
	rs := o.runs[id]
	cancelRequested := rs != nil && rs.cancelRequested
	var reason string
	if rs != nil {
		reason = rs.cancelReason
	}
	o.mu.Unlock()

	if cancelRequested {
		o.finishCancelled(context.Background(), id, reason)
		return true
	}
	if err := ctx.Err(); err != nil {
		msg := fmt.Sprintf("pipeline timeout after %s", o.cfg.PipelineTimeout)
		if !errors.Is(err, context.DeadlineExceeded) {
			msg = err.Error()
		}
		o.failPipeline(context.Background(), id, stage, CodePipelineFailed, msg)
		return true
	}
	return false
}

// transition advances the pipeline to the next stage and records it in
// the append-only history.
func (o *Orchestrator) transition(id string, stage Stage) {
	o.mu.Lock()
	p, ok := o.active[id]
	if !ok || p.Stage.Terminal() {
		o.mu.Unlock()
		return
	}
	p.Stage = stage
	p.History = append(p.History, StageRecord{Stage: stage, EnteredAt: time.Now()})
	changeID := p.Change.ID
	o.mu.Unlock()

	o.events.Publish(Event{Type: EventStageChanged, PipelineID: id, ChangeID: changeID, Stage: stage})
	o.logger.Debug("stage transition", "pipeline_id", id, "stage", string(stage))
}

// =============================================================================
// Terminal States
// =============================================================================

// failPipeline moves the pipeline to failed, records the error, and
// runs auto-rollback when configured and a rollback-capable deployment
// exists.
func (o *Orchestrator) failPipeline(ctx context.Context, id string, stage Stage, code ErrorCode, msg string) {
	o.mu.Lock()
	p, ok := o.active[id]
	if !ok || p.Stage.Terminal() {
		o.mu.Unlock()
		return
	}
	p.Stage = StageFailed
	p.History = append(p.History, StageRecord{Stage: StageFailed, EnteredAt: time.Now()})
	p.Err = &PipelineError{Code: code, Stage: stage, Message: msg}
	p.FinishedAt = time.Now()
	o.stats.Failed++
	needRollback := o.cfg.AutoRollback && p.Deployment != nil &&
		p.Deployment.RollbackAvailable &&
		p.Deployment.Status != datatypes.DeploymentStatusRolledBack
	o.retireLocked(id, p)
	snapshot := p.Clone()
	o.mu.Unlock()

	instruments().recordFinish(ctx, StageFailed)
	o.events.Publish(Event{Type: EventPipelineFailed, PipelineID: id, ChangeID: snapshot.Change.ID,
		Stage: stage, Payload: snapshot.Err})
	o.logger.Error("pipeline failed", "pipeline_id", id, "stage", string(stage),
		"code", string(code), "error", msg)
	o.persist(snapshot)
	o.propagate(ctx, PropagationAdaptationFailed, snapshot)

	if needRollback {
		if err := o.executeRollback(ctx, id, RollbackTriggerAuto); err != nil {
			o.logger.Error("auto-rollback failed", "pipeline_id", id, "error", err)
		}
	}
}

// finishCancelled moves the pipeline to the cancelled terminal state.
// Both explicit cancellation and reviewer rejection end here; failed is
// reserved for stage errors and timeouts.
func (o *Orchestrator) finishCancelled(ctx context.Context, id string, reason string) {
	o.mu.Lock()
	p, ok := o.active[id]
	if !ok || p.Stage.Terminal() {
		o.mu.Unlock()
		return
	}
	lastStage := p.Stage
	p.Stage = StageCancelled
	p.History = append(p.History, StageRecord{Stage: StageCancelled, EnteredAt: time.Now()})
	if reason == "" {
		reason = "cancelled"
	}
	p.Err = &PipelineError{Code: CodeCancelled, Stage: lastStage, Message: reason}
	p.FinishedAt = time.Now()
	o.stats.Cancelled++
	o.retireLocked(id, p)
	snapshot := p.Clone()
	o.mu.Unlock()

	instruments().recordFinish(ctx, StageCancelled)
	o.events.Publish(Event{Type: EventPipelineFailed, PipelineID: id, ChangeID: snapshot.Change.ID,
		Stage: lastStage, Payload: snapshot.Err})
	o.logger.Info("pipeline cancelled", "pipeline_id", id, "reason", reason)
	o.persist(snapshot)
	o.propagate(ctx, PropagationAdaptationFailed, snapshot)
}

// complete records a successful pipeline and updates the running
// duration average.
func (o *Orchestrator) complete(ctx context.Context, id string) {
	o.mu.Lock()
	p, ok := o.active[id]
	if !ok || p.Stage.Terminal() {
		o.mu.Unlock()
		return
	}
	p.Stage = StageCompleted
	p.History = append(p.History, StageRecord{Stage: StageCompleted, EnteredAt: time.Now()})
	p.FinishedAt = time.Now()
	o.stats.Completed++
	o.durTotal += p.FinishedAt.Sub(p.CreatedAt)
	o.stats.AvgDuration = o.durTotal / time.Duration(o.stats.Completed)
	o.retireLocked(id, p)
	snapshot := p.Clone()
	o.mu.Unlock()

	instruments().recordFinish(ctx, StageCompleted)
	o.events.Publish(Event{Type: EventPipelineCompleted, PipelineID: id, ChangeID: snapshot.Change.ID,
		Stage: StageCompleted, Payload: snapshot})
	o.logger.Info("pipeline completed", "pipeline_id", id,
		"duration", snapshot.FinishedAt.Sub(snapshot.CreatedAt).String(),
		"approval", string(snapshot.Approval))
	o.persist(snapshot)
	o.propagate(ctx, PropagationAdaptationCompleted, snapshot)
}

// retireLocked moves a pipeline out of the active set. Caller holds the
// lock.
func (o *Orchestrator) retireLocked(id string, p *Pipeline) {
	delete(o.active, id)
	delete(o.pending, id)
	delete(o.runs, id)
	o.completed = append(o.completed, p)
}

// =============================================================================
// Review, Cancellation, Rollback
// =============================================================================

// SubmitReview delivers a reviewer decision to a pipeline parked in
// awaiting_review. Approval resumes the pipeline at the deploying
// stage; rejection moves it to the cancelled terminal state. Returns
// ErrNotAwaitingReview when the pipeline exists but is not parked.
func (o *Orchestrator) SubmitReview(ctx context.Context, id string, decision datatypes.ReviewDecision) error {
	o.mu.Lock()
	if _, parked := o.pending[id]; !parked {
		_, isActive := o.active[id]
		o.mu.Unlock()
		if isActive || o.findCompleted(id) != nil {
			return ErrNotAwaitingReview
		}
		return ErrPipelineNotFound
	}
	rs := o.runs[id]
	delete(o.pending, id)
	o.mu.Unlock()

	select {
	case rs.resume <- reviewSignal{decision: decision}:
	default:
		// The buffered channel only fills when a cancel signal raced
		// ahead; the cancellation wins.
		return ErrNotAwaitingReview
	}
	return nil
}

// Cancel requests cancellation of an active pipeline. In-flight stage
// calls are aborted via their context; a parked pipeline is woken and
// finalized. Terminal pipelines return ErrPipelineFinished.
func (o *Orchestrator) Cancel(ctx context.Context, id string, reason string) error {
	o.mu.Lock()
	_, ok := o.active[id]
	if !ok {
		o.mu.Unlock()
		if o.findCompleted(id) != nil {
			return ErrPipelineFinished
		}
		return ErrPipelineNotFound
	}
	rs := o.runs[id]
	rs.cancelRequested = true
	rs.cancelReason = reason
	delete(o.pending, id)
	cancel := rs.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case rs.resume <- reviewSignal{cancelled: true, reason: reason}:
	default:
	}
	return nil
}

// Rollback reverts a pipeline's deployment. The deployment must exist
// and have reported rollback availability.
func (o *Orchestrator) Rollback(ctx context.Context, id string) error {
	return o.executeRollback(ctx, id, RollbackTriggerManual)
}

func (o *Orchestrator) executeRollback(ctx context.Context, id string, trigger string) error {
	o.mu.Lock()
	p := o.findAny(id)
	if p == nil {
		o.mu.Unlock()
		return ErrPipelineNotFound
	}
	if p.Deployment == nil || !p.Deployment.RollbackAvailable ||
		p.Deployment.Status == datatypes.DeploymentStatusRolledBack {
		o.mu.Unlock()
		return ErrRollbackUnavailable
	}
	proposal := *p.Proposal
	deployment := *p.Deployment
	o.mu.Unlock()

	ctx, span := tracer.Start(ctx, "pipeline.rollback", trace.WithAttributes(
		attribute.String("pipeline.id", id),
		attribute.String("proposal.id", proposal.ID),
	))
	defer span.End()

	if err := o.deployer.Rollback(ctx, proposal, deployment); err != nil {
		return fmt.Errorf("rollback of proposal %s: %w", proposal.ID, err)
	}

	o.mu.Lock()
	if p := o.findAny(id); p != nil {
		p.Deployment.Status = datatypes.DeploymentStatusRolledBack
		p.Proposal.Status = datatypes.ProposalStatusRolledBack
		o.stats.RolledBack++
	}
	o.mu.Unlock()

	o.logger.Info("deployment rolled back", "pipeline_id", id,
		"proposal_id", proposal.ID, "trigger", trigger)
	o.events.Publish(Event{Type: EventRollbackExecuted, PipelineID: id, Payload: trigger})
	o.propagate(ctx, PropagationRollbackExecuted, map[string]string{
		"pipeline_id": id,
		"proposal_id": proposal.ID,
		"trigger":     trigger,
	})
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// GetPipeline returns a snapshot of any known pipeline, active or
// finished.
func (o *Orchestrator) GetPipeline(id string) (Pipeline, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if p := o.findAny(id); p != nil {
		return p.Clone(), true
	}
	return Pipeline{}, false
}

// GetActivePipelines returns snapshots of all in-flight pipelines,
// oldest first.
func (o *Orchestrator) GetActivePipelines() []Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Pipeline, 0, len(o.active))
	for _, p := range o.active {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetPendingApprovals returns snapshots of pipelines parked for human
// review, oldest first.
func (o *Orchestrator) GetPendingApprovals() []Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Pipeline, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetCompletedPipelines returns snapshots of finished pipelines in
// completion order, including failed and cancelled ones.
func (o *Orchestrator) GetCompletedPipelines() []Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Pipeline, 0, len(o.completed))
	for _, p := range o.completed {
		out = append(out, p.Clone())
	}
	return out
}

// GetStatistics returns the aggregate counters.
func (o *Orchestrator) GetStatistics() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := o.stats
	stats.Active = len(o.active)
	return stats
}

// findAny looks a pipeline up in the active set, then the completed
// list. Caller holds the lock.
func (o *Orchestrator) findAny(id string) *Pipeline {
	if p, ok := o.active[id]; ok {
		return p
	}
	return o.findCompleted(id)
}

// findCompleted scans the completed list. Caller holds the lock.
func (o *Orchestrator) findCompleted(id string) *Pipeline {
	for _, p := range o.completed {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) persist(p Pipeline) {
	if o.store == nil {
		return
	}
	if err := o.store.SavePipeline(context.Background(), p); err != nil {
		o.logger.Error("failed to persist pipeline", "pipeline_id", p.ID, "error", err)
	}
}

func (o *Orchestrator) propagate(ctx context.Context, event string, payload any) {
	if o.propagator == nil {
		return
	}
	if _, err := o.propagator.Propagate(ctx, event, payload); err != nil {
		o.logger.Warn("failed to propagate pipeline outcome", "event", event, "error", err)
	}
}

func generationFailureMessage(errs []GenerationError) string {
	if len(errs) == 0 {
		return "generator reported failure without detail"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}

func deploymentFailureMessage(d datatypes.DeploymentResult) string {
	for _, s := range d.Stages {
		if s.State == datatypes.StageStateFailed {
			return fmt.Sprintf("deployment stage %s failed: %s", s.Name, s.Error)
		}
	}
	return fmt.Sprintf("deployment finished with status %s", d.Status)
}

func countBlocking(issues []datatypes.ValidationIssue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == datatypes.IssueSeverityError {
			n++
		}
	}
	return n
}
