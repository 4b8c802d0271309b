// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the evolution
// service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring adaptation
// pipelines. Metrics include:
//   - Change counters (by source and change type)
//   - Pipeline outcome counters and duration histograms
//   - Approval counters (by mode) and pending-review gauges
//   - Pattern match counters and risk score histograms
//   - Propagation delivery counters
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for evolution metrics
const evolutionSubsystem = "evolution"

// EvolutionMetrics holds all Prometheus metrics for the adaptation
// pipeline.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring pipeline
// throughput and outcomes. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type EvolutionMetrics struct {
	// ChangesTotal counts detected upstream changes.
	// Labels: source, change_type (version_bump, api_change, ...)
	ChangesTotal *prometheus.CounterVec

	// PipelinesTotal counts finished pipelines by outcome.
	// Labels: outcome (completed, failed, cancelled)
	PipelinesTotal *prometheus.CounterVec

	// PipelineDurationSeconds measures submission-to-terminal duration.
	// Labels: outcome (completed, failed, cancelled)
	PipelineDurationSeconds *prometheus.HistogramVec

	// ActivePipelines tracks pipelines currently in flight.
	ActivePipelines prometheus.Gauge

	// PendingApprovals tracks pipelines parked awaiting human review.
	PendingApprovals prometheus.Gauge

	// ApprovalsTotal counts gating decisions by mode.
	// Labels: mode (auto, human, caution)
	ApprovalsTotal *prometheus.CounterVec

	// PatternMatchesTotal counts registry pattern matches.
	// Labels: pattern_id
	PatternMatchesTotal *prometheus.CounterVec

	// RiskScore observes the composite risk score of analyzed changes.
	RiskScore prometheus.Histogram

	// RollbacksTotal counts executed rollbacks.
	// Labels: trigger (auto, manual)
	RollbacksTotal *prometheus.CounterVec

	// PropagationsTotal counts propagated messages by channel and result.
	// Labels: channel (broadcast, targeted, event-driven), result (sent, expired, failed, evicted)
	PropagationsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of EvolutionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *EvolutionMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after Prometheus registry is available.
//
// # Outputs
//
//   - *EvolutionMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *EvolutionMetrics {
	DefaultMetrics = &EvolutionMetrics{
		ChangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "changes_total",
				Help:      "Total detected upstream changes by source and type",
			},
			[]string{"source", "change_type"},
		),

		PipelinesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "pipelines_total",
				Help:      "Total finished pipelines by outcome",
			},
			[]string{"outcome"},
		),

		PipelineDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "pipeline_duration_seconds",
				Help:      "Pipeline duration from submission to terminal stage",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"outcome"},
		),

		ActivePipelines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "active_pipelines",
				Help:      "Number of pipelines currently in flight",
			},
		),

		PendingApprovals: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "pending_approvals",
				Help:      "Number of pipelines parked awaiting human review",
			},
		),

		ApprovalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "approvals_total",
				Help:      "Total gating decisions by approval mode",
			},
			[]string{"mode"},
		),

		PatternMatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "pattern_matches_total",
				Help:      "Total adaptation pattern matches by pattern",
			},
			[]string{"pattern_id"},
		),

		RiskScore: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "risk_score",
				Help:      "Composite risk score of analyzed changes",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.5, 0.7, 0.8, 0.9, 1.0},
			},
		),

		RollbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "rollbacks_total",
				Help:      "Total executed deployment rollbacks by trigger",
			},
			[]string{"trigger"},
		),

		PropagationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: evolutionSubsystem,
				Name:      "propagations_total",
				Help:      "Total propagated messages by channel and delivery result",
			},
			[]string{"channel", "result"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordChange records a detected upstream change.
func (m *EvolutionMetrics) RecordChange(source, changeType string) {
	m.ChangesTotal.WithLabelValues(source, changeType).Inc()
}

// PipelineStarted increments the in-flight gauge.
func (m *EvolutionMetrics) PipelineStarted() {
	m.ActivePipelines.Inc()
}

// PipelineFinished records a terminal pipeline and its duration.
//
// # Inputs
//
//   - outcome: completed, failed, or cancelled.
//   - seconds: Duration from submission to the terminal stage.
func (m *EvolutionMetrics) PipelineFinished(outcome string, seconds float64) {
	m.ActivePipelines.Dec()
	m.PipelinesTotal.WithLabelValues(outcome).Inc()
	m.PipelineDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordApproval records a gating decision.
func (m *EvolutionMetrics) RecordApproval(mode string) {
	m.ApprovalsTotal.WithLabelValues(mode).Inc()
}

// ReviewParked increments the pending-review gauge.
func (m *EvolutionMetrics) ReviewParked() {
	m.PendingApprovals.Inc()
}

// ReviewResolved decrements the pending-review gauge.
func (m *EvolutionMetrics) ReviewResolved() {
	m.PendingApprovals.Dec()
}

// RecordPatternMatch records one registry pattern match.
func (m *EvolutionMetrics) RecordPatternMatch(patternID string) {
	m.PatternMatchesTotal.WithLabelValues(patternID).Inc()
}

// RecordRiskScore observes a composite risk score.
func (m *EvolutionMetrics) RecordRiskScore(score float64) {
	m.RiskScore.Observe(score)
}

// RecordRollback records an executed rollback.
//
// # Inputs
//
//   - auto: true for policy-triggered rollbacks, false for operator-requested.
func (m *EvolutionMetrics) RecordRollback(auto bool) {
	trigger := "manual"
	if auto {
		trigger = "auto"
	}
	m.RollbacksTotal.WithLabelValues(trigger).Inc()
}

// RecordPropagation records a message delivery result.
func (m *EvolutionMetrics) RecordPropagation(channel, result string) {
	m.PropagationsTotal.WithLabelValues(channel, result).Inc()
}
