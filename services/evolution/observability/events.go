// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"time"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/pipeline"
)

// ObservePipeline consumes an orchestrator event stream and mirrors it
// into the service metrics: in-flight and pending-review gauges,
// outcome counters with durations, approval modes, risk scores, pattern
// matches, and rollbacks.
//
// Run it in its own goroutine with a dedicated subscription; it returns
// when the channel closes. Durations are measured between the
// pipeline-created and terminal event timestamps, so a pipeline whose
// creation event was dropped records a zero duration rather than none.
func (m *EvolutionMetrics) ObservePipeline(events <-chan pipeline.Event) {
	started := make(map[string]time.Time)
	parked := make(map[string]bool)

	for evt := range events {
		switch evt.Type {
		case pipeline.EventPipelineCreated:
			m.PipelineStarted()
			started[evt.PipelineID] = evt.Timestamp

		case pipeline.EventAnalysisCompleted:
			ar, ok := evt.Payload.(*pipeline.AnalysisResult)
			if !ok || ar == nil {
				continue
			}
			m.RecordRiskScore(ar.RiskScore)
			for _, match := range ar.Matches {
				m.RecordPatternMatch(match.PatternID)
			}

		case pipeline.EventApprovalRequired:
			m.ReviewParked()
			parked[evt.PipelineID] = true

		case pipeline.EventRollbackExecuted:
			trigger, _ := evt.Payload.(string)
			m.RecordRollback(trigger == pipeline.RollbackTriggerAuto)

		case pipeline.EventPipelineCompleted, pipeline.EventPipelineFailed:
			outcome := "completed"
			if evt.Type == pipeline.EventPipelineFailed {
				outcome = "failed"
				if perr, ok := evt.Payload.(*pipeline.PipelineError); ok &&
					perr != nil && perr.Code == pipeline.CodeCancelled {
					outcome = "cancelled"
				}
			}

			var seconds float64
			if createdAt, ok := started[evt.PipelineID]; ok {
				seconds = evt.Timestamp.Sub(createdAt).Seconds()
				delete(started, evt.PipelineID)
			}
			m.PipelineFinished(outcome, seconds)

			if parked[evt.PipelineID] {
				m.ReviewResolved()
				delete(parked, evt.PipelineID)
			}
			if evt.Type == pipeline.EventPipelineCompleted {
				if snap, ok := evt.Payload.(pipeline.Pipeline); ok &&
					snap.Approval != pipeline.ApprovalNone {
					m.RecordApproval(string(snap.Approval))
				}
			}
		}
	}
}
