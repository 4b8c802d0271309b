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
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// =============================================================================
// Instruments
// =============================================================================

var (
	instrumentsOnce sync.Once
	instrumentsInst *pipelineInstruments
)

// pipelineInstruments holds the OTel metric instruments for the
// orchestrator. Instruments are created lazily on first use; creation
// failures degrade to no-op recording rather than failing the pipeline.
type pipelineInstruments struct {
	started      metric.Int64Counter
	finished     metric.Int64Counter
	rejected     metric.Int64Counter
	active       metric.Int64UpDownCounter
	stageSeconds metric.Float64Histogram
}

func instruments() *pipelineInstruments {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("evolve.pipeline")
		inst := &pipelineInstruments{}
		var err error

		if inst.started, err = meter.Int64Counter("evolve.pipelines.started",
			metric.WithDescription("Pipelines admitted and started")); err != nil {
			slog.Warn("failed to create pipeline started counter", "error", err)
		}
		if inst.finished, err = meter.Int64Counter("evolve.pipelines.finished",
			metric.WithDescription("Pipelines finished, by outcome")); err != nil {
			slog.Warn("failed to create pipeline finished counter", "error", err)
		}
		if inst.rejected, err = meter.Int64Counter("evolve.pipelines.rejected",
			metric.WithDescription("Changes rejected at the concurrency cap")); err != nil {
			slog.Warn("failed to create pipeline rejected counter", "error", err)
		}
		if inst.active, err = meter.Int64UpDownCounter("evolve.pipelines.active",
			metric.WithDescription("Currently active pipelines")); err != nil {
			slog.Warn("failed to create active pipelines counter", "error", err)
		}
		if inst.stageSeconds, err = meter.Float64Histogram("evolve.pipeline.stage.duration",
			metric.WithDescription("Stage duration in seconds"),
			metric.WithUnit("s")); err != nil {
			slog.Warn("failed to create stage duration histogram", "error", err)
		}

		instrumentsInst = inst
	})
	return instrumentsInst
}

func (i *pipelineInstruments) recordStart(ctx context.Context) {
	if i == nil {
		return
	}
	if i.started != nil {
		i.started.Add(ctx, 1)
	}
	if i.active != nil {
		i.active.Add(ctx, 1)
	}
}

func (i *pipelineInstruments) recordRejected(ctx context.Context) {
	if i == nil || i.rejected == nil {
		return
	}
	i.rejected.Add(ctx, 1)
}

func (i *pipelineInstruments) recordFinish(ctx context.Context, outcome Stage) {
	if i == nil {
		return
	}
	if i.finished != nil {
		i.finished.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", string(outcome))))
	}
	if i.active != nil {
		i.active.Add(ctx, -1)
	}
}

func (i *pipelineInstruments) recordStage(ctx context.Context, stage Stage, seconds float64) {
	if i == nil || i.stageSeconds == nil {
		return
	}
	i.stageSeconds.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", string(stage))))
}
