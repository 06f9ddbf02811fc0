// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.confidence.propagate")
	meter  = otel.Meter("aleutian.confidence.propagate")
)

var (
	sweepLatency metric.Float64Histogram
	nodesTouched metric.Int64Histogram
	droppedEdges metric.Int64Counter
	refreshTotal metric.Int64Counter
	batchLatency metric.Float64Histogram
	metricsOnce  sync.Once
	metricsErr   error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sweepLatency, err = meter.Float64Histogram(
			"confidence_propagation_sweep_duration_seconds",
			metric.WithDescription("Duration of a single propagation sweep"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesTouched, err = meter.Int64Histogram(
			"confidence_propagation_nodes_touched",
			metric.WithDescription("Scores written per sweep"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		droppedEdges, err = meter.Int64Counter(
			"confidence_propagation_dropped_edges_total",
			metric.WithDescription("Malformed dependency edges dropped"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		refreshTotal, err = meter.Int64Counter(
			"confidence_propagation_refresh_total",
			metric.WithDescription("Graph refreshes from static-analysis snapshots"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchLatency, err = meter.Float64Histogram(
			"confidence_propagation_batch_duration_seconds",
			metric.WithDescription("Duration of batched propagation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSweep(ctx context.Context, span trace.Span, sw Sweep, d time.Duration) {
	span.SetAttributes(
		attribute.String("propagate.origin", sw.Origin),
		attribute.Float64("propagate.delta", sw.Delta),
		attribute.Int("propagate.updates", len(sw.Updates)),
		attribute.Int("propagate.depth", sw.Depth),
	)
	if err := initMetrics(); err != nil {
		return
	}
	sweepLatency.Record(ctx, d.Seconds())
	nodesTouched.Record(ctx, int64(len(sw.Updates)))
}

func recordBatch(ctx context.Context, span trace.Span, changes, components int, d time.Duration) {
	span.SetAttributes(
		attribute.Int("propagate.changes", changes),
		attribute.Int("propagate.components", components),
	)
	if err := initMetrics(); err != nil {
		return
	}
	batchLatency.Record(ctx, d.Seconds())
}

func recordDroppedEdge() {
	if err := initMetrics(); err != nil {
		return
	}
	droppedEdges.Add(context.Background(), 1)
}

func recordRefresh(ctx context.Context, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	refreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
}
