// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bayes

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for inference operations.
var (
	tracer = otel.Tracer("aleutian.confidence.bayes")
	meter  = otel.Meter("aleutian.confidence.bayes")
)

// Metrics for inference operations.
var (
	inferLatency metric.Float64Histogram
	inferTotal   metric.Int64Counter
	fallbacks    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		inferLatency, err = meter.Float64Histogram(
			"confidence_inference_duration_seconds",
			metric.WithDescription("Duration of Bayesian network inference"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		inferTotal, err = meter.Int64Counter(
			"confidence_inference_total",
			metric.WithDescription("Total number of inference calls"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fallbacks, err = meter.Int64Counter(
			"confidence_inference_junction_tree_fallbacks_total",
			metric.WithDescription("Belief propagation runs that fell back to the junction tree"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startInferSpan creates a span for one inference call.
func startInferSpan(ctx context.Context, targets int) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, "bayes.Engine.Infer",
		trace.WithAttributes(attribute.Int("bayes.targets", targets)),
	)
}

// setInferSpanResult sets the result attributes on an inference span.
func setInferSpanResult(span trace.Span, method Method, iterations int, fellBack bool, err error) {
	span.SetAttributes(
		attribute.String("bayes.method", method.String()),
		attribute.Int("bayes.iterations", iterations),
		attribute.Bool("bayes.fell_back", fellBack),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// recordInferMetrics records metrics for one inference call.
func recordInferMetrics(ctx context.Context, duration time.Duration, method Method, fellBack, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method.String()),
		attribute.Bool("success", success),
	)
	inferLatency.Record(ctx, duration.Seconds(), attrs)
	inferTotal.Add(ctx, 1, attrs)
	if fellBack {
		fallbacks.Add(ctx, 1)
	}
}
