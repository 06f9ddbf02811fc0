// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confidence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.confidence")
	meter  = otel.Meter("aleutian.confidence")
)

var (
	scoresTotal  metric.Int64Counter
	scoreLatency metric.Float64Histogram
	gatesTotal   metric.Int64Counter
	overallHist  metric.Float64Histogram
	metricsOnce  sync.Once
	metricsErr   error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scoresTotal, err = meter.Int64Counter(
			"confidence_scores_total",
			metric.WithDescription("Committed unit scores, by cause"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scoreLatency, err = meter.Float64Histogram(
			"confidence_score_duration_seconds",
			metric.WithDescription("Time to collect evidence, infer and aggregate one unit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		overallHist, err = meter.Float64Histogram(
			"confidence_overall",
			metric.WithDescription("Distribution of overall unit confidence"),
			metric.WithExplicitBucketBoundaries(0.1, 0.3, 0.5, 0.6, 0.7, 0.85, 0.95, 1),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gatesTotal, err = meter.Int64Counter(
			"confidence_gate_decisions_total",
			metric.WithDescription("Ship gate decisions, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordScore(ctx context.Context, cause string, overall float64, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cause", cause))
	scoresTotal.Add(ctx, 1, attrs)
	scoreLatency.Record(ctx, d.Seconds(), attrs)
	overallHist.Record(ctx, overall)
}

func recordGate(ctx context.Context, pass bool) {
	if err := initMetrics(); err != nil {
		return
	}
	gatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("pass", pass)))
}
