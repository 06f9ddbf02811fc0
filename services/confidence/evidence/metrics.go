// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.confidence.evidence")
	meter  = otel.Meter("aleutian.confidence.evidence")
)

var (
	fetchLatency metric.Float64Histogram
	fetchTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchLatency, err = meter.Float64Histogram(
			"confidence_evidence_fetch_duration_seconds",
			metric.WithDescription("Duration of evidence source calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchTotal, err = meter.Int64Counter(
			"confidence_evidence_fetch_total",
			metric.WithDescription("Evidence source calls by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordFetch(ctx context.Context, source, outcome string, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	)
	fetchLatency.Record(ctx, d.Seconds(), attrs)
	fetchTotal.Add(ctx, 1, attrs)
}
