// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.confidence.feedback")

var (
	updatesTotal  metric.Int64Counter
	rejectedTotal metric.Int64Counter
	metricsOnce   sync.Once
	metricsErr    error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		updatesTotal, err = meter.Int64Counter(
			"confidence_feedback_updates_total",
			metric.WithDescription("Prior updates applied, by action"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		rejectedTotal, err = meter.Int64Counter(
			"confidence_feedback_suspended_total",
			metric.WithDescription("Actions dropped because the stream is suspended"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}
