// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package immune

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	auditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_audit_entries_total",
		Help: "Audit entries appended to the hash chain",
	})

	auditVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confidence_audit_verifications_total",
		Help: "Audit chain verifications by result",
	}, []string{"result"})

	poisoningTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_feedback_poisoning_total",
		Help: "Feedback streams suspended for poisoning",
	})

	rejectedFeedbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_feedback_rejected_total",
		Help: "Feedback actions rejected because the stream is suspended",
	})

	mutationDowngradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_mutation_downgrades_total",
		Help: "Proven test criteria downgraded for a low mutation-kill rate",
	})

	mlCapAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_ml_cap_applied_total",
		Help: "Aggregations where ML-derived weight was reduced to the cap",
	})

	staleScoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confidence_stale_scores_total",
		Help: "Scores found older than the re-verification age",
	})
)
