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
	"time"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/bayes"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
)

// Score is the confidence of one code unit.
type Score struct {
	Unit      evidence.Unit `json:"unit"`
	Developer string        `json:"developer,omitempty"`
	Module    string        `json:"module"`

	// Overall is CVaR over Criteria. Always in [0,1].
	Overall float64 `json:"overall"`

	// Criteria holds each criterion after the ML cap.
	Criteria aggregate.Criteria `json:"criteria"`

	// Posterior holds each criterion's Bayesian posterior before the ML
	// cap.
	Posterior aggregate.Criteria `json:"posterior"`

	// MLShare is the realized ML weight share per criterion, present only
	// for criteria with ML-derived evidence.
	MLShare map[aggregate.Criterion]float64 `json:"ml_share,omitempty"`

	// Provenance lists every evidence record after mutation validation.
	Provenance []evidence.Record `json:"provenance"`

	// Degraded marks criteria that relied on a cached or missing source.
	Degraded map[aggregate.Criterion]bool `json:"degraded,omitempty"`

	// Method is the inference algorithm that produced Posterior.
	Method bayes.Method `json:"-"`

	ComputedAt time.Time `json:"computed_at"`
}

// Color is the gutter colour for the score.
func (s Score) Color() aggregate.Color { return aggregate.ColorFromConfidence(s.Overall) }

// Band is the triage band for the score.
func (s Score) Band() aggregate.Band { return aggregate.BandOf(s.Overall) }

// IsDegraded reports whether any criterion is degraded.
func (s Score) IsDegraded() bool {
	for _, d := range s.Degraded {
		if d {
			return true
		}
	}
	return false
}
