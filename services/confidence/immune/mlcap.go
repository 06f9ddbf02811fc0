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
	"math"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
)

// DefaultMLCap is the largest share of aggregation weight ML-derived
// evidence may hold.
const DefaultMLCap = 0.25

// MLCap bounds the influence of ML-derived evidence.
type MLCap struct {
	// Share is the cap in [0,1).
	Share float64
}

// NewMLCap returns a cap of share, or DefaultMLCap when share is outside
// [0,1).
func NewMLCap(share float64) MLCap {
	if math.IsNaN(share) || share < 0 || share >= 1 {
		share = DefaultMLCap
	}
	return MLCap{Share: share}
}

// CapResult describes one capped blend.
type CapResult struct {
	// Value is the blended criterion value in [0,1].
	Value float64

	// MLShare is the realized fraction of weight held by ML evidence.
	MLShare float64

	// Capped is true when ML weight had to be scaled down.
	Capped bool
}

// Apply blends a non-ML anchor with ML-derived contributions so that the
// ML contributions hold at most Share of the total weight.
//
// # Inputs
//
//   - anchor: The non-ML value and weight. For criteria this is the
//     Bayesian posterior, which exists even without evidence.
//   - ml: ML-derived contributions. Weights are scaled down together when
//     they exceed the cap, preserving their relative proportions.
//
// # Outputs
//
//   - CapResult: The blended value and realized ML share.
func (c MLCap) Apply(anchor aggregate.Weighted, ml ...aggregate.Weighted) CapResult {
	if anchor.Weight <= 0 || math.IsNaN(anchor.Weight) {
		anchor.Weight = 1
	}

	var wm float64
	for _, m := range ml {
		if m.Weight > 0 {
			wm += m.Weight
		}
	}
	if wm == 0 {
		return CapResult{Value: clamp01(anchor.Value)}
	}

	limit := c.Share / (1 - c.Share) * anchor.Weight
	scale, capped := 1.0, false
	if wm > limit {
		scale, capped = limit/wm, true
		mlCapAppliedTotal.Inc()
	}

	parts := make([]aggregate.Weighted, 0, len(ml)+1)
	parts = append(parts, anchor)
	for _, m := range ml {
		parts = append(parts, aggregate.Weighted{Value: m.Value, Weight: m.Weight * scale})
	}
	v, _ := aggregate.Blend(parts...)

	wmEff := wm * scale
	return CapResult{
		Value:   v,
		MLShare: wmEff / (wmEff + anchor.Weight),
		Capped:  capped,
	}
}
