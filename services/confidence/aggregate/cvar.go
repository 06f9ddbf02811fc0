// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"fmt"
	"math"
	"sort"
)

// DefaultAlpha is the CVaR confidence level used for units and files.
const DefaultAlpha = 0.95

// tailEpsilon absorbs float error in n·(1-α) so that 6·0.05 rounds up to 1,
// not 2.
const tailEpsilon = 1e-9

// TailSize returns how many of the worst values CVaR averages for n values
// at level alpha. Always at least 1 when n > 0.
func TailSize(n int, alpha float64) int {
	if n <= 0 {
		return 0
	}
	alpha = clamp01(alpha)
	k := int(math.Ceil(float64(n)*(1-alpha) - tailEpsilon))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// CVaR returns the mean of the worst (1-alpha) tail of values.
//
// # Inputs
//
//   - values: Scores in [0,1]. Out-of-range or NaN entries are clamped.
//     The slice is not modified.
//   - alpha: Confidence level in [0,1]. Clamped.
//
// # Outputs
//
//   - float64: The tail mean, in [0,1].
//   - error: ErrNoValues if values is empty.
func CVaR(values []float64, alpha float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoValues
	}
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = clamp01(v)
	}
	sort.Float64s(sorted)

	k := TailSize(len(sorted), alpha)
	sum := 0.0
	for _, v := range sorted[:k] {
		sum += v
	}
	return clamp01(sum / float64(k)), nil
}

// Aggregate returns CVaR₀.₉₅ over the six criteria.
func Aggregate(c Criteria) float64 {
	v, _ := CVaR(c.Values(), DefaultAlpha)
	return v
}

// AggregateFile applies the same tail rule one level up, over the overall
// scores of a file's lines, so a file badge is dominated by its worst lines.
func AggregateFile(lineScores []float64) (float64, error) {
	v, err := CVaR(lineScores, DefaultAlpha)
	if err != nil {
		return 0, fmt.Errorf("aggregate file: %w", err)
	}
	return v, nil
}

// Weighted is one contribution to a Blend.
type Weighted struct {
	Value  float64
	Weight float64
}

// Blend returns the weighted mean of parts. Parts with non-positive or NaN
// weight are ignored. The second return is false if no weight remained.
func Blend(parts ...Weighted) (float64, bool) {
	var num, den float64
	for _, p := range parts {
		if math.IsNaN(p.Weight) || p.Weight <= 0 {
			continue
		}
		num += clamp01(p.Value) * p.Weight
		den += p.Weight
	}
	if den == 0 {
		return 0, false
	}
	return clamp01(num / den), true
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
