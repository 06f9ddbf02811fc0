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

import "math"

// DefaultKillRateThreshold is the minimum mutation-kill rate at which a
// passing test suite is trusted as proof.
const DefaultKillRateThreshold = 0.7

// MutationValidator gates proven test-runner evidence on mutation testing.
type MutationValidator struct {
	// Threshold is the minimum kill rate in [0,1].
	Threshold float64
}

// NewMutationValidator returns a validator with the given threshold, or
// DefaultKillRateThreshold when threshold is outside (0,1].
func NewMutationValidator(threshold float64) MutationValidator {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		threshold = DefaultKillRateThreshold
	}
	return MutationValidator{Threshold: threshold}
}

// Verdict is the outcome of validating a test-derived criterion.
type Verdict struct {
	// Value is the criterion value to use.
	Value float64

	// Downgraded is true when the value was scaled by the kill rate; the
	// criterion must then be treated as estimated rather than proven.
	Downgraded bool
}

// Validate checks a proven value reported by a test runner against the
// suite's mutation-kill rate. An unmeasured (NaN) kill rate counts as 0.
func (m MutationValidator) Validate(value, killRate float64) Verdict {
	value = clamp01(value)
	killRate = clamp01(killRate)
	if killRate >= m.Threshold {
		return Verdict{Value: value}
	}
	mutationDowngradesTotal.Inc()
	return Verdict{Value: clamp01(value * killRate), Downgraded: true}
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
