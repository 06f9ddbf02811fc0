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

// Band is a coarse triage label derived from an aggregated score. It is
// used for sorting and filtering files, never in place of the colour ramp.
type Band string

const (
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
	BandCritical Band = "critical"
)

// Band thresholds, inclusive lower bounds.
const (
	HighThreshold   = 0.85
	MediumThreshold = 0.60
	LowThreshold    = 0.30
)

// BandOf returns the triage band for score c.
func BandOf(c float64) Band {
	c = clamp01(c)
	switch {
	case c >= HighThreshold:
		return BandHigh
	case c >= MediumThreshold:
		return BandMedium
	case c >= LowThreshold:
		return BandLow
	default:
		return BandCritical
	}
}

// Rank orders bands from worst (0) to best (3).
func (b Band) Rank() int {
	switch b {
	case BandCritical:
		return 0
	case BandLow:
		return 1
	case BandMedium:
		return 2
	default:
		return 3
	}
}
