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
)

// Color is an RGB colour with channels in [0,1].
type Color struct {
	R, G, B float64
}

// Ramp stops. Every channel moves by at most 0.9 of its range over each
// half of the input, so a 0.01 step in confidence never moves a channel by
// more than 1% of its range. Red is non-increasing and green non-decreasing
// along the whole ramp.
var (
	rampRed    = Color{R: 0.95, G: 0.25, B: 0.20}
	rampYellow = Color{R: 0.95, G: 0.70, B: 0.20}
	rampGreen  = Color{R: 0.50, G: 0.80, B: 0.20}
)

// ColorFromConfidence maps c ∈ [0,1] onto a continuous red → yellow →
// green ramp. Inputs outside [0,1] or NaN are clamped first.
func ColorFromConfidence(c float64) Color {
	c = clamp01(c)
	if c <= 0.5 {
		return lerp(rampRed, rampYellow, c/0.5)
	}
	return lerp(rampYellow, rampGreen, (c-0.5)/0.5)
}

func lerp(a, b Color, t float64) Color {
	return Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
	}
}

// RGB8 returns the colour as 8-bit channels.
func (c Color) RGB8() (r, g, b uint8) {
	return to8(c.R), to8(c.G), to8(c.B)
}

// Hex returns the colour as "#rrggbb".
func (c Color) Hex() string {
	r, g, b := c.RGB8()
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// Distance returns the largest per-channel difference between c and o.
func (c Color) Distance(o Color) float64 {
	return math.Max(math.Abs(c.R-o.R), math.Max(math.Abs(c.G-o.G), math.Abs(c.B-o.B)))
}

func to8(x float64) uint8 {
	return uint8(math.Round(clamp01(x) * 255))
}
