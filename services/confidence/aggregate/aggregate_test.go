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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailSize(t *testing.T) {
	tests := []struct {
		n     int
		alpha float64
		want  int
	}{
		{0, 0.95, 0},
		{1, 0.95, 1},
		{6, 0.95, 1},
		{20, 0.95, 1},
		{21, 0.95, 2},
		{100, 0.95, 5},
		{10, 0.5, 5},
		{4, 0, 4},
		{4, 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TailSize(tt.n, tt.alpha), "n=%d alpha=%v", tt.n, tt.alpha)
	}
}

func TestAggregate_TailRiskDominance(t *testing.T) {
	assert.Equal(t, 1.0, Aggregate(Uniform(1)))

	oneBad := Uniform(1)
	oneBad.Security = 0
	assert.Less(t, Aggregate(oneBad), 0.5)
	assert.Equal(t, 0.0, Aggregate(oneBad))

	mixed := Criteria{Syntax: 1, TypeSafety: 1, Lint: 0.9, Runtime: 0.7, Behavior: 0.8, Security: 0.6}
	assert.InDelta(t, 0.6, Aggregate(mixed), 1e-12)
}

func TestCVaR(t *testing.T) {
	_, err := CVaR(nil, DefaultAlpha)
	assert.ErrorIs(t, err, ErrNoValues)

	in := []float64{0.9, 0.1, 0.5, 0.3}
	v, err := CVaR(in, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-12)
	assert.Equal(t, []float64{0.9, 0.1, 0.5, 0.3}, in, "input must not be reordered")

	v, err = CVaR([]float64{-3, math.NaN(), 2}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, v, 1e-12)
}

func TestAggregateFile_WorstLinesDominate(t *testing.T) {
	lines := make([]float64, 40)
	for i := range lines {
		lines[i] = 1
	}
	lines[7], lines[30] = 0.2, 0.4

	v, err := AggregateFile(lines)
	require.NoError(t, err)
	// 40 lines at α=0.95 averages the worst two.
	assert.InDelta(t, 0.3, v, 1e-12)

	_, err = AggregateFile(nil)
	assert.ErrorIs(t, err, ErrNoValues)
}

func TestBlend(t *testing.T) {
	v, ok := Blend(Weighted{Value: 0.3, Weight: 3}, Weighted{Value: 0.95, Weight: 1})
	require.True(t, ok)
	assert.InDelta(t, (0.9+0.95)/4, v, 1e-12)

	_, ok = Blend(Weighted{Value: 1, Weight: 0}, Weighted{Value: 1, Weight: math.NaN()})
	assert.False(t, ok)
}

func TestColorFromConfidence_Endpoints(t *testing.T) {
	assert.Equal(t, rampRed, ColorFromConfidence(0))
	assert.Equal(t, rampYellow, ColorFromConfidence(0.5))
	assert.Equal(t, rampGreen, ColorFromConfidence(1))
	assert.Equal(t, rampRed, ColorFromConfidence(-4))
	assert.Equal(t, rampGreen, ColorFromConfidence(7))
	assert.Equal(t, "#f24033", ColorFromConfidence(0).Hex())
}

func TestColorFromConfidence_MonotonicAndContinuous(t *testing.T) {
	prev := ColorFromConfidence(0)
	for i := 1; i <= 1000; i++ {
		c := float64(i) / 1000
		cur := ColorFromConfidence(c)
		assert.LessOrEqual(t, cur.R, prev.R+1e-12, "red must not increase at %v", c)
		assert.GreaterOrEqual(t, cur.G, prev.G-1e-12, "green must not decrease at %v", c)
		prev = cur
	}

	for i := 0; i < 100; i++ {
		a := float64(i) / 100
		d := ColorFromConfidence(a).Distance(ColorFromConfidence(a + 0.01))
		assert.LessOrEqual(t, d, 0.01, "jump at %v", a)
	}

	// Output delta shrinks with input delta.
	for _, h := range []float64{1e-2, 1e-4, 1e-8} {
		d := ColorFromConfidence(0.5).Distance(ColorFromConfidence(0.5 + h))
		assert.LessOrEqual(t, d, h)
	}
}

func TestBandOf(t *testing.T) {
	tests := []struct {
		score float64
		want  Band
	}{
		{1, BandHigh},
		{0.85, BandHigh},
		{0.84, BandMedium},
		{0.6, BandMedium},
		{0.3, BandLow},
		{0.29, BandCritical},
		{math.NaN(), BandCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandOf(tt.score), "score=%v", tt.score)
	}
	assert.Less(t, BandCritical.Rank(), BandHigh.Rank())
}

func TestCriteria(t *testing.T) {
	var c Criteria
	c.Set(TypeSafety, 1.7)
	c.Set(Criterion("bogus"), 0.4)
	assert.Equal(t, 1.0, c.TypeSafety)
	assert.Equal(t, 0.0, c.Get(Criterion("bogus")))

	k, v := Criteria{Syntax: 1, TypeSafety: 0.4, Lint: 1, Runtime: 0.4, Behavior: 1, Security: 1}.Worst()
	assert.Equal(t, TypeSafety, k)
	assert.Equal(t, 0.4, v)

	assert.True(t, Lint.Proven())
	assert.False(t, Security.Proven())

	_, err := ParseCriterion("nope")
	assert.Error(t, err)
	got, err := ParseCriterion("runtime")
	require.NoError(t, err)
	assert.Equal(t, Runtime, got)

	assert.Equal(t, 0.0, LintValue(1, 3))
	assert.Equal(t, LintWarningValue, LintValue(0, 3))
	assert.Equal(t, 1.0, LintValue(0, 0))
}
