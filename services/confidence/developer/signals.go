// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package developer

import (
	"math"
	"time"
)

// Signals are the raw inputs for one (developer, module) pair, each in
// [0,1]. BugIntroductionRate and Fatigue are "higher is worse" and are
// inverted by Normalized.
type Signals struct {
	CommitHistory       float64 `json:"commit_history" yaml:"commit_history"`
	BugIntroductionRate float64 `json:"bug_introduction_rate" yaml:"bug_introduction_rate"`
	ReviewAcceptance    float64 `json:"review_acceptance" yaml:"review_acceptance"`
	Recency             float64 `json:"recency" yaml:"recency"`
	DomainExpertise     float64 `json:"domain_expertise" yaml:"domain_expertise"`
	Flow                float64 `json:"flow" yaml:"flow"`
	Fatigue             float64 `json:"fatigue" yaml:"fatigue"`
}

// Weights assigns a non-negative weight to each signal for the weighted
// combination.
type Weights struct {
	CommitHistory       float64 `yaml:"commit_history" validate:"gte=0"`
	BugIntroductionRate float64 `yaml:"bug_introduction_rate" validate:"gte=0"`
	ReviewAcceptance    float64 `yaml:"review_acceptance" validate:"gte=0"`
	Recency             float64 `yaml:"recency" validate:"gte=0"`
	DomainExpertise     float64 `yaml:"domain_expertise" validate:"gte=0"`
	Flow                float64 `yaml:"flow" validate:"gte=0"`
	Fatigue             float64 `yaml:"fatigue" validate:"gte=0"`
}

// DefaultWeights favours domain expertise and sums to 1.
func DefaultWeights() Weights {
	return Weights{
		CommitHistory:       0.15,
		BugIntroductionRate: 0.15,
		ReviewAcceptance:    0.15,
		Recency:             0.10,
		DomainExpertise:     0.20,
		Flow:                0.15,
		Fatigue:             0.10,
	}
}

func (w Weights) vector() [7]float64 {
	return [7]float64{w.CommitHistory, w.BugIntroductionRate, w.ReviewAcceptance, w.Recency, w.DomainExpertise, w.Flow, w.Fatigue}
}

// Normalized returns the seven signals clamped to [0,1], oriented so that
// higher is always better.
func (s Signals) Normalized() [7]float64 {
	return [7]float64{
		clamp01(s.CommitHistory),
		1 - clamp01(s.BugIntroductionRate),
		clamp01(s.ReviewAcceptance),
		clamp01(s.Recency),
		clamp01(s.DomainExpertise),
		clamp01(s.Flow),
		1 - clamp01(s.Fatigue),
	}
}

// Saturating maps a count onto [0,1) as 1 - e^(-n/scale). Useful for commit
// counts, where the tenth commit matters more than the hundredth.
func Saturating(n int, scale float64) float64 {
	if n <= 0 || scale <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(n)/scale)
}

// Ratio returns num/den clamped to [0,1], or 0 when den is zero.
func Ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return clamp01(float64(num) / float64(den))
}

// RecencyScore halves every halfLife since last. A zero last time scores 0.
func RecencyScore(last, now time.Time, halfLife time.Duration) float64 {
	if last.IsZero() || halfLife <= 0 {
		return 0
	}
	age := now.Sub(last)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
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
