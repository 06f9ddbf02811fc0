// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback turns developer actions into per-(developer, module)
// priors using an exponential moving average.
//
// Each action maps to an evidence value e ∈ [0,1] and updates
//
//	prior_new = α·e + (1-α)·prior_old
//
// After n actions from a fixed start the prior has absorbed 1-(1-α)^n of
// the new evidence. At α = 0.1 that passes 99.5% around n = 50.
//
// Priors stay on this machine: they are loaded from the local store on
// start, flushed on Close and can be deleted per developer or wholesale.
package feedback

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Defaults.
const (
	DefaultAlpha        = 0.1
	DefaultInitialPrior = 0.5

	// PersonalizedAbsorption is the absorbed fraction at which a prior is
	// considered personalized.
	PersonalizedAbsorption = 0.995
)

// ErrUnknownAction is returned for an action outside the known set.
var ErrUnknownAction = errors.New("unknown feedback action")

// Action is a developer reaction to a confidence signal.
type Action int

const (
	IgnoreWarning Action = iota
	FixFlaggedLine
	DismissSuggestion
	AddTest
	CommitLowConfidenceCode
)

var actionNames = map[Action]string{
	IgnoreWarning:           "ignore_warning",
	FixFlaggedLine:          "fix_flagged_line",
	DismissSuggestion:       "dismiss_suggestion",
	AddTest:                 "add_test",
	CommitLowConfidenceCode: "commit_low_confidence_code",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction accepts the snake_case names produced by String.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Evidence returns the action's evidence value.
func (a Action) Evidence() (float64, error) {
	switch a {
	case IgnoreWarning:
		return 0.2, nil
	case FixFlaggedLine:
		return 1.0, nil
	case DismissSuggestion:
		return 0.3, nil
	case AddTest:
		return 0.9, nil
	case CommitLowConfidenceCode:
		return 0.0, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
	}
}

// Dismissal reports whether the action waves off a warning. The anomaly
// detector watches the rate of these.
func (a Action) Dismissal() bool {
	return a == IgnoreWarning || a == DismissSuggestion
}

// Update applies one EMA step.
func Update(prior, evidence, alpha float64) float64 {
	return clamp01(alpha*clamp01(evidence) + (1-alpha)*clamp01(prior))
}

// AbsorbedFraction is the share of new evidence absorbed after n updates.
func AbsorbedFraction(alpha float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - math.Pow(1-alpha, float64(n))
}

// ClosedForm is the prior after n identical updates with evidence e from
// prior0.
func ClosedForm(prior0, e, alpha float64, n int) float64 {
	keep := math.Pow(1-alpha, float64(n))
	return clamp01(e*(1-keep) + prior0*keep)
}

// UpdatesToPersonalize returns the smallest n whose absorbed fraction
// reaches PersonalizedAbsorption.
func UpdatesToPersonalize(alpha float64) int {
	if alpha <= 0 || alpha > 1 {
		return 0
	}
	if alpha == 1 {
		return 1
	}
	n := int(math.Ceil(math.Log(1-PersonalizedAbsorption) / math.Log(1-alpha)))
	for AbsorbedFraction(alpha, n) < PersonalizedAbsorption {
		n++
	}
	return n
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
