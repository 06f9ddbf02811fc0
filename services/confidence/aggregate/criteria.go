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

import "fmt"

// Criterion names one axis of the confidence breakdown.
type Criterion string

const (
	Syntax     Criterion = "syntax"
	TypeSafety Criterion = "type_safety"
	Lint       Criterion = "lint"
	Runtime    Criterion = "runtime"
	Behavior   Criterion = "behavior"
	Security   Criterion = "security"
)

// AllCriteria lists the criteria in breakdown order.
var AllCriteria = []Criterion{Syntax, TypeSafety, Lint, Runtime, Behavior, Security}

// LintWarningValue is the lint criterion for code that compiles cleanly
// but carries lint warnings.
const LintWarningValue = 0.9

// Proven reports whether c is established by a deterministic checker
// rather than estimated.
func (c Criterion) Proven() bool {
	switch c {
	case Syntax, TypeSafety, Lint:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of AllCriteria.
func (c Criterion) Valid() bool {
	for _, k := range AllCriteria {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCriterion converts a name such as "type_safety" to a Criterion.
func ParseCriterion(s string) (Criterion, error) {
	c := Criterion(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown criterion %q", s)
	}
	return c, nil
}

// Criteria is the six-criterion breakdown of a code unit's confidence.
// Each field is in [0,1].
type Criteria struct {
	Syntax     float64 `json:"syntax" yaml:"syntax"`
	TypeSafety float64 `json:"type_safety" yaml:"type_safety"`
	Lint       float64 `json:"lint" yaml:"lint"`
	Runtime    float64 `json:"runtime" yaml:"runtime"`
	Behavior   float64 `json:"behavior" yaml:"behavior"`
	Security   float64 `json:"security" yaml:"security"`
}

// Uniform returns a breakdown with every criterion set to v.
func Uniform(v float64) Criteria {
	var c Criteria
	for _, k := range AllCriteria {
		c.Set(k, v)
	}
	return c
}

// Get returns the value of criterion k, or 0 for an unknown criterion.
func (c Criteria) Get(k Criterion) float64 {
	switch k {
	case Syntax:
		return c.Syntax
	case TypeSafety:
		return c.TypeSafety
	case Lint:
		return c.Lint
	case Runtime:
		return c.Runtime
	case Behavior:
		return c.Behavior
	case Security:
		return c.Security
	default:
		return 0
	}
}

// Set stores v, clamped to [0,1], under criterion k. Unknown criteria are
// ignored.
func (c *Criteria) Set(k Criterion, v float64) {
	v = clamp01(v)
	switch k {
	case Syntax:
		c.Syntax = v
	case TypeSafety:
		c.TypeSafety = v
	case Lint:
		c.Lint = v
	case Runtime:
		c.Runtime = v
	case Behavior:
		c.Behavior = v
	case Security:
		c.Security = v
	}
}

// Values returns the criteria in AllCriteria order, clamped.
func (c Criteria) Values() []float64 {
	out := make([]float64, len(AllCriteria))
	for i, k := range AllCriteria {
		out[i] = clamp01(c.Get(k))
	}
	return out
}

// Worst returns the lowest criterion and its value. Ties go to the earlier
// criterion in AllCriteria order.
func (c Criteria) Worst() (Criterion, float64) {
	worst, val := AllCriteria[0], clamp01(c.Get(AllCriteria[0]))
	for _, k := range AllCriteria[1:] {
		if v := clamp01(c.Get(k)); v < val {
			worst, val = k, v
		}
	}
	return worst, val
}

// LintValue maps linter output to the lint criterion: 0 on any error,
// LintWarningValue on warnings only, 1 when clean.
func LintValue(errs, warnings int) float64 {
	switch {
	case errs > 0:
		return 0
	case warnings > 0:
		return LintWarningValue
	default:
		return 1
	}
}
