// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// ProofClass separates deterministic proofs from statistical estimates.
type ProofClass int

const (
	Proven ProofClass = iota
	Estimated
)

func (p ProofClass) String() string {
	if p == Proven {
		return "proven"
	}
	return "estimated"
}

// Kind tags the closed set of Source implementors.
type Kind string

const (
	KindChecker      Kind = "checker"
	KindTestRunner   Kind = "test_runner"
	KindEmbedding    Kind = "embedding"
	KindBugPredictor Kind = "bug_predictor"
	KindHeuristic    Kind = "heuristic"
	KindFixed        Kind = "fixed"
)

// Unit addresses a scored piece of code: a line, or a whole file when Line
// is zero.
type Unit struct {
	File string `json:"file" yaml:"file"`
	Line int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// Key is the canonical string form, "file" or "file:line".
func (u Unit) Key() string {
	if u.Line <= 0 {
		return u.File
	}
	return u.File + ":" + strconv.Itoa(u.Line)
}

func (u Unit) String() string { return u.Key() }

// FileUnit returns the file-level unit for u.
func (u Unit) FileUnit() Unit { return Unit{File: u.File} }

// Source is a named scalar evidence provider.
type Source interface {
	// Name identifies the source. Unique within a Collector.
	Name() string

	// ProofClass says whether values are proofs or estimates.
	ProofClass() ProofClass

	// MLDerived is true for learned models. The ML cap keys solely on it.
	MLDerived() bool

	// Kind is the implementor tag.
	Kind() Kind

	// Value returns the source's confidence for unit in [0,1].
	Value(ctx context.Context, unit Unit) (float64, error)
}

// ValueFunc is the pluggable body of most sources.
type ValueFunc func(ctx context.Context, unit Unit) (float64, error)

func checked(name string, v float64, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s returned %v", ErrEvidenceUnavailable, name, v)
	}
	return clamp01(v), nil
}

// =============================================================================
// Checker
// =============================================================================

// Checker wraps a deterministic analysis (parser, type-checker, linter).
type Checker struct {
	name string
	fn   ValueFunc
}

// NewChecker returns a proven, non-ML source backed by fn.
func NewChecker(name string, fn ValueFunc) *Checker {
	return &Checker{name: name, fn: fn}
}

func (c *Checker) Name() string { return c.name }
func (c *Checker) ProofClass() ProofClass { return Proven }
func (c *Checker) MLDerived() bool { return false }
func (c *Checker) Kind() Kind { return KindChecker }
func (c *Checker) Value(ctx context.Context, u Unit) (float64, error) {
	v, err := c.fn(ctx, u)
	return checked(c.name, v, err)
}

// =============================================================================
// TestRunner
// =============================================================================

// TestReport is a test run summary for a unit.
type TestReport struct {
	// PassRate is the fraction of covering tests that pass.
	PassRate float64

	// KillRate is the fraction of injected mutants the tests caught.
	// NaN when mutation testing was not run.
	KillRate float64
}

// TestRunner reports test outcomes together with a mutation-kill rate.
type TestRunner struct {
	name string
	fn   func(ctx context.Context, unit Unit) (TestReport, error)
}

// NewTestRunner returns a proven, non-ML source backed by fn.
func NewTestRunner(name string, fn func(ctx context.Context, unit Unit) (TestReport, error)) *TestRunner {
	return &TestRunner{name: name, fn: fn}
}

func (r *TestRunner) Name() string { return r.name }
func (r *TestRunner) ProofClass() ProofClass { return Proven }
func (r *TestRunner) MLDerived() bool { return false }
func (r *TestRunner) Kind() Kind { return KindTestRunner }

// Value returns the pass rate.
func (r *TestRunner) Value(ctx context.Context, u Unit) (float64, error) {
	rep, err := r.Report(ctx, u)
	return rep.PassRate, err
}

// Report returns the full test report, pass rate clamped.
func (r *TestRunner) Report(ctx context.Context, u Unit) (TestReport, error) {
	rep, err := r.fn(ctx, u)
	if err != nil {
		return TestReport{}, err
	}
	rep.PassRate, err = checked(r.name, rep.PassRate, nil)
	if err != nil {
		return TestReport{}, err
	}
	if !math.IsNaN(rep.KillRate) {
		rep.KillRate = clamp01(rep.KillRate)
	}
	return rep, nil
}

// =============================================================================
// Embedding
// =============================================================================

// Embedding scores a unit by similarity to known-good code.
type Embedding struct {
	name string
	fn   ValueFunc
}

// NewEmbedding returns an estimated, ML-derived source backed by fn.
func NewEmbedding(name string, fn ValueFunc) *Embedding {
	return &Embedding{name: name, fn: fn}
}

func (e *Embedding) Name() string { return e.name }
func (e *Embedding) ProofClass() ProofClass { return Estimated }
func (e *Embedding) MLDerived() bool { return true }
func (e *Embedding) Kind() Kind { return KindEmbedding }
func (e *Embedding) Value(ctx context.Context, u Unit) (float64, error) {
	v, err := e.fn(ctx, u)
	return checked(e.name, v, err)
}

// =============================================================================
// BugPredictor
// =============================================================================

// BugPredictor wraps a model that estimates the probability that a unit
// contains a defect. Its confidence is the complement of that probability.
type BugPredictor struct {
	name string
	fn   ValueFunc
}

// NewBugPredictor returns an estimated, ML-derived source. fn returns the
// bug probability.
func NewBugPredictor(name string, fn ValueFunc) *BugPredictor {
	return &BugPredictor{name: name, fn: fn}
}

func (b *BugPredictor) Name() string { return b.name }
func (b *BugPredictor) ProofClass() ProofClass { return Estimated }
func (b *BugPredictor) MLDerived() bool { return true }
func (b *BugPredictor) Kind() Kind { return KindBugPredictor }
func (b *BugPredictor) Value(ctx context.Context, u Unit) (float64, error) {
	p, err := b.fn(ctx, u)
	p, err = checked(b.name, p, err)
	if err != nil {
		return 0, err
	}
	return 1 - p, nil
}

// =============================================================================
// Heuristic
// =============================================================================

// Heuristic is a hand-written, non-learned estimate (for example a taint
// rule count mapped to a security score).
type Heuristic struct {
	name string
	fn   ValueFunc
}

// NewHeuristic returns an estimated, non-ML source backed by fn.
func NewHeuristic(name string, fn ValueFunc) *Heuristic {
	return &Heuristic{name: name, fn: fn}
}

func (h *Heuristic) Name() string { return h.name }
func (h *Heuristic) ProofClass() ProofClass { return Estimated }
func (h *Heuristic) MLDerived() bool { return false }
func (h *Heuristic) Kind() Kind { return KindHeuristic }
func (h *Heuristic) Value(ctx context.Context, u Unit) (float64, error) {
	v, err := h.fn(ctx, u)
	return checked(h.name, v, err)
}

// =============================================================================
// Fixed
// =============================================================================

// Fixed replays recorded values. Used for fixtures, the CLI and tests.
type Fixed struct {
	name   string
	class  ProofClass
	ml     bool
	values map[string]float64
	kill   map[string]float64
}

// FixedSpec describes a Fixed source.
type FixedSpec struct {
	Name      string             `yaml:"name" validate:"required"`
	Proven    bool               `yaml:"proven"`
	MLDerived bool               `yaml:"ml_derived"`
	Values    map[string]float64 `yaml:"values"`
	KillRates map[string]float64 `yaml:"kill_rates"`
}

// NewFixed returns a source that answers from fs.Values, keyed by
// Unit.Key with a fallback to the file-level key.
func NewFixed(fs FixedSpec) *Fixed {
	class := Estimated
	if fs.Proven {
		class = Proven
	}
	return &Fixed{name: fs.Name, class: class, ml: fs.MLDerived, values: fs.Values, kill: fs.KillRates}
}

func (f *Fixed) Name() string { return f.name }
func (f *Fixed) ProofClass() ProofClass { return f.class }
func (f *Fixed) MLDerived() bool { return f.ml }
func (f *Fixed) Kind() Kind { return KindFixed }

func (f *Fixed) Value(_ context.Context, u Unit) (float64, error) {
	if v, ok := lookup(f.values, u); ok {
		return checked(f.name, v, nil)
	}
	return 0, fmt.Errorf("%w: %s has no value for %s", ErrEvidenceUnavailable, f.name, u)
}

// KillRate returns the recorded mutation-kill rate for u, if any.
func (f *Fixed) KillRate(u Unit) (float64, bool) {
	v, ok := lookup(f.kill, u)
	return clamp01(v), ok
}

func lookup(m map[string]float64, u Unit) (float64, bool) {
	if v, ok := m[u.Key()]; ok {
		return v, true
	}
	v, ok := m[u.File]
	return v, ok
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
