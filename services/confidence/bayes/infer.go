// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bayes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/AleutianConfidence/pkg/logging"
)

// Method names an inference algorithm.
type Method int

const (
	// MethodAuto picks VE for acyclic networks and BP (with JT fallback)
	// otherwise.
	MethodAuto Method = iota

	// MethodVariableElimination is exact elimination.
	MethodVariableElimination

	// MethodBeliefPropagation is loopy sum-product belief propagation.
	MethodBeliefPropagation

	// MethodJunctionTree is exact clique-tree message passing.
	MethodJunctionTree
)

// String returns a short name used in logs and metric attributes.
func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "auto"
	case MethodVariableElimination:
		return "variable_elimination"
	case MethodBeliefPropagation:
		return "belief_propagation"
	case MethodJunctionTree:
		return "junction_tree"
	default:
		return "unknown"
	}
}

// ParseMethod accepts "auto", "ve", "bp", "jt" or a long name from String.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "auto":
		return MethodAuto, nil
	case "ve", "variable_elimination":
		return MethodVariableElimination, nil
	case "bp", "belief_propagation":
		return MethodBeliefPropagation, nil
	case "jt", "junction_tree":
		return MethodJunctionTree, nil
	default:
		return MethodAuto, fmt.Errorf("unknown inference method %q", s)
	}
}

// Options bounds and steers inference.
type Options struct {
	// Method forces an algorithm. MethodAuto is the default.
	Method Method

	// MaxIter caps belief propagation iterations. Default: 50.
	MaxIter int

	// Tolerance is the convergence threshold on the largest per-variable
	// L1 change in beliefs between iterations. Default: 1e-4.
	Tolerance float64
}

// DefaultOptions returns MethodAuto, MaxIter 50, Tolerance 1e-4.
func DefaultOptions() Options {
	return Options{Method: MethodAuto, MaxIter: 50, Tolerance: 1e-4}
}

// Query describes a posterior request.
type Query struct {
	// Targets are the variables whose marginals are returned.
	Targets []string

	// Evidence clamps variables to observed states.
	Evidence map[string]int

	// Likelihood attaches soft (virtual) evidence: a non-negative weight
	// per state, multiplied into the joint. Ignored for clamped variables.
	Likelihood map[string][]float64
}

// Result holds posterior marginals.
type Result struct {
	// Marginals maps each target to its normalized posterior.
	Marginals map[string][]float64

	// Method is the algorithm that produced the marginals.
	Method Method

	// Iterations is the number of BP iterations run (0 for exact paths).
	Iterations int

	// FellBack is true when BP failed to converge and JT answered.
	FellBack bool
}

// Probability returns P(target = state), or 0 if absent.
func (r Result) Probability(target string, state int) float64 {
	dist, ok := r.Marginals[target]
	if !ok || state < 0 || state >= len(dist) {
		return 0
	}
	return clamp01(dist[state])
}

// compiled is the factor form of a network plus evidence.
type compiled struct {
	net     *Network
	factors []*factor
	clamped map[int]int
	targets []int
}

func compile(net *Network, q Query) (*compiled, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: nil network", ErrInvalidNetwork)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	if len(q.Targets) == 0 {
		return nil, fmt.Errorf("%w: query has no targets", ErrUnknownNode)
	}

	c := &compiled{net: net, clamped: make(map[int]int, len(q.Evidence))}
	for _, id := range q.Targets {
		i, ok := net.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: query target %q", ErrUnknownNode, id)
		}
		c.targets = append(c.targets, i)
	}
	for id, state := range q.Evidence {
		i, ok := net.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: evidence %q", ErrUnknownNode, id)
		}
		if state < 0 || state >= net.vars[i].card {
			return nil, fmt.Errorf("%w: evidence state %d for %q", ErrInvalidNetwork, state, id)
		}
		c.clamped[i] = state
	}

	for i := range net.vars {
		f := net.cptFactor(i)
		for v, s := range c.clamped {
			f = f.reduce(v, s)
		}
		c.factors = append(c.factors, f)
	}

	for id, weights := range q.Likelihood {
		i, ok := net.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: likelihood %q", ErrUnknownNode, id)
		}
		if _, isClamped := c.clamped[i]; isClamped {
			continue
		}
		if len(weights) != net.vars[i].card {
			return nil, fmt.Errorf("%w: likelihood for %q has %d states", ErrInvalidNetwork, id, len(weights))
		}
		f := newFactor([]int{i}, []int{net.vars[i].card})
		mass := 0.0
		for s, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return nil, fmt.Errorf("%w: likelihood for %q has weight %v", ErrInvalidNetwork, id, w)
			}
			f.vals[s] = w
			mass += w
		}
		if mass == 0 {
			return nil, fmt.Errorf("%w: likelihood for %q is all zero", ErrImpossibleEvidence, id)
		}
		c.factors = append(c.factors, f)
	}
	return c, nil
}

// free returns the unclamped variables in index order.
func (c *compiled) free() []int {
	out := make([]int, 0, len(c.net.vars)-len(c.clamped))
	for i := range c.net.vars {
		if _, ok := c.clamped[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// constantMass multiplies the scope-free factors; zero means the evidence
// is impossible.
func (c *compiled) constantMass() float64 {
	mass := 1.0
	for _, f := range c.factors {
		if len(f.vars) == 0 {
			mass *= f.vals[0]
		}
	}
	return mass
}

// clampedMarginal returns the one-hot posterior of a clamped target.
func (c *compiled) clampedMarginal(v int) ([]float64, bool) {
	s, ok := c.clamped[v]
	if !ok {
		return nil, false
	}
	out := make([]float64, c.net.vars[v].card)
	out[s] = 1
	return out, true
}

// Engine runs inference with fixed options and records telemetry.
//
// # Thread Safety
//
// Engine is stateless beyond its options and safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine. Zero MaxIter/Tolerance take the defaults.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	def := DefaultOptions()
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	return &Engine{opts: opts, logger: logging.OrDefault(logger)}
}

// Infer computes posterior marginals for q.Targets.
//
// # Description
//
// Compiles the network and evidence into factors, then dispatches on
// Options.Method. Under MethodAuto, acyclic networks use variable
// elimination and cyclic ones use belief propagation; if BP exceeds
// MaxIter the junction tree answers instead and Result.FellBack is set.
//
// # Inputs
//
//   - ctx: Used for tracing only; inference is synchronous and bounded.
//   - net: A network whose every variable has a CPT.
//   - q: Targets and evidence.
//
// # Outputs
//
//   - Result: Marginals clamped to [0,1].
//   - error: ErrInvalidNetwork, ErrUnknownNode or ErrImpossibleEvidence.
func (e *Engine) Infer(ctx context.Context, net *Network, q Query) (Result, error) {
	start := time.Now()
	ctx, span := startInferSpan(ctx, len(q.Targets))
	defer span.End()

	res, err := e.infer(net, q)
	recordInferMetrics(ctx, time.Since(start), res.Method, res.FellBack, err == nil)
	setInferSpanResult(span, res.Method, res.Iterations, res.FellBack, err)
	return res, err
}

func (e *Engine) infer(net *Network, q Query) (Result, error) {
	c, err := compile(net, q)
	if err != nil {
		return Result{}, err
	}
	if c.constantMass() == 0 {
		return Result{}, ErrImpossibleEvidence
	}

	method := e.opts.Method
	if method == MethodAuto {
		if net.IsAcyclic() {
			method = MethodVariableElimination
		} else {
			method = MethodBeliefPropagation
		}
	}

	switch method {
	case MethodVariableElimination:
		marginals, err := variableElimination(c)
		return Result{Marginals: marginals, Method: method}, err

	case MethodJunctionTree:
		marginals, err := junctionTree(c)
		return Result{Marginals: marginals, Method: method}, err

	case MethodBeliefPropagation:
		marginals, iters, err := loopyBeliefPropagation(c, e.opts.MaxIter, e.opts.Tolerance)
		if err == nil {
			return Result{Marginals: marginals, Method: method, Iterations: iters}, nil
		}
		if !errors.Is(err, ErrNonConvergence) || e.opts.Method == MethodBeliefPropagation {
			return Result{Method: method, Iterations: iters}, err
		}
		e.logger.Debug("belief propagation did not converge, using junction tree",
			slog.Int("iterations", iters))
		marginals, err = junctionTree(c)
		return Result{Marginals: marginals, Method: MethodJunctionTree, Iterations: iters, FellBack: true}, err

	default:
		return Result{}, fmt.Errorf("unsupported inference method %d", method)
	}
}

// Infer runs inference with DefaultOptions.
func Infer(ctx context.Context, net *Network, q Query) (Result, error) {
	return NewEngine(DefaultOptions(), nil).Infer(ctx, net, q)
}
