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
	"fmt"
	"math"
)

// RowTolerance is the maximum deviation of a CPT row sum from 1.
const RowTolerance = 1e-6

// variable is one node of the arena.
type variable struct {
	id      string
	card    int
	parents []int

	// cpt is laid out row-major: cpt[row*card+state], where row is the
	// mixed-radix index of the parent assignment with the first parent as
	// the least significant digit.
	cpt    []float64
	hasCPT bool
}

// Network is a discrete Bayesian network stored as an index-addressed arena.
//
// # Description
//
// Variables are added first (AddVariable), then CPTs are attached
// (SetCPT). The two-step build lets callers declare parent cycles, which
// the loopy inference path supports.
//
// # Thread Safety
//
// Not safe for concurrent mutation. Inference only reads the network, so
// a fully built network may be shared by concurrent Infer calls.
type Network struct {
	vars  []variable
	index map[string]int
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{index: make(map[string]int)}
}

// AddVariable adds a discrete variable with the given number of states.
//
// # Outputs
//
//   - int: Arena index of the new variable.
//   - error: ErrInvalidNetwork if the id is empty, duplicate, or card < 2.
func (n *Network) AddVariable(id string, card int) (int, error) {
	if id == "" {
		return -1, fmt.Errorf("%w: empty variable id", ErrInvalidNetwork)
	}
	if _, exists := n.index[id]; exists {
		return -1, fmt.Errorf("%w: duplicate variable %q", ErrInvalidNetwork, id)
	}
	if card < 2 {
		return -1, fmt.Errorf("%w: variable %q needs at least 2 states, got %d", ErrInvalidNetwork, id, card)
	}
	n.vars = append(n.vars, variable{id: id, card: card})
	idx := len(n.vars) - 1
	n.index[id] = idx
	return idx, nil
}

// AddBinary adds a two-state variable (state 1 means "holds").
func (n *Network) AddBinary(id string) (int, error) {
	return n.AddVariable(id, 2)
}

// SetCPT attaches the conditional probability table of a variable.
//
// # Description
//
// rows must contain one distribution per parent assignment, ordered as a
// mixed-radix counter with the first parent varying fastest. A root
// variable takes a single row. Every row is validated immediately.
//
// # Inputs
//
//   - id: The child variable.
//   - parents: Parent ids, all previously added. Must not contain id.
//   - rows: Distributions over the child's states.
//
// # Outputs
//
//   - error: ErrUnknownNode for an unknown id or parent, ErrInvalidNetwork
//     for a malformed table.
func (n *Network) SetCPT(id string, parents []string, rows [][]float64) error {
	child, ok := n.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}

	parentIdx := make([]int, len(parents))
	expectedRows := 1
	seen := make(map[int]bool, len(parents))
	for i, p := range parents {
		pi, ok := n.index[p]
		if !ok {
			return fmt.Errorf("%w: parent %q of %q", ErrUnknownNode, p, id)
		}
		if pi == child {
			return fmt.Errorf("%w: %q lists itself as a parent", ErrInvalidNetwork, id)
		}
		if seen[pi] {
			return fmt.Errorf("%w: %q lists parent %q twice", ErrInvalidNetwork, id, p)
		}
		seen[pi] = true
		parentIdx[i] = pi
		expectedRows *= n.vars[pi].card
	}

	card := n.vars[child].card
	if len(rows) != expectedRows {
		return fmt.Errorf("%w: %q has %d CPT rows, want %d", ErrInvalidNetwork, id, len(rows), expectedRows)
	}

	flat := make([]float64, 0, expectedRows*card)
	for r, row := range rows {
		if err := validateRow(row, card); err != nil {
			return fmt.Errorf("%w: %q row %d: %v", ErrInvalidNetwork, id, r, err)
		}
		flat = append(flat, row...)
	}

	v := &n.vars[child]
	v.parents = parentIdx
	v.cpt = flat
	v.hasCPT = true
	return nil
}

// SetPrior is SetCPT for a root variable.
func (n *Network) SetPrior(id string, dist []float64) error {
	return n.SetCPT(id, nil, [][]float64{dist})
}

// Binary returns the two-state distribution [1-p, p] with p clamped to [0,1].
func Binary(p float64) []float64 {
	p = clamp01(p)
	return []float64{1 - p, p}
}

func validateRow(row []float64, card int) error {
	if len(row) != card {
		return fmt.Errorf("width %d, want %d", len(row), card)
	}
	sum := 0.0
	for _, p := range row {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("entry %v is not a probability", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > RowTolerance {
		return fmt.Errorf("row sums to %v", sum)
	}
	return nil
}

// Validate checks that every variable has a well-formed CPT.
func (n *Network) Validate() error {
	if len(n.vars) == 0 {
		return fmt.Errorf("%w: network has no variables", ErrInvalidNetwork)
	}
	for _, v := range n.vars {
		if !v.hasCPT {
			return fmt.Errorf("%w: %q has no CPT", ErrInvalidNetwork, v.id)
		}
		for r := 0; r*v.card < len(v.cpt); r++ {
			if err := validateRow(v.cpt[r*v.card:(r+1)*v.card], v.card); err != nil {
				return fmt.Errorf("%w: %q row %d: %v", ErrInvalidNetwork, v.id, r, err)
			}
		}
	}
	return nil
}

// Len returns the number of variables.
func (n *Network) Len() int { return len(n.vars) }

// Lookup returns the arena index of id.
func (n *Network) Lookup(id string) (int, bool) {
	i, ok := n.index[id]
	return i, ok
}

// ID returns the id of the variable at index i.
func (n *Network) ID(i int) string { return n.vars[i].id }

// Cardinality returns the number of states of the variable at index i.
func (n *Network) Cardinality(i int) int { return n.vars[i].card }

// Parents returns a copy of the parent indices of variable i.
func (n *Network) Parents(i int) []int {
	out := make([]int, len(n.vars[i].parents))
	copy(out, n.vars[i].parents)
	return out
}

// Row returns the CPT row of variable id for the given parent states
// (ordered like the parents passed to SetCPT).
func (n *Network) Row(id string, parentStates ...int) ([]float64, error) {
	i, ok := n.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	v := n.vars[i]
	if len(parentStates) != len(v.parents) {
		return nil, fmt.Errorf("%w: %q has %d parents", ErrInvalidNetwork, id, len(v.parents))
	}
	row, radix := 0, 1
	for k, s := range parentStates {
		pc := n.vars[v.parents[k]].card
		if s < 0 || s >= pc {
			return nil, fmt.Errorf("%w: parent state %d out of range", ErrInvalidNetwork, s)
		}
		row += s * radix
		radix *= pc
	}
	out := make([]float64, v.card)
	copy(out, v.cpt[row*v.card:(row+1)*v.card])
	return out, nil
}

// IsAcyclic reports whether the parent graph has no directed cycle.
func (n *Network) IsAcyclic() bool {
	indegree := make([]int, len(n.vars))
	children := make([][]int, len(n.vars))
	for c, v := range n.vars {
		indegree[c] = len(v.parents)
		for _, p := range v.parents {
			children[p] = append(children[p], c)
		}
	}

	queue := make([]int, 0, len(n.vars))
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range children[cur] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	return visited == len(n.vars)
}

// cptFactor returns the factor over [i, parents...] for variable i. The
// flat CPT layout already matches the factor layout.
func (n *Network) cptFactor(i int) *factor {
	v := n.vars[i]
	vars := make([]int, 0, len(v.parents)+1)
	card := make([]int, 0, len(v.parents)+1)
	vars = append(vars, i)
	card = append(card, v.card)
	for _, p := range v.parents {
		vars = append(vars, p)
		card = append(card, n.vars[p].card)
	}
	f := newFactor(vars, card)
	copy(f.vals, v.cpt)
	return f
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
