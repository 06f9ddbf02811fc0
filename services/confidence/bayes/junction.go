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

import "fmt"

// clique is a node of the junction tree.
type clique struct {
	vars      []int
	potential *factor
	neighbors []int
}

// junction is a clique tree built from a compiled network.
type junction struct {
	c       *compiled
	cliques []*clique
	memo    map[[2]int]*factor
}

// buildJunctionTree moralizes and triangulates the factor scopes, keeps
// the maximal elimination cliques, links them by a maximum-weight
// spanning tree on separator size and assigns every factor to a clique
// that covers its scope.
func buildJunctionTree(c *compiled) (*junction, error) {
	free := c.free()
	_, elimCliques := minDegreeOrder(c.factors, free)

	var maximal [][]int
	for i, a := range elimCliques {
		subsumed := false
		for j, b := range elimCliques {
			if i == j || len(a) > len(b) {
				continue
			}
			if len(a) == len(b) && j > i {
				continue
			}
			if subset(a, b) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			maximal = append(maximal, a)
		}
	}

	jt := &junction{c: c, memo: make(map[[2]int]*factor)}
	for _, vars := range maximal {
		card := make([]int, len(vars))
		for k, v := range vars {
			card[k] = c.net.vars[v].card
		}
		jt.cliques = append(jt.cliques, &clique{vars: vars, potential: unitFactor(vars, card)})
	}

	jt.spanningTree()

	for _, f := range c.factors {
		if len(f.vars) == 0 {
			continue
		}
		home := -1
		for i, cl := range jt.cliques {
			if subset(f.vars, cl.vars) {
				home = i
				break
			}
		}
		if home < 0 {
			return nil, fmt.Errorf("%w: no clique covers factor scope %v", ErrInvalidNetwork, f.vars)
		}
		jt.cliques[home].potential = product(jt.cliques[home].potential, f)
	}
	return jt, nil
}

// spanningTree links cliques with Prim's algorithm on separator size.
// Zero-weight links join disconnected components into one tree.
func (jt *junction) spanningTree() {
	n := len(jt.cliques)
	if n <= 1 {
		return
	}
	inTree := make([]bool, n)
	best := make([]int, n)
	parent := make([]int, n)
	for i := range best {
		best[i] = -1
		parent[i] = -1
	}
	inTree[0] = true
	for i := 1; i < n; i++ {
		best[i] = overlap(jt.cliques[0].vars, jt.cliques[i].vars)
		parent[i] = 0
	}
	for added := 1; added < n; added++ {
		next := -1
		for i := 0; i < n; i++ {
			if !inTree[i] && (next == -1 || best[i] > best[next]) {
				next = i
			}
		}
		inTree[next] = true
		p := parent[next]
		jt.cliques[next].neighbors = append(jt.cliques[next].neighbors, p)
		jt.cliques[p].neighbors = append(jt.cliques[p].neighbors, next)
		for i := 0; i < n; i++ {
			if inTree[i] {
				continue
			}
			if w := overlap(jt.cliques[next].vars, jt.cliques[i].vars); w > best[i] {
				best[i] = w
				parent[i] = next
			}
		}
	}
}

// message returns the Shafer-Shenoy message from clique i to clique j.
func (jt *junction) message(i, j int) *factor {
	key := [2]int{i, j}
	if m, ok := jt.memo[key]; ok {
		return m
	}
	acc := jt.cliques[i].potential
	for _, k := range jt.cliques[i].neighbors {
		if k != j {
			acc = product(acc, jt.message(k, i))
		}
	}
	keep := make(map[int]bool)
	for _, v := range jt.cliques[j].vars {
		keep[v] = true
	}
	m := rescaled(acc.marginalizeTo(keep))
	jt.memo[key] = m
	return m
}

// marginal returns the normalized posterior of v.
func (jt *junction) marginal(v int) ([]float64, error) {
	home := -1
	for i, cl := range jt.cliques {
		if containsInt(cl.vars, v) && (home == -1 || len(cl.vars) < len(jt.cliques[home].vars)) {
			home = i
		}
	}
	if home < 0 {
		return nil, fmt.Errorf("%w: variable %q not in any clique", ErrInvalidNetwork, jt.c.net.vars[v].id)
	}
	belief := jt.cliques[home].potential
	for _, k := range jt.cliques[home].neighbors {
		belief = product(belief, jt.message(k, home))
	}
	dist, mass := belief.distribution(v)
	if mass == 0 {
		return nil, fmt.Errorf("%w: target %q", ErrImpossibleEvidence, jt.c.net.vars[v].id)
	}
	return dist, nil
}

// junctionTree computes exact marginals for the compiled targets.
func junctionTree(c *compiled) (map[string][]float64, error) {
	var jt *junction
	out := make(map[string][]float64, len(c.targets))
	for _, t := range c.targets {
		id := c.net.vars[t].id
		if dist, ok := c.clampedMarginal(t); ok {
			out[id] = dist
			continue
		}
		if jt == nil {
			var err error
			if jt, err = buildJunctionTree(c); err != nil {
				return nil, err
			}
		}
		dist, err := jt.marginal(t)
		if err != nil {
			return nil, err
		}
		out[id] = dist
	}
	return out, nil
}

// rescaled returns a copy of f divided by its largest entry so long
// message chains do not underflow. Marginals are normalized at the end.
func rescaled(f *factor) *factor {
	out := newFactor(f.vars, f.card)
	copy(out.vals, f.vals)
	peak := 0.0
	for _, x := range out.vals {
		if x > peak {
			peak = x
		}
	}
	if peak <= 0 {
		return out
	}
	for i := range out.vals {
		out.vals[i] /= peak
	}
	return out
}

func subset(a, b []int) bool {
	for _, x := range a {
		if !containsInt(b, x) {
			return false
		}
	}
	return true
}

func overlap(a, b []int) int {
	n := 0
	for _, x := range a {
		if containsInt(b, x) {
			n++
		}
	}
	return n
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
