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
	"sort"
)

// minDegreeOrder returns an elimination order for the given variables.
//
// # Description
//
// Greedy min-degree: at each step eliminate the remaining candidate with
// the fewest neighbours in the current interaction graph, breaking ties
// by the lowest arena index, then connect its neighbours (fill-in).
// Variables not in candidates stay in the graph as neighbours but are
// never eliminated. The order affects cost only, never the result.
//
// # Outputs
//
//   - []int: The elimination order.
//   - [][]int: For each eliminated variable, the clique it formed
//     (itself plus its neighbours at elimination time), sorted.
func minDegreeOrder(factors []*factor, candidates []int) ([]int, [][]int) {
	adj := make(map[int]map[int]bool)
	touch := func(v int) {
		if adj[v] == nil {
			adj[v] = make(map[int]bool)
		}
	}
	for _, f := range factors {
		for _, a := range f.vars {
			touch(a)
			for _, b := range f.vars {
				if a != b {
					adj[a][b] = true
				}
			}
		}
	}

	remaining := make(map[int]bool, len(candidates))
	for _, v := range candidates {
		touch(v)
		remaining[v] = true
	}

	order := make([]int, 0, len(candidates))
	cliques := make([][]int, 0, len(candidates))
	for len(remaining) > 0 {
		best, bestDeg := -1, 0
		for v := range remaining {
			d := len(adj[v])
			if best == -1 || d < bestDeg || (d == bestDeg && v < best) {
				best, bestDeg = v, d
			}
		}

		neighbours := make([]int, 0, bestDeg)
		for u := range adj[best] {
			neighbours = append(neighbours, u)
		}
		for _, a := range neighbours {
			for _, b := range neighbours {
				if a != b {
					adj[a][b] = true
				}
			}
			delete(adj[a], best)
		}
		delete(adj, best)
		delete(remaining, best)

		clique := append([]int{best}, neighbours...)
		sort.Ints(clique)
		order = append(order, best)
		cliques = append(cliques, clique)
	}
	return order, cliques
}

// variableElimination computes each target's exact marginal.
func variableElimination(c *compiled) (map[string][]float64, error) {
	out := make(map[string][]float64, len(c.targets))
	for _, t := range c.targets {
		id := c.net.vars[t].id
		if dist, ok := c.clampedMarginal(t); ok {
			out[id] = dist
			continue
		}

		candidates := make([]int, 0, len(c.net.vars))
		for _, v := range c.free() {
			if v != t {
				candidates = append(candidates, v)
			}
		}
		order, _ := minDegreeOrder(c.factors, candidates)

		factors := append([]*factor(nil), c.factors...)
		for _, v := range order {
			var joined *factor
			rest := factors[:0:0]
			for _, f := range factors {
				if f.has(v) {
					if joined == nil {
						joined = f
					} else {
						joined = product(joined, f)
					}
				} else {
					rest = append(rest, f)
				}
			}
			if joined != nil {
				rest = append(rest, joined.sumOut(v))
			}
			factors = rest
		}

		result := unitFactor([]int{t}, []int{c.net.vars[t].card})
		for _, f := range factors {
			result = product(result, f)
		}
		dist, mass := result.distribution(t)
		if mass == 0 {
			return nil, fmt.Errorf("%w: target %q", ErrImpossibleEvidence, id)
		}
		out[id] = dist
	}
	return out, nil
}
