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

// edgeRef locates a variable inside a factor's scope.
type edgeRef struct {
	factor int
	pos    int
}

// loopyBeliefPropagation runs synchronous sum-product on the factor graph.
//
// # Description
//
// Every iteration recomputes all variable→factor messages (product of the
// other factors' messages), then all factor→variable messages (factor
// times the other variables' messages, summed down), then the beliefs.
// The run converges when the largest per-variable L1 change in beliefs
// drops below tol. All messages are normalized.
//
// # Outputs
//
//   - map[string][]float64: Target beliefs.
//   - int: Iterations executed.
//   - error: ErrNonConvergence after maxIter iterations.
func loopyBeliefPropagation(c *compiled, maxIter int, tol float64) (map[string][]float64, int, error) {
	factors := make([]*factor, 0, len(c.factors))
	for _, f := range c.factors {
		if len(f.vars) > 0 {
			factors = append(factors, f)
		}
	}

	free := c.free()
	refs := make(map[int][]edgeRef, len(free))
	for fi, f := range factors {
		for k, v := range f.vars {
			refs[v] = append(refs[v], edgeRef{factor: fi, pos: k})
		}
	}

	// toVar[f][k]: factor f → its k-th variable; toFactor[f][k]: reverse.
	toVar := make([][][]float64, len(factors))
	toFactor := make([][][]float64, len(factors))
	for fi, f := range factors {
		toVar[fi] = make([][]float64, len(f.vars))
		toFactor[fi] = make([][]float64, len(f.vars))
		for k := range f.vars {
			toVar[fi][k] = uniform(f.card[k])
			toFactor[fi][k] = uniform(f.card[k])
		}
	}

	beliefs := make(map[int][]float64, len(free))
	for _, v := range free {
		beliefs[v] = uniform(c.net.vars[v].card)
	}

	iter := 0
	converged := false
	for iter < maxIter {
		iter++

		for _, v := range free {
			card := c.net.vars[v].card
			for _, r := range refs[v] {
				msg := make([]float64, card)
				for s := range msg {
					msg[s] = 1
				}
				for _, o := range refs[v] {
					if o == r {
						continue
					}
					in := toVar[o.factor][o.pos]
					for s := range msg {
						msg[s] *= in[s]
					}
				}
				if !normalize(msg) {
					return nil, iter, fmt.Errorf("%w: variable %q", ErrImpossibleEvidence, c.net.vars[v].id)
				}
				toFactor[r.factor][r.pos] = msg
			}
		}

		for fi, f := range factors {
			for k := range f.vars {
				msg := f.messageTo(k, toFactor[fi])
				if !normalize(msg) {
					return nil, iter, fmt.Errorf("%w: factor message to %q", ErrImpossibleEvidence, c.net.vars[f.vars[k]].id)
				}
				toVar[fi][k] = msg
			}
		}

		delta := 0.0
		for _, v := range free {
			b := make([]float64, c.net.vars[v].card)
			for s := range b {
				b[s] = 1
			}
			for _, r := range refs[v] {
				in := toVar[r.factor][r.pos]
				for s := range b {
					b[s] *= in[s]
				}
			}
			if !normalize(b) {
				return nil, iter, fmt.Errorf("%w: belief of %q", ErrImpossibleEvidence, c.net.vars[v].id)
			}
			l1 := 0.0
			for s := range b {
				l1 += math.Abs(b[s] - beliefs[v][s])
			}
			if l1 > delta {
				delta = l1
			}
			beliefs[v] = b
		}

		if iter > 1 && delta < tol {
			converged = true
			break
		}
	}

	if !converged {
		return nil, iter, fmt.Errorf("%w after %d iterations", ErrNonConvergence, iter)
	}

	out := make(map[string][]float64, len(c.targets))
	for _, t := range c.targets {
		id := c.net.vars[t].id
		if dist, ok := c.clampedMarginal(t); ok {
			out[id] = dist
			continue
		}
		b := beliefs[t]
		dist := make([]float64, len(b))
		for s, p := range b {
			dist[s] = clamp01(p)
		}
		out[id] = dist
	}
	return out, iter, nil
}
