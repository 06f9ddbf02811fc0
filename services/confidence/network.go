// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confidence

import (
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianConfidence/services/confidence/aggregate"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/bayes"
	"github.com/AleutianAI/AleutianConfidence/services/confidence/evidence"
)

// chainParent lists the criterion each latent is conditioned on. Lint and
// security are roots.
var chainParent = map[aggregate.Criterion]aggregate.Criterion{
	aggregate.TypeSafety: aggregate.Syntax,
	aggregate.Runtime:    aggregate.TypeSafety,
	aggregate.Behavior:   aggregate.Runtime,
}

// latentOrder adds parents before children.
var latentOrder = []aggregate.Criterion{
	aggregate.Syntax,
	aggregate.TypeSafety,
	aggregate.Runtime,
	aggregate.Behavior,
	aggregate.Lint,
	aggregate.Security,
}

func observationID(source string) string { return "obs:" + source }

// buildNetwork assembles the per-unit confidence network.
//
// # Description
//
// One binary latent per criterion holds P(criterion holds). Roots take the
// feedback prior directly. A chained criterion takes the prior when its
// parent holds and prior × coupling when it fails. Every available non-ML
// record adds a binary observation child whose CPT is the source's
// reliability: P(obs | holds) = r, P(obs | fails) = 1 - r.
//
// Undegraded proven records with an exact 0 or 1 become hard evidence.
// Every other value enters as likelihood [1-v, v].
//
// # Outputs
//
//   - *bayes.Network: Validated network.
//   - bayes.Query: Targets are the six latents.
//   - error: Wraps bayes.ErrInvalidNetwork if construction fails.
func buildNetwork(prior float64, coupling float64, records []evidence.Record) (*bayes.Network, bayes.Query, error) {
	net := bayes.NewNetwork()
	q := bayes.Query{
		Evidence:   make(map[string]int),
		Likelihood: make(map[string][]float64),
	}
	prior = clamp(prior, 0.01, 0.99)
	coupling = clamp(coupling, 0, 1)

	for _, c := range latentOrder {
		id := string(c)
		if _, err := net.AddBinary(id); err != nil {
			return nil, q, err
		}
		if parent, ok := chainParent[c]; ok {
			rows := [][]float64{bayes.Binary(prior * coupling), bayes.Binary(prior)}
			if err := net.SetCPT(id, []string{string(parent)}, rows); err != nil {
				return nil, q, err
			}
		} else if err := net.SetPrior(id, bayes.Binary(prior)); err != nil {
			return nil, q, err
		}
	}
	for _, c := range aggregate.AllCriteria {
		q.Targets = append(q.Targets, string(c))
	}

	for _, rec := range records {
		if rec.MLDerived || !rec.Available {
			continue
		}
		id := observationID(rec.Source)
		if _, err := net.AddBinary(id); err != nil {
			return nil, q, fmt.Errorf("%w: observation %s: %v", bayes.ErrInvalidNetwork, rec.Source, err)
		}
		r := reliability(rec)
		rows := [][]float64{bayes.Binary(1 - r), bayes.Binary(r)}
		if err := net.SetCPT(id, []string{string(rec.Criterion)}, rows); err != nil {
			return nil, q, err
		}

		v := clamp(rec.Value, 0, 1)
		if rec.Proof == evidence.Proven && !rec.Degraded && (v == 0 || v == 1) {
			q.Evidence[id] = int(v)
		} else {
			q.Likelihood[id] = []float64{1 - v, v}
		}
	}

	if err := net.Validate(); err != nil {
		return nil, q, err
	}
	return net, q, nil
}

// reliability keeps r in (0.5, 1) so no observation is ever impossible.
// Records that lost their proof take at most the estimated reliability.
func reliability(rec evidence.Record) float64 {
	r := rec.Reliability
	if rec.Proof != evidence.Proven && r > evidence.DefaultEstimatedReliability {
		r = evidence.DefaultEstimatedReliability
	}
	return clamp(r, 0.51, 0.999)
}

func clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x), x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
