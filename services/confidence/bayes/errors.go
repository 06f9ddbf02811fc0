// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bayes implements posterior inference over discrete Bayesian
// networks of evidence and latent nodes.
//
// # Representation
//
// Networks are index-addressed arenas: every variable is an int, parents
// are adjacency lists of ints, and each conditional probability table is a
// flat []float64. Cyclic parent structures are representable; the joint
// is then read as the normalized product of all CPT factors.
//
// # Algorithms
//
// Infer selects an algorithm automatically:
//
//   - Acyclic network: exact variable elimination (min-degree order).
//   - Cyclic network: loopy belief propagation (sum-product), bounded by
//     Options.MaxIter.
//   - Belief propagation that fails to converge: junction-tree inference
//     (exact) on the triangulated moral graph.
//
// Observed evidence is clamped: factors are reduced to the observed state
// and the variable is never summed over.
package bayes

import "errors"

// Sentinel errors for network construction and inference.
var (
	// ErrInvalidNetwork is returned when a CPT is malformed: a row does not
	// sum to 1 within RowTolerance, has the wrong width, contains a negative
	// or non-finite entry, or a variable has no CPT at all.
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrUnknownNode is returned when a query, evidence or parent id does
	// not name a variable in the network.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNonConvergence is returned by belief propagation when beliefs are
	// still moving after MaxIter iterations. Infer handles it internally by
	// falling back to the junction tree.
	ErrNonConvergence = errors.New("belief propagation did not converge")

	// ErrImpossibleEvidence is returned when the evidence has zero
	// probability under the network.
	ErrImpossibleEvidence = errors.New("evidence has zero probability")
)
