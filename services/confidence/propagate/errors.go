// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package propagate pushes confidence changes across the dependency graph.
//
// When a file's score moves by Δ, every file that depends on it (directly
// or transitively) moves too, by
//
//	Δ × damping^d × (product of edge weights along the path)
//
// at hop distance d. A sweep is breadth-first, visits each node at most
// once, never goes deeper than MaxDepth and stops expanding a branch as
// soon as its effective delta drops below Epsilon.
//
// Cycles are allowed in the graph. Independent connected components are
// processed in parallel, each owned by a single goroutine.
package propagate

import "errors"

var (
	// ErrUnknownFile is returned for a path that is not in the graph.
	ErrUnknownFile = errors.New("unknown file")

	// ErrMalformedEdge is returned (and the edge dropped) for edges with an
	// unknown endpoint, a self loop or a weight outside (0,1].
	ErrMalformedEdge = errors.New("malformed dependency edge")
)
