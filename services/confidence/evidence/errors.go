// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence defines the scalar evidence providers consumed by the
// confidence core and the collector that queries them.
//
// Every provider (syntax and type checkers, test runners, embedding
// similarity, bug predictors, heuristics, replayed fixtures) implements the
// single Source interface. The set of implementors is closed and tagged by
// Kind, so callers dispatch on the tag rather than on type hierarchies.
//
// # Failure Model
//
// A slow or failing source never blocks or fails a score. The Collector
// gives each source a timeout, substitutes the last cached value on failure
// and marks the resulting Record degraded.
package evidence

import "errors"

var (
	// ErrEvidenceUnavailable means a source failed or timed out and no
	// cached value could stand in for it.
	ErrEvidenceUnavailable = errors.New("evidence unavailable")

	// ErrDuplicateSource is returned when two registrations share a name.
	ErrDuplicateSource = errors.New("duplicate evidence source")

	// ErrInvalidRegistration covers nil sources, unknown criteria and
	// non-positive weights.
	ErrInvalidRegistration = errors.New("invalid evidence registration")
)
