// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate combines per-criterion confidence values into a single
// pessimistic score and maps scores onto a continuous colour ramp.
//
// # Aggregation Rule
//
// Scores are combined with Conditional Value at Risk: the values are sorted
// ascending and the worst ⌈n·(1-α)⌉ of them (at least one) are averaged.
// With α = 0.95 over the six criteria this is the single worst criterion,
// so one catastrophic criterion collapses the overall score even when the
// rest are perfect.
//
//	criteria ──► ML cap (Blend) ──► CVaR₀.₉₅ ──► overall
//	                                              │
//	lines ───────────────────────────► CVaR₀.₉₅ ──► file badge
//
// # Thread Safety
//
// Every function in this package is pure and safe for concurrent use.
package aggregate
