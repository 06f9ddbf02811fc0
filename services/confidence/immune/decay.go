// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package immune

import "time"

// DefaultMaxAge is how long a score may be used for ship gating before it
// must be re-verified.
const DefaultMaxAge = 30 * 24 * time.Hour

// TemporalDecay decides when a score is too old to trust.
type TemporalDecay struct {
	MaxAge time.Duration
}

// NewTemporalDecay returns a decay rule, defaulting MaxAge when maxAge <= 0.
func NewTemporalDecay(maxAge time.Duration) TemporalDecay {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return TemporalDecay{MaxAge: maxAge}
}

// IsStale reports whether a score computed at computedAt must be
// re-verified at now. A zero computedAt is always stale.
func (d TemporalDecay) IsStale(computedAt, now time.Time) bool {
	if computedAt.IsZero() || now.Sub(computedAt) > d.MaxAge {
		staleScoresTotal.Inc()
		return true
	}
	return false
}
