// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package immune is the safety layer that sits between evidence and stored
// confidence. It bounds how much any single signal can move a score and
// makes every score mutation tamper-evident.
//
// # Components
//
//   - MutationValidator: a passing test suite only proves a criterion if
//     its mutation-kill rate clears a threshold; otherwise the criterion is
//     downgraded in proportion to the kill rate.
//   - AnomalyDetector: a rolling window per developer; a dismiss-rate
//     above the threshold flags feedback poisoning and suspends the stream
//     until reviewed.
//   - MLCap: ML-derived evidence never carries more than a fixed share of
//     aggregation weight. Applied deterministically before CVaR.
//   - TemporalDecay: scores older than MaxAge must be re-verified before
//     they are used for ship gating.
//   - AuditLog: a single-writer, SHA-256 hash-chained, append-only log of
//     every score mutation.
//
// # Thread Safety
//
// AnomalyDetector and AuditLog are safe for concurrent use. The remaining
// types are immutable values.
package immune

import "errors"

var (
	// ErrAuditChainCorrupted means a stored audit entry no longer matches
	// its hash or its predecessor. Fatal: score history cannot be trusted.
	ErrAuditChainCorrupted = errors.New("audit chain corrupted")

	// ErrFeedbackPoisoning means a developer's feedback stream looks
	// adversarial and prior updates from it are suspended. Non-fatal.
	ErrFeedbackPoisoning = errors.New("feedback poisoning detected")

	// ErrAuditLogClosed is returned by Append after Close.
	ErrAuditLogClosed = errors.New("audit log closed")
)
